package metrics

import (
	"context"
	"errors"
)

// ErrSyntax marks source text that could not be parsed.
var ErrSyntax = errors.New("syntax error")

// FactsExtractor turns source text into the structural facts the analyzer scores.
// Implementations must be safe for concurrent use.
type FactsExtractor interface {
	Extract(ctx context.Context, src []byte) (*Facts, error)
}

// Symbol is a function or class definition found in the source.
type Symbol struct {
	Name      string
	Qualified string
	Kind      SymbolKind

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int

	// Decisions counts branch points owned by this function, excluding nested definitions.
	Decisions int

	HasDocstring bool
	Depth        int
}

// Comment is a source comment and the line it starts on.
type Comment struct {
	Line int
	Text string
}

// Site is a line with the qualified name of its enclosing symbol.
type Site struct {
	Line   int
	Symbol string
}

// Halstead holds the token counts behind the Halstead volume.
type Halstead struct {
	DistinctOperators int
	DistinctOperands  int
	TotalOperators    int
	TotalOperands     int
}

// Facts is the structural model of one unit.
type Facts struct {
	Symbols []Symbol

	// TopLevelDecisions counts branch points outside any function.
	TopLevelDecisions int

	BareExcepts []Site
	DebugPrints []Site
	Comments    []Comment
	Halstead    Halstead
}

// Functions returns the function symbols in source order.
func (f *Facts) Functions() []Symbol {
	out := make([]Symbol, 0, len(f.Symbols))
	for _, s := range f.Symbols {
		if s.Kind == SymbolFunction {
			out = append(out, s)
		}
	}
	return out
}
