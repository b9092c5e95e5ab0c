package metrics

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// decisionNodes are the Python grammar nodes that add one path through the code.
var decisionNodes = map[string]bool{
	"if_statement":           true,
	"elif_clause":            true,
	"for_statement":          true,
	"while_statement":        true,
	"except_clause":          true,
	"conditional_expression": true,
	"boolean_operator":       true,
	"for_in_clause":          true,
	"if_clause":              true,
	"case_clause":            true,
}

// PythonExtractor extracts structural facts from Python source using tree-sitter.
type PythonExtractor struct{}

// NewPythonExtractor creates a tree-sitter backed Python extractor.
func NewPythonExtractor() *PythonExtractor {
	return &PythonExtractor{}
}

// Extract implements FactsExtractor.
func (e *PythonExtractor) Extract(ctx context.Context, src []byte) (*Facts, error) {
	// Parsers are not goroutine safe, so each call gets its own.
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("%w: empty syntax tree", ErrSyntax)
	}
	if root.HasError() {
		line := 0
		if bad := findFirstError(root); bad != nil {
			line = int(bad.StartPoint().Row) + 1
		}
		return nil, fmt.Errorf("%w at line %d", ErrSyntax, line)
	}

	w := &factsWalker{
		src:       src,
		facts:     &Facts{},
		operators: make(map[string]struct{}),
		operands:  make(map[string]struct{}),
	}
	w.walk(root, walkScope{fn: -1})

	w.facts.Halstead.DistinctOperators = len(w.operators)
	w.facts.Halstead.DistinctOperands = len(w.operands)
	return w.facts, nil
}

type walkScope struct {
	fn     int
	prefix string
	depth  int
}

type factsWalker struct {
	src       []byte
	facts     *Facts
	operators map[string]struct{}
	operands  map[string]struct{}
}

func (w *factsWalker) walk(n *sitter.Node, sc walkScope) {
	switch n.Type() {
	case "function_definition":
		w.define(n, SymbolFunction, sc)
		return
	case "class_definition":
		w.define(n, SymbolClass, sc)
		return
	case "comment":
		w.facts.Comments = append(w.facts.Comments, Comment{
			Line: int(n.StartPoint().Row) + 1,
			Text: n.Content(w.src),
		})
		return
	case "string":
		w.operand(n.Content(w.src))
		return
	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil &&
			fn.Type() == "identifier" && fn.Content(w.src) == "print" {
			w.facts.DebugPrints = append(w.facts.DebugPrints, w.site(n, sc))
		}
	case "except_clause":
		if isBareExcept(n) {
			w.facts.BareExcepts = append(w.facts.BareExcepts, w.site(n, sc))
		}
	}

	if decisionNodes[n.Type()] {
		if sc.fn >= 0 {
			w.facts.Symbols[sc.fn].Decisions++
		} else {
			w.facts.TopLevelDecisions++
		}
	}

	count := int(n.ChildCount())
	if count == 0 {
		if n.IsNamed() {
			w.operand(n.Content(w.src))
		} else {
			w.operator(n.Type())
		}
		return
	}
	for i := range count {
		w.walk(n.Child(i), sc)
	}
}

func (w *factsWalker) define(n *sitter.Node, kind SymbolKind, sc walkScope) {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = nameNode.Content(w.src)
	}
	qualified := name
	if sc.prefix != "" {
		qualified = sc.prefix + "." + name
	}

	w.facts.Symbols = append(w.facts.Symbols, Symbol{
		Name:         name,
		Qualified:    qualified,
		Kind:         kind,
		StartLine:    int(n.StartPoint().Row) + 1,
		EndLine:      int(n.EndPoint().Row) + 1,
		HasDocstring: hasDocstring(n.ChildByFieldName("body")),
		Depth:        sc.depth,
	})

	inner := walkScope{fn: sc.fn, prefix: qualified, depth: sc.depth + 1}
	if kind == SymbolFunction {
		inner.fn = len(w.facts.Symbols) - 1
	}
	for i := range int(n.ChildCount()) {
		w.walk(n.Child(i), inner)
	}
}

func (w *factsWalker) site(n *sitter.Node, sc walkScope) Site {
	return Site{Line: int(n.StartPoint().Row) + 1, Symbol: sc.prefix}
}

func (w *factsWalker) operator(token string) {
	w.operators[token] = struct{}{}
	w.facts.Halstead.TotalOperators++
}

func (w *factsWalker) operand(token string) {
	w.operands[token] = struct{}{}
	w.facts.Halstead.TotalOperands++
}

// isBareExcept reports whether an except clause names no exception type.
func isBareExcept(n *sitter.Node) bool {
	for i := range int(n.NamedChildCount()) {
		switch n.NamedChild(i).Type() {
		case "block", "comment":
		default:
			return false
		}
	}
	return true
}

// hasDocstring reports whether a body block opens with a string literal.
func hasDocstring(body *sitter.Node) bool {
	if body == nil {
		return false
	}
	for i := range int(body.NamedChildCount()) {
		stmt := body.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		return stmt.Type() == "expression_statement" &&
			stmt.NamedChildCount() > 0 &&
			stmt.NamedChild(0).Type() == "string"
	}
	return false
}

func findFirstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := range int(n.ChildCount()) {
		if bad := findFirstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return nil
}
