package changes

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sourcegraph/go-diff/diff"
)

// ErrNoDiff is returned when parsing an empty unified diff.
var ErrNoDiff = errors.New("empty unified diff")

// LineRange is an inclusive, 1-based range of lines.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Hunk is one parsed hunk of a unified diff.
type Hunk struct {
	OrigStart int    `json:"orig_start"`
	OrigLines int    `json:"orig_lines"`
	NewStart  int    `json:"new_start"`
	NewLines  int    `json:"new_lines"`
	Body      string `json:"body"`
}

// ParseHunks parses a single-file unified diff into its hunks.
func ParseHunks(unified string) ([]Hunk, error) {
	if unified == "" {
		return nil, ErrNoDiff
	}
	fd, err := diff.ParseFileDiff([]byte(unified))
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}

	hunks := make([]Hunk, 0, len(fd.Hunks))
	for _, h := range fd.Hunks {
		hunks = append(hunks, Hunk{
			OrigStart: int(h.OrigStartLine),
			OrigLines: int(h.OrigLines),
			NewStart:  int(h.NewStartLine),
			NewLines:  int(h.NewLines),
			Body:      string(h.Body),
		})
	}
	return hunks, nil
}

// ChangedRanges walks hunk bodies and returns the removed original lines and the
// added candidate lines as merged ranges.
func ChangedRanges(hunks []Hunk) (original, candidate []LineRange) {
	for _, h := range hunks {
		origLine, newLine := h.OrigStart, h.NewStart
		for _, line := range bytes.Split([]byte(h.Body), []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			switch line[0] {
			case ' ':
				origLine++
				newLine++
			case '-':
				original = appendLine(original, origLine)
				origLine++
			case '+':
				candidate = appendLine(candidate, newLine)
				newLine++
			}
		}
	}
	return original, candidate
}

func appendLine(ranges []LineRange, line int) []LineRange {
	if n := len(ranges); n > 0 && ranges[n-1].End+1 == line {
		ranges[n-1].End = line
		return ranges
	}
	return append(ranges, LineRange{Start: line, End: line})
}

// Touches reports whether any of the ranges overlaps the span [start, end].
func Touches(ranges []LineRange, start, end int) bool {
	span := LineRange{Start: start, End: end}
	for _, r := range ranges {
		if r.Overlaps(span) {
			return true
		}
	}
	return false
}
