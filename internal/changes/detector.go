// Package changes computes line-level differences between two versions of a unit.
package changes

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/antinvestor/releasegate/internal/metrics"
)

const defaultContextLines = 3

// ChangeSet is the diff of one unit and the statistics derived from it.
type ChangeSet struct {
	AddedLines      int     `json:"added_lines"`
	RemovedLines    int     `json:"removed_lines"`
	ModifiedLines   int     `json:"modified_lines"`
	UnifiedDiff     string  `json:"unified_diff"`
	SimilarityRatio float64 `json:"similarity_ratio"`

	OriginalLines  int    `json:"original_lines"`
	CandidateLines int    `json:"candidate_lines"`
	Summary        string `json:"summary"`

	// OriginalChanged and CandidateChanged are the touched line ranges on each side.
	OriginalChanged  []LineRange `json:"original_changed,omitempty"`
	CandidateChanged []LineRange `json:"candidate_changed,omitempty"`
}

// TotalChanges is the number of lines added, removed or modified.
func (c *ChangeSet) TotalChanges() int {
	return c.AddedLines + c.RemovedLines + c.ModifiedLines
}

// HasChanges reports whether any line differs.
func (c *ChangeSet) HasChanges() bool {
	return c.TotalChanges() > 0
}

// Detector diffs unit versions. The zero value is not usable; use NewDetector.
type Detector struct {
	contextLines int
}

// NewDetector creates a detector that emits the given number of context lines
// around each hunk. Non-positive values use the default of three.
func NewDetector(contextLines int) *Detector {
	if contextLines <= 0 {
		contextLines = defaultContextLines
	}
	return &Detector{contextLines: contextLines}
}

// Diff compares original with candidate using default settings.
func Diff(original string, candidate *string) ChangeSet {
	return NewDetector(defaultContextLines).Diff("", original, candidate)
}

// Diff compares the original text of unit name with its candidate. A nil candidate
// means the unit was not modified and yields the identity change set.
func (d *Detector) Diff(name, original string, candidate *string) ChangeSet {
	origLines := metrics.SplitLines(original)

	if candidate == nil {
		return ChangeSet{
			SimilarityRatio: 1.0,
			OriginalLines:   len(origLines),
			CandidateLines:  len(origLines),
			Summary:         noChangesSummary,
		}
	}

	candLines := metrics.SplitLines(*candidate)
	cs := ChangeSet{
		OriginalLines:  len(origLines),
		CandidateLines: len(candLines),
	}

	a := withTerminators(origLines)
	b := withTerminators(candLines)

	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		origSpan := op.I2 - op.I1
		candSpan := op.J2 - op.J1
		switch op.Tag {
		case 'i':
			cs.AddedLines += candSpan
		case 'd':
			cs.RemovedLines += origSpan
		case 'r':
			paired := min(origSpan, candSpan)
			cs.ModifiedLines += paired
			cs.RemovedLines += origSpan - paired
			cs.AddedLines += candSpan - paired
		}
	}

	cs.SimilarityRatio = similarity(len(origLines), len(candLines), cs.RemovedLines+cs.ModifiedLines)

	if !cs.HasChanges() {
		cs.Summary = noChangesSummary
		return cs
	}

	fromFile, toFile := "original", "candidate"
	if name != "" {
		fromFile, toFile = "a/"+name, "b/"+name
	}
	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  d.contextLines,
	})
	if err != nil {
		// Writing to a strings.Builder does not fail.
		unified = ""
	}
	cs.UnifiedDiff = unified
	cs.Summary = summarize(unified)

	if hunks, parseErr := ParseHunks(unified); parseErr == nil {
		cs.OriginalChanged, cs.CandidateChanged = ChangedRanges(hunks)
	}
	return cs
}

const noChangesSummary = "No changes detected"

// similarity is the share of original lines that survive unchanged.
func similarity(origCount, candCount, lost int) float64 {
	if origCount == 0 {
		if candCount == 0 {
			return 1.0
		}
		return 0.0
	}
	ratio := float64(origCount-lost) / float64(origCount)
	return max(0.0, min(1.0, ratio))
}

func withTerminators(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = line + "\n"
	}
	return out
}

func summarize(unified string) string {
	if unified == "" {
		return noChangesSummary
	}
	lines := metrics.SplitLines(unified)
	added, removed := 0, 0
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return fmt.Sprintf("Modified %d diff lines: +%d additions, -%d deletions", len(lines), added, removed)
}
