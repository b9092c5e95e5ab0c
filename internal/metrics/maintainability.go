package metrics

import (
	"math"
	"strings"
)

const (
	miBase           = 171.0
	miVolumeFactor   = 5.2
	miCCFactor       = 0.23
	miLinesFactor    = 16.2
	miScale          = 100.0 / 171.0
	maxMaintainIndex = 100.0
)

// HalsteadVolume is N * log2(n) over operator and operand tokens.
func HalsteadVolume(h Halstead) float64 {
	vocabulary := h.DistinctOperators + h.DistinctOperands
	length := h.TotalOperators + h.TotalOperands
	if vocabulary < 2 || length == 0 {
		return 0
	}
	return float64(length) * math.Log2(float64(vocabulary))
}

// MaintainabilityIndex combines volume, complexity and source lines into a 0-100 score.
// Volume and lines are floored at one so that empty units score near the top.
func MaintainabilityIndex(volume float64, complexity, sloc int) float64 {
	v := math.Max(volume, 1)
	l := math.Max(float64(sloc), 1)

	mi := (miBase - miVolumeFactor*math.Log(v) - miCCFactor*float64(complexity) - miLinesFactor*math.Log(l)) * miScale
	mi = math.Max(0, math.Min(maxMaintainIndex, mi))
	return math.Round(mi*100) / 100
}

// ComplexityRank grades a cyclomatic complexity from A (simple) to F (untestable).
func ComplexityRank(complexity int) string {
	switch {
	case complexity <= 5:
		return "A"
	case complexity <= 10:
		return "B"
	case complexity <= 20:
		return "C"
	case complexity <= 30:
		return "D"
	case complexity <= 40:
		return "E"
	default:
		return "F"
	}
}

// CountLines classifies physical lines as code, comment or blank.
func CountLines(src string) LineCounts {
	var counts LineCounts
	for _, line := range SplitLines(src) {
		counts.Total++
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			counts.Blank++
		case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "//"):
			counts.Comment++
		default:
			counts.Code++
		}
	}
	return counts
}

// SplitLines splits text into lines without terminators. A single trailing
// newline does not start a new line and carriage returns are dropped.
func SplitLines(src string) []string {
	if src == "" {
		return nil
	}
	src = strings.TrimSuffix(src, "\n")
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
