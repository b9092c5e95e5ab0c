package risk

import "fmt"

// UnitScore pairs a unit identifier with its score.
type UnitScore struct {
	UnitID string `json:"unit_id"`
	Score  Score  `json:"score"`
}

// UnitSummary is one row of the per-unit breakdown.
type UnitSummary struct {
	UnitID        string  `json:"unit_id"`
	WeightedTotal float64 `json:"weighted_total"`
	Gate          Gate    `json:"gate"`
}

// AggregateScore summarizes a run. Gate is the worst unit gate; WeightedTotal
// and Components are means and never influence the gate.
type AggregateScore struct {
	Components      Components    `json:"components"`
	WeightedTotal   float64       `json:"weighted_total"`
	Gate            Gate          `json:"gate"`
	Recommendations []string      `json:"recommendations"`
	GateCounts      map[Gate]int  `json:"gate_counts"`
	Units           []UnitSummary `json:"units"`
}

// Aggregate combines per-unit scores in the order given.
func Aggregate(units []UnitScore) AggregateScore {
	agg := AggregateScore{
		Gate:            GatePass,
		Recommendations: []string{},
		GateCounts:      map[Gate]int{GatePass: 0, GateWarn: 0, GateBlock: 0},
		Units:           make([]UnitSummary, 0, len(units)),
	}
	if len(units) == 0 {
		agg.Recommendations = append(agg.Recommendations, "No units assessed")
		return agg
	}

	var sum Components
	total := 0.0
	for _, u := range units {
		s := u.Score
		agg.Gate = Worse(agg.Gate, s.Gate)
		agg.GateCounts[s.Gate]++
		total += s.WeightedTotal
		sum.Complexity += s.Components.Complexity
		sum.Volume += s.Components.Volume
		sum.CriticalFunction += s.Components.CriticalFunction
		sum.IssueSeverity += s.Components.IssueSeverity
		agg.Units = append(agg.Units, UnitSummary{
			UnitID:        u.UnitID,
			WeightedTotal: s.WeightedTotal,
			Gate:          s.Gate,
		})
	}

	n := float64(len(units))
	agg.WeightedTotal = round2(total / n)
	agg.Components = Components{
		Complexity:       sum.Complexity / n,
		Volume:           sum.Volume / n,
		CriticalFunction: sum.CriticalFunction / n,
		IssueSeverity:    sum.IssueSeverity / n,
	}

	switch agg.Gate {
	case GateBlock:
		agg.Recommendations = append(agg.Recommendations,
			fmt.Sprintf("Release blocked: %d of %d units exceed the block threshold", agg.GateCounts[GateBlock], len(units)))
	case GateWarn:
		agg.Recommendations = append(agg.Recommendations,
			fmt.Sprintf("Review required: %d of %d units carry medium risk", agg.GateCounts[GateWarn], len(units)))
	default:
		agg.Recommendations = append(agg.Recommendations, "All units pass - release may proceed")
	}
	return agg
}
