package encoding

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/yourusername/frc-picklist/internal/models"
)

// PriorScores computes a cheap 0-100 heuristic score per team: the weighted mean of
// min-max normalized priority metrics. Without weighted priorities every metric counts equally.
// Scores are rounded to one decimal place.
func PriorScores(teams []models.TeamRecord, priorities []models.Priority) map[int]float64 {
	weights := make(map[string]float64)
	for _, p := range priorities {
		if p.Weight > 0 && !math.IsInf(p.Weight, 0) {
			weights[p.Metric] = math.Min(weights[p.Metric]+p.Weight, math.MaxFloat64)
		}
	}
	if len(weights) == 0 {
		for _, name := range models.MetricUniverse(teams) {
			weights[name] = 1
		}
	}

	type bounds struct{ min, max float64 }
	ranges := make(map[string]bounds, len(weights))
	for name := range weights {
		b := bounds{min: math.Inf(1), max: math.Inf(-1)}
		for _, t := range teams {
			if v, ok := t.Metrics[name]; ok && isFinite(v) {
				b.min = math.Min(b.min, v)
				b.max = math.Max(b.max, v)
			}
		}
		ranges[name] = b
	}

	// Scale weights to at most 1 so the sums below stay finite.
	var maxWeight float64
	for _, w := range weights {
		maxWeight = math.Max(maxWeight, w)
	}
	var totalWeight float64
	for name, w := range weights {
		weights[name] = w / maxWeight
		totalWeight += weights[name]
	}

	scores := make(map[int]float64, len(teams))
	for _, t := range teams {
		var sum float64
		for name, w := range weights {
			v, ok := t.Metrics[name]
			if !ok || !isFinite(v) {
				continue
			}
			b := ranges[name]
			norm := 1.0
			if b.max > b.min {
				norm = (v - b.min) / (b.max - b.min)
			}
			sum += w * norm
		}
		score := 0.0
		if totalWeight > 0 {
			score = sum / totalWeight * 100
		}
		if !isFinite(score) {
			continue
		}
		scores[t.TeamNumber] = decimal.NewFromFloat(score).Round(1).InexactFloat64()
	}
	return scores
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
