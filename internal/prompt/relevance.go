package prompt

import (
	"sort"

	"github.com/yourusername/frc-picklist/internal/encoding"
	"github.com/yourusername/frc-picklist/internal/models"
)

// DefaultMaxMetrics bounds how many metrics are sent per prompt.
const DefaultMaxMetrics = 12

// RelevanceScorer selects the strategy-relevant subset of the metric universe.
// Implementations must be deterministic for identical inputs.
type RelevanceScorer interface {
	Select(universe []string, priorities []models.Priority, strategy string, maxMetrics int) []string
}

// KeywordScorer scores metrics by priority weight, phase point totals and
// token overlap with the strategy text.
//
//	score = 10*weight (priority metrics) + 1 (auto/teleop/endgame/total points) + 0.5 per shared strategy token
//
// Priority metrics are always kept. Remaining slots go to the highest scores, ties by name.
type KeywordScorer struct{}

// NewKeywordScorer creates a keyword relevance scorer.
func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{}
}

var phaseTokens = map[string]bool{"auto": true, "teleop": true, "endgame": true, "total": true}

// Select returns the chosen metric names sorted by name.
func (s *KeywordScorer) Select(universe []string, priorities []models.Priority, strategy string, maxMetrics int) []string {
	if maxMetrics <= 0 {
		maxMetrics = DefaultMaxMetrics
	}

	present := make(map[string]bool, len(universe))
	for _, name := range universe {
		present[name] = true
	}

	weights := make(map[string]float64)
	for _, p := range priorities {
		if present[p.Metric] {
			weights[p.Metric] += p.Weight
		}
	}

	strategyTokens := make(map[string]bool)
	for _, tok := range encoding.SignificantTokens(strategy) {
		if len(tok) > 1 {
			strategyTokens[tok] = true
		}
	}

	type scored struct {
		name  string
		score float64
	}
	var required []string
	var candidates []scored
	for _, name := range universe {
		if _, ok := weights[name]; ok {
			required = append(required, name)
			continue
		}
		candidates = append(candidates, scored{name: name, score: s.Score(name, 0, strategyTokens)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	selected := append([]string(nil), required...)
	for _, c := range candidates {
		if len(selected) >= maxMetrics {
			break
		}
		if c.score <= 0 {
			break
		}
		selected = append(selected, c.name)
	}
	// Nothing relevant: keep a deterministic slice of the universe rather than an empty table.
	if len(selected) == 0 {
		for _, c := range candidates {
			if len(selected) >= maxMetrics {
				break
			}
			selected = append(selected, c.name)
		}
	}

	sort.Strings(selected)
	return selected
}

// Score computes the relevance of one metric.
func (s *KeywordScorer) Score(name string, weight float64, strategyTokens map[string]bool) float64 {
	score := 10 * weight
	tokens := encoding.SignificantTokens(name)

	var phase, points bool
	for _, tok := range tokens {
		if phaseTokens[tok] {
			phase = true
		}
		if tok == "points" {
			points = true
		}
	}
	if phase && points {
		score++
	}

	seen := make(map[string]bool)
	for _, tok := range tokens {
		if strategyTokens[tok] && !seen[tok] {
			seen[tok] = true
			score += 0.5
		}
	}
	return score
}

