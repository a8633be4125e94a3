// Package reconcile turns partial, duplicate-laden model rankings into complete rankings
// covering every roster team exactly once.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/yourusername/frc-picklist/internal/logger"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/models"
)

// MinFallbackMargin is the smallest margin that still separates auto-added teams from ranked ones.
const MinFallbackMargin = 0.01

// FallbackPolicy decides the score given to teams the model did not rank.
// Auto-added teams score Margin below the lowest model score, or Floor when nothing was ranked.
type FallbackPolicy struct {
	Margin float64
	Floor  float64
}

// DefaultFallbackPolicy returns the default fallback policy.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{Margin: 5.0, Floor: 0}
}

// Score returns the fallback score for a set of model-ranked entries.
func (p FallbackPolicy) Score(ranked []models.RankingEntry) float64 {
	if len(ranked) == 0 {
		return p.Floor
	}
	lowest := ranked[0].Score
	for _, e := range ranked[1:] {
		if e.Score < lowest {
			lowest = e.Score
		}
	}
	// Rounding down keeps the fallback strictly below the lowest ranked score.
	return decimal.NewFromFloat(lowest).Sub(decimal.NewFromFloat(p.Margin)).RoundFloor(2).InexactFloat64()
}

// Outcome is a complete, sorted ranking.
type Outcome struct {
	Entries           []models.RankingEntry
	AutoAdded         []int
	FallbackScore     float64
	DuplicatesDropped int
	UnknownDropped    int
}

// Reconciler enforces completeness and uniqueness of rankings.
type Reconciler struct {
	policy FallbackPolicy
	logger *logger.PipelineLogger
}

// NewReconciler creates a reconciler. A nil logger disables logging.
func NewReconciler(policy FallbackPolicy, log *logger.PipelineLogger) *Reconciler {
	if policy.Margin < MinFallbackMargin {
		policy.Margin = MinFallbackMargin
	}
	return &Reconciler{policy: policy, logger: log}
}

// Policy returns the fallback policy.
func (r *Reconciler) Policy() FallbackPolicy {
	return r.policy
}

// WithLogger returns a copy of the reconciler logging through log.
func (r *Reconciler) WithLogger(log *logger.PipelineLogger) *Reconciler {
	cp := *r
	cp.logger = log
	return &cp
}

// Reconcile keeps the first entry per roster team, fills missing teams with the fallback
// score, sorts by score descending and validates the result against roster.
// Incoming AutoAdded flags are ignored: every supplied entry counts as model-ranked.
func (r *Reconciler) Reconcile(entries []models.RankingEntry, roster []int) (*Outcome, error) {
	position := make(map[int]int, len(roster))
	for i, team := range roster {
		if _, dup := position[team]; !dup {
			position[team] = i
		}
	}

	out := &Outcome{}
	seen := make(map[int]bool, len(entries))
	ranked := make([]models.RankingEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := position[e.TeamNumber]; !ok {
			out.UnknownDropped++
			continue
		}
		if seen[e.TeamNumber] {
			out.DuplicatesDropped++
			continue
		}
		seen[e.TeamNumber] = true
		e.AutoAdded = false
		ranked = append(ranked, e)
	}

	out.FallbackScore = r.policy.Score(ranked)
	out.Entries = ranked
	for _, team := range roster {
		if seen[team] {
			continue
		}
		seen[team] = true
		out.Entries = append(out.Entries, models.RankingEntry{
			TeamNumber: team,
			Score:      out.FallbackScore,
			Reasoning:  "not ranked by model; fallback score",
			AutoAdded:  true,
		})
		out.AutoAdded = append(out.AutoAdded, team)
	}

	SortEntries(out.Entries, position)

	if err := r.Validate(out.Entries, roster); err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.LogReconciliation(len(roster), len(ranked), len(out.AutoAdded), out.DuplicatesDropped, out.UnknownDropped, out.FallbackScore)
	}
	return out, nil
}

// SortEntries orders by score descending. Ties put model-ranked teams first, then roster order.
func SortEntries(entries []models.RankingEntry, position map[int]int) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.AutoAdded != b.AutoAdded {
			return !a.AutoAdded
		}
		pa, oka := position[a.TeamNumber]
		pb, okb := position[b.TeamNumber]
		if oka && okb && pa != pb {
			return pa < pb
		}
		return a.TeamNumber < b.TeamNumber
	})
}

// Validate checks that entries hold every roster team exactly once and nothing else.
func (r *Reconciler) Validate(entries []models.RankingEntry, roster []int) error {
	missing, extra, duplicated := Diff(entries, roster)
	if len(missing) == 0 && len(extra) == 0 && len(duplicated) == 0 {
		return nil
	}

	metrics.RecordInvariantViolation()
	if r.logger != nil {
		r.logger.LogInvariantViolation(missing, extra, duplicated)
	}
	return fmt.Errorf("%w: missing=%v extra=%v duplicated=%v", models.ErrInvariantViolation, missing, extra, duplicated)
}

// Diff compares ranked team numbers with the roster.
func Diff(entries []models.RankingEntry, roster []int) (missing, extra, duplicated []int) {
	want := make(map[int]bool, len(roster))
	for _, t := range roster {
		want[t] = true
	}
	count := make(map[int]int, len(entries))
	for _, e := range entries {
		count[e.TeamNumber]++
		if count[e.TeamNumber] == 2 {
			duplicated = append(duplicated, e.TeamNumber)
		}
		if !want[e.TeamNumber] && count[e.TeamNumber] == 1 {
			extra = append(extra, e.TeamNumber)
		}
	}
	for team := range want {
		if count[team] == 0 {
			missing = append(missing, team)
		}
	}
	sort.Ints(missing)
	return missing, extra, duplicated
}
