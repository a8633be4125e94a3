package reconcile

import (
	"time"

	"github.com/yourusername/frc-picklist/internal/models"
)

// MergeStats summarizes a merge.
type MergeStats struct {
	Replaced       int
	Added          int
	Ignored        int
	StillAutoAdded int
}

// MergeAndUpdate merges newly ranked entries into a prior result using the default policy.
// The prior result is not modified.
func MergeAndUpdate(existing *models.PicklistResult, newEntries []models.RankingEntry) (*models.PicklistResult, error) {
	merged, _, err := NewReconciler(DefaultFallbackPolicy(), nil).Merge(existing, newEntries)
	return merged, err
}

// Merge replaces prior entries with newly ranked ones, drops teams outside the prior
// roster and re-reconciles. Remaining auto-added teams get a fresh fallback score so they
// stay below every model-ranked team.
func (r *Reconciler) Merge(existing *models.PicklistResult, newEntries []models.RankingEntry) (*models.PicklistResult, MergeStats, error) {
	var stats MergeStats
	if existing == nil {
		return nil, stats, models.ErrInvalidRequest
	}
	out := existing.Clone()

	inRoster := make(map[int]bool, len(out.Roster))
	for _, t := range out.Roster {
		inRoster[t] = true
	}

	nicknames := make(map[int]string, len(out.Entries))
	for _, e := range out.Entries {
		if e.Nickname != "" {
			nicknames[e.TeamNumber] = e.Nickname
		}
	}

	updates := make(map[int]models.RankingEntry, len(newEntries))
	var order []int
	for _, e := range newEntries {
		if !inRoster[e.TeamNumber] {
			stats.Ignored++
			continue
		}
		if _, dup := updates[e.TeamNumber]; dup {
			stats.Ignored++
			continue
		}
		if e.Nickname == "" {
			e.Nickname = nicknames[e.TeamNumber]
		}
		e.AutoAdded = false
		updates[e.TeamNumber] = e
		order = append(order, e.TeamNumber)
	}

	ranked := make([]models.RankingEntry, 0, len(out.Roster))
	used := make(map[int]bool, len(out.Roster))
	for _, e := range out.Entries {
		if used[e.TeamNumber] {
			continue
		}
		if u, ok := updates[e.TeamNumber]; ok {
			ranked = append(ranked, u)
			used[e.TeamNumber] = true
			stats.Replaced++
			continue
		}
		if !e.AutoAdded {
			ranked = append(ranked, e)
			used[e.TeamNumber] = true
		}
	}
	for _, team := range order {
		if !used[team] {
			ranked = append(ranked, updates[team])
			used[team] = true
			stats.Added++
		}
	}

	outcome, err := r.Reconcile(ranked, out.Roster)
	if err != nil {
		return nil, stats, err
	}
	for i := range outcome.Entries {
		if outcome.Entries[i].Nickname == "" {
			outcome.Entries[i].Nickname = nicknames[outcome.Entries[i].TeamNumber]
		}
	}

	out.Entries = outcome.Entries
	out.AutoAdded = outcome.AutoAdded
	if out.AutoAdded == nil {
		out.AutoAdded = []int{}
	}
	out.Status = models.StatusOK
	out.Message = ""
	out.GeneratedAt = time.Now()
	out.CacheHit = false
	stats.StillAutoAdded = len(out.AutoAdded)
	return out, stats, nil
}
