package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/frc-picklist/internal/models"
)

var universe = []string{
	"algae_net", "auto_points", "cage_deep", "climb_rate", "coral_l4",
	"defense_rating", "driver_skill", "endgame_points", "fouls", "teleop_points",
}

// TestKeywordScorerKeepsPriorities tests that priority metrics always survive the filter
func TestKeywordScorerKeepsPriorities(t *testing.T) {
	s := NewKeywordScorer()
	got := s.Select(universe, []models.Priority{{Metric: "fouls", Weight: 0.5}, {Metric: "cage_deep", Weight: 1}}, "", 3)

	assert.Contains(t, got, "fouls")
	assert.Contains(t, got, "cage_deep")
	assert.Len(t, got, 3)
	assert.Contains(t, got, "auto_points")
}

// TestKeywordScorerStrategyOverlap tests that strategy text pulls in matching metrics
func TestKeywordScorerStrategyOverlap(t *testing.T) {
	s := NewKeywordScorer()
	got := s.Select(universe, nil, "We need a strong driver who can play defense", 5)

	assert.Contains(t, got, "defense_rating")
	assert.Contains(t, got, "driver_skill")
	assert.Len(t, got, 5)
}

// TestKeywordScorerDeterministic tests identical input gives identical selections
func TestKeywordScorerDeterministic(t *testing.T) {
	s := NewKeywordScorer()
	priorities := []models.Priority{{Metric: "coral_l4", Weight: 2}}

	first := s.Select(universe, priorities, "coral cycles", 5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Select(universe, priorities, "coral cycles", 5))
	}
}

// TestKeywordScorerIgnoresUnknownPriority tests priorities naming absent metrics
func TestKeywordScorerIgnoresUnknownPriority(t *testing.T) {
	got := NewKeywordScorer().Select([]string{"a_thing", "b_thing"}, []models.Priority{{Metric: "missing", Weight: 1}}, "", 5)
	assert.Equal(t, []string{"a_thing", "b_thing"}, got)
}

// TestKeywordScorerScore tests individual scores
func TestKeywordScorerScore(t *testing.T) {
	s := NewKeywordScorer()
	assert.Equal(t, 1.0, s.Score("auto_points", 0, nil))
	assert.Equal(t, 10.5, s.Score("climb_rate", 1, map[string]bool{"climb": true}))
	assert.Equal(t, 0.0, s.Score("barge", 0, map[string]bool{"climb": true}))
}
