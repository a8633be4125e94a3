package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/frc-picklist/internal/database"
	"github.com/yourusername/frc-picklist/internal/dataset"
	"github.com/yourusername/frc-picklist/internal/models"
)

func ptr[T any](v T) *T { return &v }

// TestAggregateRows tests folding observations into one record per team
func TestAggregateRows(t *testing.T) {
	t0 := time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)
	rows := []MetricRow{
		{TeamNumber: 1678, Nickname: "Citrus Circuits", Metric: "auto_points", Value: ptr(20.0), UpdatedAt: t0},
		{TeamNumber: 254, Metric: "auto_points", Value: ptr(24.0), UpdatedAt: t0},
		{TeamNumber: 254, Nickname: "The Cheesy Poofs", Metric: "auto_points", Value: ptr(26.0), UpdatedAt: t0.Add(time.Hour)},
		{TeamNumber: 254, Metric: "auto_points", Value: ptr(25.0), UpdatedAt: t0},
		{TeamNumber: 254, Metric: "notes", TextValue: ptr("fast cycles"), UpdatedAt: t0},
		{TeamNumber: 254, Metric: "notes", TextValue: ptr(" fast cycles "), UpdatedAt: t0},
		{TeamNumber: 254, Metric: "notes", TextValue: ptr("brownout in Q12"), UpdatedAt: t0},
		{TeamNumber: 1678, Metric: "notes", TextValue: ptr("  "), UpdatedAt: t0},
	}

	ds := aggregateRows("2025casj", rows)

	assert.Equal(t, "2025casj", ds.Event)
	assert.Equal(t, "2025-03-14T19:00:00Z", ds.Version)
	require.Len(t, ds.Teams, 2)

	assert.Equal(t, 254, ds.Teams[0].TeamNumber)
	assert.Equal(t, "The Cheesy Poofs", ds.Teams[0].Nickname)
	assert.Equal(t, 25.0, ds.Teams[0].Metrics["auto_points"])
	assert.Equal(t, "fast cycles; brownout in Q12", ds.Teams[0].Text["notes"])

	assert.Equal(t, 1678, ds.Teams[1].TeamNumber)
	assert.Equal(t, 20.0, ds.Teams[1].Metrics["auto_points"])
	assert.Empty(t, ds.Teams[1].Text)
	require.NoError(t, ds.Validate())
}

// TestFlattenDataset tests conversion of records into COPY rows
func TestFlattenDataset(t *testing.T) {
	at := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	ds := &dataset.Dataset{
		Event: "2025casj",
		Teams: []models.TeamRecord{
			{TeamNumber: 254, Nickname: "Poofs", Metrics: map[string]float64{"b": 2, "a": 1}, Text: map[string]string{"notes": "solid"}},
			{TeamNumber: 604},
		},
	}

	rows := flattenDataset(ds, at)
	require.Len(t, rows, 4)
	assert.Equal(t, []any{"2025casj", 254, "Poofs", "a", 1.0, nil, at}, rows[0])
	assert.Equal(t, []any{"2025casj", 254, "Poofs", "b", 2.0, nil, at}, rows[1])
	assert.Equal(t, []any{"2025casj", 254, "Poofs", "notes", nil, "solid", at}, rows[2])
	assert.Equal(t, 604, rows[3][1])
}

// TestTeamRepositoryRoundTrip imports a dataset and loads it back from Postgres
func TestTeamRepositoryRoundTrip(t *testing.T) {
	db := database.SetupTestDB(t)
	repo := NewPostgresTeamRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := "2025test" + time.Now().Format("150405")
	ds := &dataset.Dataset{
		Event: event,
		Teams: []models.TeamRecord{
			{TeamNumber: 254, Nickname: "Poofs", Metrics: map[string]float64{"auto_points": 24.5}, Text: map[string]string{"notes": "deep climb"}},
			{TeamNumber: 1678, Metrics: map[string]float64{"auto_points": 22}},
		},
	}
	t.Cleanup(func() {
		_, _ = db.Exec(context.Background(), "DELETE FROM team_metrics WHERE event_key = $1", event)
	})

	copied, err := repo.Import(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, int64(3), copied)

	loaded, err := repo.Load(ctx, event)
	require.NoError(t, err)
	require.Len(t, loaded.Teams, 2)
	assert.Equal(t, 24.5, loaded.Teams[0].Metrics["auto_points"])
	assert.Equal(t, "deep climb", loaded.Teams[0].Text["notes"])
	assert.NotEmpty(t, loaded.Version)

	events, err := repo.Events(ctx)
	require.NoError(t, err)
	assert.Contains(t, events, event)

	_, err = repo.Load(ctx, event+"x")
	assert.ErrorIs(t, err, dataset.ErrUnknownEvent)
}
