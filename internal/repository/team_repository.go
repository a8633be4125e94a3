package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/yourusername/frc-picklist/internal/database"
	"github.com/yourusername/frc-picklist/internal/dataset"
	"github.com/yourusername/frc-picklist/internal/models"
)

// MetricRow is one team_metrics observation.
type MetricRow struct {
	TeamNumber int
	Nickname   string
	Metric     string
	Value      *float64
	TextValue  *string
	UpdatedAt  time.Time
}

// PostgresTeamRepository serves event datasets from the team_metrics table
type PostgresTeamRepository struct {
	db *database.DB
}

// NewPostgresTeamRepository creates a new team repository
func NewPostgresTeamRepository(db *database.DB) *PostgresTeamRepository {
	return &PostgresTeamRepository{db: db}
}

var _ dataset.Provider = (*PostgresTeamRepository)(nil)

// Load aggregates every observation for event into one record per team.
func (r *PostgresTeamRepository) Load(ctx context.Context, event string) (*dataset.Dataset, error) {
	query := `
		SELECT team_number, nickname, metric, value, text_value, updated_at
		FROM team_metrics
		WHERE event_key = $1
		ORDER BY team_number ASC, updated_at ASC
	`

	rows, err := r.db.Query(ctx, query, event)
	if err != nil {
		return nil, fmt.Errorf("failed to query team metrics: %w", err)
	}
	defer rows.Close()

	var observations []MetricRow
	for rows.Next() {
		var row MetricRow
		if err := rows.Scan(&row.TeamNumber, &row.Nickname, &row.Metric, &row.Value, &row.TextValue, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team metric: %w", err)
		}
		observations = append(observations, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read team metrics: %w", err)
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: %s", dataset.ErrUnknownEvent, event)
	}

	ds := aggregateRows(event, observations)
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Import replaces the stored observations for ds.Event with the dataset's
// records using a single COPY inside a transaction.
func (r *PostgresTeamRepository) Import(ctx context.Context, ds *dataset.Dataset) (int64, error) {
	if err := ds.Validate(); err != nil {
		return 0, err
	}
	if ds.Event == "" {
		return 0, fmt.Errorf("%w: dataset has no event key", models.ErrInvalidRequest)
	}

	rows := flattenDataset(ds, time.Now().UTC())
	columns := []string{"event_key", "team_number", "nickname", "metric", "value", "text_value", "updated_at"}

	var copied int64
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM team_metrics WHERE event_key = $1", ds.Event); err != nil {
			return fmt.Errorf("failed to clear event %s: %w", ds.Event, err)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"team_metrics"}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy team metrics: %w", err)
		}
		copied = n
		return nil
	})
	return copied, err
}

// Events lists stored event keys.
func (r *PostgresTeamRepository) Events(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT DISTINCT event_key FROM team_metrics ORDER BY event_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// aggregateRows folds observations into team records: numeric metrics are
// averaged, distinct text notes are joined in observation order, and the most
// recent update time becomes the dataset version.
func aggregateRows(event string, rows []MetricRow) *dataset.Dataset {
	type accum struct {
		record models.TeamRecord
		sums   map[string]decimal.Decimal
		counts map[string]int64
		notes  map[string][]string
	}

	teams := make(map[int]*accum)
	var latest time.Time
	for _, row := range rows {
		a, ok := teams[row.TeamNumber]
		if !ok {
			a = &accum{
				record: models.TeamRecord{TeamNumber: row.TeamNumber},
				sums:   make(map[string]decimal.Decimal),
				counts: make(map[string]int64),
				notes:  make(map[string][]string),
			}
			teams[row.TeamNumber] = a
		}
		if row.Nickname != "" {
			a.record.Nickname = row.Nickname
		}
		if row.UpdatedAt.After(latest) {
			latest = row.UpdatedAt
		}
		if row.Value != nil {
			a.sums[row.Metric] = a.sums[row.Metric].Add(decimal.NewFromFloat(*row.Value))
			a.counts[row.Metric]++
		}
		if row.TextValue != nil {
			note := strings.TrimSpace(*row.TextValue)
			if note != "" && !contains(a.notes[row.Metric], note) {
				a.notes[row.Metric] = append(a.notes[row.Metric], note)
			}
		}
	}

	ds := &dataset.Dataset{Event: event, Teams: make([]models.TeamRecord, 0, len(teams))}
	if !latest.IsZero() {
		ds.Version = latest.UTC().Format(time.RFC3339)
	}
	for _, a := range teams {
		rec := a.record
		rec.Metrics = make(map[string]float64, len(a.sums))
		for metric, sum := range a.sums {
			rec.Metrics[metric] = sum.Div(decimal.NewFromInt(a.counts[metric])).InexactFloat64()
		}
		if len(a.notes) > 0 {
			rec.Text = make(map[string]string, len(a.notes))
			for field, notes := range a.notes {
				rec.Text[field] = strings.Join(notes, "; ")
			}
		}
		ds.Teams = append(ds.Teams, rec)
	}
	sort.Slice(ds.Teams, func(i, j int) bool { return ds.Teams[i].TeamNumber < ds.Teams[j].TeamNumber })
	return ds
}

// flattenDataset converts records to COPY rows, one per metric and text field.
func flattenDataset(ds *dataset.Dataset, at time.Time) [][]any {
	var rows [][]any
	for _, team := range ds.Teams {
		for _, metric := range team.MetricNames() {
			rows = append(rows, []any{ds.Event, team.TeamNumber, team.Nickname, metric, team.Metrics[metric], nil, at})
		}
		fields := make([]string, 0, len(team.Text))
		for field := range team.Text {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			rows = append(rows, []any{ds.Event, team.TeamNumber, team.Nickname, field, nil, team.Text[field], at})
		}
		if len(team.Metrics) == 0 && len(team.Text) == 0 {
			rows = append(rows, []any{ds.Event, team.TeamNumber, team.Nickname, "", nil, nil, at})
		}
	}
	return rows
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
