package models

import "sort"

// TeamRecord is the aggregated scouting view of a single team at an event.
type TeamRecord struct {
	TeamNumber int                `db:"team_number" json:"team_number" validate:"required,gt=0"`
	Nickname   string             `db:"nickname" json:"nickname"`
	Metrics    map[string]float64 `json:"metrics"`
	Text       map[string]string  `json:"text,omitempty"`
}

// MetricNames returns the record's numeric metric names in sorted order.
func (t TeamRecord) MetricNames() []string {
	names := make([]string, 0, len(t.Metrics))
	for name := range t.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metric returns a metric value and whether the team has it.
func (t TeamRecord) Metric(name string) (float64, bool) {
	v, ok := t.Metrics[name]
	return v, ok
}

// MetricUniverse returns the sorted union of metric names across teams.
func MetricUniverse(teams []TeamRecord) []string {
	seen := make(map[string]struct{})
	for _, team := range teams {
		for name := range team.Metrics {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TeamNumbers returns the team numbers of the given records in input order.
func TeamNumbers(teams []TeamRecord) []int {
	numbers := make([]int, len(teams))
	for i, team := range teams {
		numbers[i] = team.TeamNumber
	}
	return numbers
}
