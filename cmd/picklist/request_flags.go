package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/models"
)

// requestFlags are shared by generate and rank-missing.
type requestFlags struct {
	event      string
	priorities []string
	position   string
	strategy   string
	excluded   []int
	output     string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.event, "event", "e", "", "Event key, e.g. 2025casj")
	cmd.Flags().StringArrayVarP(&f.priorities, "priority", "p", nil, "Metric priority as metric=weight; repeatable")
	cmd.Flags().StringVar(&f.position, "position", string(models.PickFirst), "Pick position: first, second or third")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "Free-text strategy for the alliance")
	cmd.Flags().IntSliceVarP(&f.excluded, "exclude", "x", nil, "Team numbers to leave out (already picked or declined)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the result JSON to this file instead of stdout")
	_ = cmd.MarkFlagRequired("event")
}

// parsePriorities reads metric=weight pairs. A bare metric gets weight 1.
func parsePriorities(values []string) ([]models.Priority, error) {
	priorities := make([]models.Priority, 0, len(values))
	for _, v := range values {
		metric, weight, found := strings.Cut(v, "=")
		metric = strings.TrimSpace(metric)
		if metric == "" {
			return nil, fmt.Errorf("invalid priority %q: missing metric", v)
		}
		p := models.Priority{Metric: metric, Weight: 1}
		if found {
			w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
			if err != nil || w < 0 {
				return nil, fmt.Errorf("invalid priority %q: weight must be a non-negative number", v)
			}
			p.Weight = w
		}
		priorities = append(priorities, p)
	}
	return priorities, nil
}

func readResult(path string) (*models.PicklistResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var result models.PicklistResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", path, err)
	}
	return &result, nil
}

func readEntries(path string) ([]models.RankingEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}
	var entries []models.RankingEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse entries %s: %w", path, err)
	}
	return entries, nil
}

func printResult(path string, result *models.PicklistResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return writeOutput(path, data)
}
