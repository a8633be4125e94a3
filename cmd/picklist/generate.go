package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/models"
	"github.com/yourusername/frc-picklist/internal/picklist"
)

var (
	generateFlags    requestFlags
	rankMissingFlags requestFlags
	existingResult   string
	mergeEntriesPath string
	mergeOutput      string
)

func init() {
	generateFlags.register(generateCmd)
	rankMissingFlags.register(rankMissingCmd)
	rankMissingCmd.Flags().StringVar(&existingResult, "result", "", "Existing result JSON to extend (default: cached result for the same request)")

	mergeCmd.Flags().StringVar(&existingResult, "result", "", "Existing result JSON")
	mergeCmd.Flags().StringVar(&mergeEntriesPath, "entries", "", "JSON array of ranking entries to merge")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Write the merged result JSON to this file instead of stdout")
	_ = mergeCmd.MarkFlagRequired("result")
	_ = mergeCmd.MarkFlagRequired("entries")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Rank every team at an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		gen, req, err := prepareRun(ctx, &generateFlags)
		if err != nil {
			return err
		}
		result := gen.Generate(ctx, req)
		logResult(result)
		if err := printResult(generateFlags.output, result); err != nil {
			return err
		}
		return resultError(result)
	},
}

var rankMissingCmd = &cobra.Command{
	Use:   "rank-missing",
	Short: "Rank the auto-added teams of an existing picklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		gen, req, err := prepareRun(ctx, &rankMissingFlags)
		if err != nil {
			return err
		}

		var existing *models.PicklistResult
		if existingResult != "" {
			if existing, err = readResult(existingResult); err != nil {
				return err
			}
		}

		result := gen.RankMissingTeams(ctx, req, existing)
		logResult(result)
		if err := printResult(rankMissingFlags.output, result); err != nil {
			return err
		}
		return resultError(result)
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Replace auto-added entries of a result with supplied rankings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		existing, err := readResult(existingResult)
		if err != nil {
			return err
		}
		entries, err := readEntries(mergeEntriesPath)
		if err != nil {
			return err
		}

		gen, err := newGenerator(ctx)
		if err != nil {
			return err
		}
		merged, err := gen.MergeAndUpdate(ctx, existing, entries)
		if err != nil {
			return err
		}
		return printResult(mergeOutput, merged)
	},
}

// prepareRun loads the event dataset and builds the generator and request.
func prepareRun(ctx context.Context, f *requestFlags) (*picklist.Generator, picklist.Request, error) {
	priorities, err := parsePriorities(f.priorities)
	if err != nil {
		return nil, picklist.Request{}, err
	}

	provider, err := newProvider(ctx)
	if err != nil {
		return nil, picklist.Request{}, err
	}
	ds, err := provider.Load(ctx, f.event)
	if err != nil {
		return nil, picklist.Request{}, fmt.Errorf("failed to load event %s: %w", f.event, err)
	}

	gen, err := newGenerator(ctx)
	if err != nil {
		return nil, picklist.Request{}, err
	}

	return gen, picklist.Request{
		Teams:          ds.Teams,
		Priorities:     priorities,
		PickPosition:   models.PickPosition(f.position),
		Strategy:       f.strategy,
		ExcludedTeams:  f.excluded,
		DatasetVersion: ds.Version,
	}, nil
}

func logResult(result *models.PicklistResult) {
	appLog.WithFields(logrus.Fields{
		"status":      result.Status,
		"mode":        result.Mode,
		"teams":       len(result.Entries),
		"ranked":      result.RankedCount(),
		"auto_added":  len(result.AutoAdded),
		"fingerprint": result.Fingerprint,
		"duration":    result.Duration.String(),
	}).Info("Picklist ready")
}

// resultError turns a non-ok result into a non-zero exit.
func resultError(result *models.PicklistResult) error {
	if result.IsOK() {
		return nil
	}
	return fmt.Errorf("picklist %s: %s", result.Status, result.Message)
}
