package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/dataset"
)

var importEvent string

func init() {
	importCmd.Flags().StringVarP(&importEvent, "event", "e", "", "Event key to import from --dataset")
	_ = importCmd.MarkFlagRequired("event")
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a JSON dataset into the postgres team_metrics table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if datasetPath == "" {
			return fmt.Errorf("--dataset is required for import")
		}

		ds, err := dataset.NewFileProvider(datasetPath).Load(ctx, importEvent)
		if err != nil {
			return fmt.Errorf("failed to load event %s: %w", importEvent, err)
		}

		repos, err := openRepositories(ctx)
		if err != nil {
			return err
		}
		rows, err := repos.Teams.Import(ctx, ds)
		if err != nil {
			return err
		}

		appLog.WithFields(logrus.Fields{
			"event": ds.Event,
			"teams": len(ds.Teams),
			"rows":  rows,
		}).Info("Imported team metrics")
		return nil
	},
}
