package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourusername/frc-picklist/internal/encoding"
	"github.com/yourusername/frc-picklist/internal/models"
)

var codesEvent string

func init() {
	codesCmd.Flags().StringVarP(&codesEvent, "event", "e", "", "Event key")
	_ = codesCmd.MarkFlagRequired("event")
}

var codesCmd = &cobra.Command{
	Use:   "codes",
	Short: "Print the metric code table generated for an event",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newProvider(cmd.Context())
		if err != nil {
			return err
		}
		ds, err := provider.Load(cmd.Context(), codesEvent)
		if err != nil {
			return fmt.Errorf("failed to load event %s: %w", codesEvent, err)
		}

		gen := encoding.NewMnemonicGenerator()
		table, err := gen.Generate(models.MetricUniverse(ds.Teams))
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tMETRIC\tCOMMON")
		for i, name := range table.Names() {
			fmt.Fprintf(w, "%s\t%s\t%v\n", table.Codes()[i], name, gen.IsCommon(name))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nprompt legend: %s\n", table.Legend())
		return nil
	},
}
