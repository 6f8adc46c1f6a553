package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "analyze <user-id>",
		Short: "Run one analysis for a user and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Analyzer.Analyze(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "cli", "reason recorded with the adaptation")
	return cmd
}
