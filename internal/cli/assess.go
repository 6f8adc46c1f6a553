package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/FairForge/dropsense/internal/scoring"
	"github.com/spf13/cobra"
)

func newAssessCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "assess <user-id>",
		Short: "Score a risk questionnaire for a user",
		Long: `Reads the questionnaire answers as JSON (every answer 1-5) from --file or
stdin, stores the assessment and prints the scored profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open answers: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			answers, err := readAnswers(in)
			if err != nil {
				return err
			}

			app, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			saved, err := app.Analyzer.SubmitAssessment(cmd.Context(), args[0], answers)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(saved)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "answers JSON file, - for stdin")
	return cmd
}

func readAnswers(r io.Reader) (scoring.RiskAnswers, error) {
	var answers scoring.RiskAnswers
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&answers); err != nil {
		return answers, fmt.Errorf("decode answers: %w", err)
	}
	return answers, nil
}
