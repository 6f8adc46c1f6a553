package cli

import (
	"fmt"
	"runtime"

	"github.com/FairForge/dropsense/internal/api"
	"github.com/spf13/cobra"
)

// SetVersion records build metadata for the version command and /health.
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
	api.Version = v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the current version, commit hash, and build date.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Version:  %s\n", version)
			_, _ = fmt.Fprintf(out, "Commit:   %s\n", commit)
			_, _ = fmt.Fprintf(out, "Built:    %s\n", date)
			_, _ = fmt.Fprintf(out, "Go:       %s\n", runtime.Version())
			return nil
		},
	}
}
