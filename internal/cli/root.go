/*
Package cli implements the dropsense command line.

Usage:

	dropsense [command]

Available Commands:

	serve       Run the HTTP API and the analysis worker
	migrate     Create the PostgreSQL schema
	analyze     Run one analysis for a user and print the report
	assess      Score a risk questionnaire for a user
	config      Inspect the effective configuration
	version     Show version information
*/
package cli

import (
	"fmt"

	"github.com/FairForge/dropsense/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configPath string
	v          *viper.Viper
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "dropsense",
		Short: "Behavioral personalization engine for airdrop hunters",
		Long: `dropsense ingests interaction events from an airdrop-hunting app, learns
each user's behavior, risk tolerance and chain preferences, and serves an
adapted interface configuration plus actionable insights.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML or TOML)")
	flags.String("log-level", "", "override logging.level")
	flags.String("log-format", "", "override logging.format (json or text)")
	_ = opts.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newAssessCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.configPath)
}

func (o *rootOptions) app() (*App, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return NewApp(cfg)
}
