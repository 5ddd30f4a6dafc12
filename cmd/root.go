// Package cmd contains the policypulse CLI commands. Every pipeline
// workflow is a subcommand; `dashboard` serves the generated report tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/policypulse/policypulse/internal/acquire"
	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/platform/config"
	"github.com/policypulse/policypulse/internal/platform/logging"
	"github.com/policypulse/policypulse/internal/platform/version"
	"github.com/policypulse/policypulse/internal/runner"
)

var (
	flagDataDir    string
	flagReportsDir string
	flagCaseConfig string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "policypulse",
	Short: "Housing policy sentiment analytics pipeline",
	Long: `policypulse measures how housing policies land: it pulls public
discussion and house price data for a city, scores the discussion's
sentiment, estimates the policy's price impact, and writes the results
as CSV and chart artifacts under the reports directory.

Run a predefined case end to end:
  policypulse la-case
  policypulse nyc-case

Run both cases and the cross-city comparison:
  policypulse full-platform

Serve the generated reports:
  policypulse dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentPreRunE = initRuntime
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "data", "directory for raw and processed data files")
	rootCmd.PersistentFlags().StringVar(&flagReportsDir, "reports-dir", "reports", "directory for generated report artifacts")
	rootCmd.PersistentFlags().StringVar(&flagCaseConfig, "config", "", "case definition JSON file (run-case, or instead of a builtin case ID)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

// initRuntime loads configuration and wires the global logger before any
// command runs. Directory flags left at their defaults fall back to the
// DATA_DIR / REPORTS_DIR environment values.
func initRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if !rootCmd.PersistentFlags().Changed("data-dir") {
		flagDataDir = cfg.DataDir
	}
	if !rootCmd.PersistentFlags().Changed("reports-dir") {
		flagReportsDir = cfg.ReportsDir
	}
	return nil
}

// buildRunner assembles the acquisition clients and the workflow runner.
func buildRunner() (*runner.Runner, error) {
	client := acquire.NewClient(cfg.HTTPTimeout, cfg.AcquireMaxAttempts)

	fetcher := &acquire.Fetcher{
		Reddit: acquire.NewRedditClient(client, cfg.RedditUserAgent, acquire.RedditCredentials{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
		}),
		GDELT: acquire.NewGDELTClient(client),
		RSS:   acquire.NewRSSClient(client),
	}

	if cfg.AcquireCachePath != "" {
		cache, err := acquire.OpenCache(cfg.AcquireCachePath, client.Clock())
		if err != nil {
			return nil, fmt.Errorf("opening post cache: %w", err)
		}
		fetcher.Cache = cache
	}

	fred := acquire.NewFREDClient(client)
	return runner.New(flagDataDir, flagReportsDir, fetcher, fred, nil), nil
}

// caseFromArg resolves a case argument: a builtin ID like "la", or a path
// to a case definition JSON file.
func caseFromArg(arg string) (cases.Definition, error) {
	if def, err := cases.Builtin(arg); err == nil {
		return def, nil
	}
	if _, err := os.Stat(arg); err == nil {
		return cases.Load(arg)
	}
	return cases.Definition{}, fmt.Errorf("unknown case %q: not a builtin (%v) and not a case file", arg, cases.BuiltinIDs())
}

func Execute() error {
	return rootCmd.Execute()
}
