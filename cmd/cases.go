package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/compare"
	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/runner"
	"github.com/policypulse/policypulse/internal/topics"
)

var (
	flagSkipDownload  bool
	flagSkipSentiment bool
	flagSkipPolicy    bool
	flagLimit         int
	flagSource        string
	flagMaxLag        int
	flagWindow        int
	flagTopics        int
	flagTopTerms      int
	flagTopicSeed     int64
)

var laCaseCmd = &cobra.Command{
	Use:   "la-case",
	Short: "Run the Los Angeles / Measure ULA case end to end",
	Args:  cobra.NoArgs,
	RunE:  runBuiltinCase("la"),
}

var nycCaseCmd = &cobra.Command{
	Use:   "nyc-case",
	Short: "Run the New York City / HSTPA case end to end",
	Args:  cobra.NoArgs,
	RunE:  runBuiltinCase("nyc"),
}

var runCaseCmd = &cobra.Command{
	Use:   "run-case",
	Short: "Run a custom case from a definition file",
	Long: `Run the full pipeline for a case described by a JSON definition file
passed with --config. The file sets the city, the policy date, the FRED
series, and the sentiment query; see the builtin la and nyc cases for the
field layout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagCaseConfig == "" {
			return fmt.Errorf("run-case requires --config with a case definition file")
		}
		def, err := cases.Load(flagCaseConfig)
		if err != nil {
			return err
		}
		return runCaseWorkflow(cmd, cmd.Name(), def)
	},
}

var fullPlatformCmd = &cobra.Command{
	Use:   "full-platform",
	Short: "Run every builtin case and the cross-city comparison",
	Long: `Run the la and nyc cases end to end and then the cross-city
comparison. A city whose pipeline fails is marked unavailable in the
comparison instead of sinking the whole run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := buildRunner()
		if err != nil {
			return err
		}
		ctx, stop := workflowContext()
		defer stop()

		rows, err := r.FullPlatform(ctx, caseOptions())
		if err != nil {
			return err
		}
		printComparison(cmd.OutOrStdout(), rows)
		return nil
	},
}

var compareCitiesCmd = &cobra.Command{
	Use:   "compare-cities",
	Short: "Compare policy effectiveness across the builtin cases",
	Long: `Build the cross-city comparison from artifacts already on disk.
Run the city cases first (or full-platform, which does both).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := buildRunner()
		if err != nil {
			return err
		}
		ctx, stop := workflowContext()
		defer stop()

		rows, err := r.CompareCities(ctx)
		if err != nil {
			return err
		}
		printComparison(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{laCaseCmd, nycCaseCmd, runCaseCmd, fullPlatformCmd} {
		addCaseFlags(cmd)
	}
	rootCmd.AddCommand(laCaseCmd, nycCaseCmd, runCaseCmd, fullPlatformCmd, compareCitiesCmd)
}

// addCaseFlags registers the tuning flags shared by the end-to-end case
// workflows. The flags bind to shared variables; only one workflow runs per
// invocation.
func addCaseFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagSkipDownload, "skip-download", false, "reuse the raw price series already on disk")
	cmd.Flags().BoolVar(&flagSkipSentiment, "skip-sentiment", false, "skip post acquisition, sentiment, aggregation, and topics")
	cmd.Flags().BoolVar(&flagSkipPolicy, "skip-policy", false, "skip the price analyses (policy, causal)")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "max posts to fetch (0 = case setting)")
	cmd.Flags().StringVar(&flagSource, "source", "", "primary post source: reddit, gdelt, or rss (default: case setting)")
	cmd.Flags().IntVar(&flagMaxLag, "max-lag", predict.DefaultMaxLag, "largest sentiment lag in months for the prediction grid")
	cmd.Flags().IntVar(&flagWindow, "window", causal.DefaultWindowMonths, "months each side of the policy date for the causal estimate (negative = whole series)")
	addTopicFlags(cmd)
}

func addTopicFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&flagTopics, "topics", topics.DefaultTopics, "number of topics to fit")
	cmd.Flags().IntVar(&flagTopTerms, "top-terms", topics.DefaultTopTerms, "keywords listed per topic")
	cmd.Flags().Int64Var(&flagTopicSeed, "seed", topics.DefaultSeed, "clustering seed")
}

func runBuiltinCase(id string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		def, err := cases.Builtin(id)
		if err != nil {
			return err
		}
		return runCaseWorkflow(cmd, cmd.Name(), def)
	}
}

func runCaseWorkflow(cmd *cobra.Command, workflow string, def cases.Definition) error {
	opts, err := caseOptionsChecked()
	if err != nil {
		return err
	}
	r, err := buildRunner()
	if err != nil {
		return err
	}
	ctx, stop := workflowContext()
	defer stop()

	if _, err := r.RunCase(ctx, workflow, def, opts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Case %s finished, reports in %s\n",
		def.CityID, filepath.Join(flagReportsDir, def.CityID))
	return nil
}

func caseOptions() runner.CaseOptions {
	return runner.CaseOptions{
		SkipDownload:    flagSkipDownload,
		SkipSentiment:   flagSkipSentiment,
		SkipPolicy:      flagSkipPolicy,
		SentimentLimit:  flagLimit,
		SentimentSource: domain.Source(flagSource),
		MaxLag:          flagMaxLag,
		WindowMonths:    flagWindow,
		Topics: topics.Options{
			Topics:   flagTopics,
			TopTerms: flagTopTerms,
			Seed:     flagTopicSeed,
		},
	}
}

func caseOptionsChecked() (runner.CaseOptions, error) {
	if err := validSource(flagSource); err != nil {
		return runner.CaseOptions{}, err
	}
	return caseOptions(), nil
}

func validSource(s string) error {
	switch domain.Source(s) {
	case "", domain.SourceReddit, domain.SourceGDELT, domain.SourceRSS:
		return nil
	}
	return fmt.Errorf("invalid --source %q: must be reddit, gdelt, or rss", s)
}

func workflowContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printComparison renders the cross-city table the way the dashboard's
// comparison endpoint serves it, with unavailable cities called out.
func printComparison(w io.Writer, rows []compare.Row) {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
			Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignLeft}},
		}),
		tablewriter.WithRendition(tw.Rendition{Borders: tw.BorderNone}),
	)
	table.Header([]string{"city", "pre avg", "post avg", "change", "sentiment", "posts", "rank"})

	unavailable := color.New(color.FgYellow).Sprint("unavailable")
	for _, row := range rows {
		if row.Unavailable {
			table.Append([]string{row.City, unavailable, "", "", "", "", ""})
			continue
		}
		table.Append([]string{
			row.City,
			fmtFloat(row.PrePolicyAvg, "%.2f"),
			fmtFloat(row.PostPolicyAvg, "%.2f"),
			fmtFloat(row.PercentChange, "%+.2f%%"),
			fmtFloat(row.AvgSentiment, "%.4f"),
			fmtInt(row.Posts),
			fmtInt(row.EffectivenessRank),
		})
	}
	table.Render()
}

func fmtFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func fmtInt(v *int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.Itoa(*v)
}
