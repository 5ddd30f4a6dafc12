package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/runner"
	"github.com/policypulse/policypulse/internal/topics"
)

// The single-step commands rerun one pipeline stage for a case. They read
// whatever upstream artifacts the stage needs from disk and fail with the
// producing command's name when one is missing.

var downloadFredCmd = &cobra.Command{
	Use:   "download-fred [case]",
	Short: "Download the case's FRED house price index series",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.DownloadFRED(ctx, def)
		})
	},
}

var sentimentCmd = &cobra.Command{
	Use:   "sentiment [case]",
	Short: "Fetch posts for the case and score their sentiment",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := caseOptionsChecked()
		if err != nil {
			return err
		}
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.Sentiment(ctx, def, opts)
		})
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [case]",
	Short: "Aggregate scored posts into daily sentiment and a trend chart",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.Aggregate(ctx, def)
		})
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics [case]",
	Short: "Fit discussion topics over the case's scored posts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.Topics(ctx, def, topics.Options{
				Topics:   flagTopics,
				TopTerms: flagTopTerms,
				Seed:     flagTopicSeed,
			})
		})
	},
}

var policyCmd = &cobra.Command{
	Use:   "policy [case]",
	Short: "Build the monthly price series and the pre/post policy summary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.Policy(ctx, def)
		})
	},
}

var causalCmd = &cobra.Command{
	Use:   "causal [case]",
	Short: "Estimate the policy's price impact against a counterfactual",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.Causal(ctx, def, flagWindow)
		})
	},
}

var predictLagsCmd = &cobra.Command{
	Use:   "predict-lags [case]",
	Short: "Test how sentiment at different lags predicts price changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(args, func(ctx context.Context, r *runner.Runner, def cases.Definition) error {
			return r.PredictLags(ctx, def, flagMaxLag)
		})
	},
}

func init() {
	sentimentCmd.Flags().IntVar(&flagLimit, "limit", 0, "max posts to fetch (0 = case setting)")
	sentimentCmd.Flags().StringVar(&flagSource, "source", "", "primary post source: reddit, gdelt, or rss (default: case setting)")
	addTopicFlags(topicsCmd)
	causalCmd.Flags().IntVar(&flagWindow, "window", causal.DefaultWindowMonths, "months each side of the policy date (negative = whole series)")
	predictLagsCmd.Flags().IntVar(&flagMaxLag, "max-lag", predict.DefaultMaxLag, "largest sentiment lag in months to try")

	rootCmd.AddCommand(downloadFredCmd, sentimentCmd, aggregateCmd, topicsCmd, policyCmd, causalCmd, predictLagsCmd)
}

// runStep resolves the case and runs one pipeline stage against it.
func runStep(args []string, step func(context.Context, *runner.Runner, cases.Definition) error) error {
	def, err := resolveCase(args)
	if err != nil {
		return err
	}
	r, err := buildRunner()
	if err != nil {
		return err
	}
	ctx, stop := workflowContext()
	defer stop()

	return step(ctx, r, def)
}

// resolveCase picks the case for a single-step command: the positional
// argument when given, the --config file otherwise.
func resolveCase(args []string) (cases.Definition, error) {
	if len(args) > 0 {
		return caseFromArg(args[0])
	}
	if flagCaseConfig != "" {
		return cases.Load(flagCaseConfig)
	}
	return cases.Definition{}, fmt.Errorf("specify a case ID (%s) or --config with a case file", strings.Join(cases.BuiltinIDs(), ", "))
}
