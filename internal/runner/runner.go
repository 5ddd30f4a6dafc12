// Package runner executes the analysis workflows. A workflow is an ordered
// list of steps over one city case (download, sentiment, aggregation, topics,
// policy, causal, lags) or over all cases at once (comparison, full platform).
// Every run writes a manifest recording which steps ran, failed, or were
// skipped, stamped with the run ID that also appears on the run's log lines.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/policypulse/policypulse/internal/acquire"
	"github.com/policypulse/policypulse/internal/analyze"
	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/compare"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/platform/runid"
	"github.com/policypulse/policypulse/internal/policy"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/report"
	"github.com/policypulse/policypulse/internal/sentiment"
	"github.com/policypulse/policypulse/internal/topics"
)

// PostFetcher acquires raw posts for sentiment scoring.
type PostFetcher interface {
	Posts(ctx context.Context, req acquire.PostRequest) ([]domain.Post, domain.Source, error)
}

// PriceFetcher downloads a FRED observation series.
type PriceFetcher interface {
	FetchSeries(ctx context.Context, seriesID string) ([]domain.PricePoint, error)
}

// Runner is the orchestration layer. It is the only component that calls more
// than one analysis package, and it owns the manifest and workflow metrics.
type Runner struct {
	dataDir    string
	reportsDir string
	posts      PostFetcher
	prices     PriceFetcher
	analyzer   *sentiment.Analyzer
	clock      clockwork.Clock
}

// New creates a runner rooted at the given data and reports directories.
// A nil clock falls back to the wall clock.
func New(dataDir, reportsDir string, posts PostFetcher, prices PriceFetcher, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Runner{
		dataDir:    dataDir,
		reportsDir: reportsDir,
		posts:      posts,
		prices:     prices,
		analyzer:   sentiment.NewAnalyzer(),
		clock:      clock,
	}
}

func (r *Runner) casePaths(cityID string) cases.Paths {
	return cases.NewPaths(r.dataDir, r.reportsDir, cityID)
}

// CaseOptions tunes a case workflow. Zero values mean "use the case or
// package default"; the skip flags drop whole step groups, mirroring how an
// analyst reruns only the half of the pipeline they are iterating on.
type CaseOptions struct {
	SkipDownload  bool
	SkipSentiment bool
	SkipPolicy    bool

	SentimentLimit  int
	SentimentSource domain.Source
	MaxLag          int
	WindowMonths    int
	Topics          topics.Options
}

func (o CaseOptions) normalized(def cases.Definition) CaseOptions {
	if o.SentimentLimit < 1 {
		o.SentimentLimit = def.SentimentLimit
	}
	if o.SentimentSource == "" {
		o.SentimentSource = def.SentimentSource
	}
	if o.MaxLag < 1 {
		o.MaxLag = predict.DefaultMaxLag
	}
	if o.WindowMonths == 0 {
		o.WindowMonths = causal.DefaultWindowMonths
	}
	return o
}

// step is one unit of a workflow. Artifacts are the paths the step promises
// to write on success; they end up in the manifest.
type step struct {
	name      string
	skip      bool
	artifacts []string
	run       func(ctx context.Context) error
}

// abortsWorkflow decides whether a step failure stops the run. Thin data is
// a property of one analysis, not the run: later steps may still have what
// they need, and dependents fail on their own with a missing-upstream error.
// Anything else (network, config, internal) poisons the whole run.
func abortsWorkflow(err error) bool {
	switch apperrors.TypeOf(err) {
	case apperrors.TypeInsufficientData, apperrors.TypeMissingUpstream:
		return false
	}
	return true
}

// execute runs the steps in order, records a manifest at manifestPath, and
// returns an error when any step failed. The run ID is taken from ctx when
// present so nested workflows share their parent's ID.
func (r *Runner) execute(ctx context.Context, workflow, cityID, manifestPath string, steps []step) (report.Manifest, error) {
	runID, ok := runid.ID(ctx)
	if !ok {
		runID = runid.New()
		ctx = runid.WithID(ctx, runID)
	}

	log := slog.With("workflow", workflow)
	if cityID != "" {
		log = log.With("city", cityID)
	}

	start := r.clock.Now()
	m := report.Manifest{
		RunID:     runID,
		Workflow:  workflow,
		CityID:    cityID,
		StartedAt: start.UTC(),
	}
	log.InfoContext(ctx, "Workflow started", "steps", len(steps))

	var fatal, firstErr error
	var failed []string
	for _, s := range steps {
		switch {
		case fatal != nil:
			m.Steps = append(m.Steps, report.StepResult{Name: s.name, Status: report.StepSkipped})
		case s.skip:
			log.InfoContext(ctx, "Step skipped", "step", s.name)
			m.Steps = append(m.Steps, report.StepResult{Name: s.name, Status: report.StepSkipped})
		default:
			err := s.run(ctx)
			if err == nil {
				m.Steps = append(m.Steps, report.StepResult{Name: s.name, Status: report.StepOK, Artifacts: s.artifacts})
				continue
			}
			metrics.AnalysisFailuresTotal.WithLabelValues(s.name, string(apperrors.TypeOf(err))).Inc()
			m.Steps = append(m.Steps, report.StepResult{Name: s.name, Status: report.StepFailed, Error: err.Error()})
			failed = append(failed, s.name)
			if firstErr == nil {
				firstErr = err
			}
			if abortsWorkflow(err) {
				log.ErrorContext(ctx, "Step failed, aborting workflow", "step", s.name, "error", err)
				fatal = fmt.Errorf("step %s: %w", s.name, err)
			} else {
				log.WarnContext(ctx, "Step failed, continuing with remaining steps", "step", s.name, "error", err)
			}
		}
	}

	m.FinishedAt = r.clock.Now().UTC()
	manifestErr := report.WriteManifest(manifestPath, m)
	if manifestErr != nil {
		log.ErrorContext(ctx, "Manifest write failed", "path", manifestPath, "error", manifestErr)
	}

	result := "ok"
	switch {
	case fatal != nil:
		result = "error"
	case m.Failed():
		result = "partial"
	}
	metrics.WorkflowDuration.WithLabelValues(workflow).Observe(r.clock.Since(start).Seconds())
	metrics.WorkflowRunsTotal.WithLabelValues(workflow, result).Inc()
	log.InfoContext(ctx, "Workflow finished", "result", result)

	switch {
	case fatal != nil:
		return m, fatal
	case len(failed) == 1:
		return m, fmt.Errorf("step %s: %w", failed[0], firstErr)
	case len(failed) > 1:
		return m, fmt.Errorf("steps %s failed, first error: %w", strings.Join(failed, ", "), firstErr)
	case manifestErr != nil:
		return m, manifestErr
	}
	return m, nil
}

// RunCase executes the full pipeline for one city under the given workflow
// name. Skip flags drop steps as a group: skipping sentiment also skips
// aggregation and topics, and the lag analysis needs both halves.
func (r *Runner) RunCase(ctx context.Context, workflow string, def cases.Definition, opts CaseOptions) (report.Manifest, error) {
	opts = opts.normalized(def)
	paths := r.casePaths(def.CityID)

	steps := []step{
		{
			name:      report.ProducerDownload,
			skip:      opts.SkipDownload,
			artifacts: []string{paths.RawPrices},
			run:       func(ctx context.Context) error { return r.downloadPrices(ctx, def, paths) },
		},
		{
			name:      report.ProducerSentiment,
			skip:      opts.SkipSentiment,
			artifacts: []string{paths.Sentiment},
			run:       func(ctx context.Context) error { return r.scorePosts(ctx, def, paths, opts) },
		},
		{
			name:      report.ProducerAggregate,
			skip:      opts.SkipSentiment,
			artifacts: []string{paths.SentimentDaily, paths.SentimentTrend},
			run: func(ctx context.Context) error {
				_, err := analyze.Run(paths, def.CityName)
				return err
			},
		},
		{
			name:      report.ProducerTopics,
			skip:      opts.SkipSentiment,
			artifacts: []string{paths.TopicKeywords, paths.TopicEvolution, paths.TopicEvolutionPlot},
			run: func(ctx context.Context) error {
				_, err := topics.Run(paths, def.CityName, opts.Topics)
				return err
			},
		},
		{
			name:      report.ProducerPolicy,
			skip:      opts.SkipPolicy,
			artifacts: []string{paths.MonthlySeries, paths.PolicySummary, paths.PolicyTrend},
			run: func(ctx context.Context) error {
				_, err := policy.Run(paths, def)
				return err
			},
		},
		{
			name:      report.ProducerCausal,
			skip:      opts.SkipPolicy,
			artifacts: []string{paths.CausalEffects, paths.CausalSummary, paths.CausalPlot},
			run: func(ctx context.Context) error {
				_, err := causal.Run(paths, def, opts.WindowMonths)
				return err
			},
		},
		{
			name:      report.ProducerPredict,
			skip:      opts.SkipSentiment || opts.SkipPolicy,
			artifacts: []string{paths.LagMetrics, paths.GrangerResults, paths.LagSummary, paths.LagFitPlot},
			run: func(ctx context.Context) error {
				_, err := predict.Run(paths, def, opts.MaxLag)
				return err
			},
		},
	}

	return r.execute(ctx, workflow, def.CityID, paths.Manifest, steps)
}

func (r *Runner) downloadPrices(ctx context.Context, def cases.Definition, paths cases.Paths) error {
	points, err := r.prices.FetchSeries(ctx, def.FredSeriesID)
	if err != nil {
		return err
	}
	if err := report.WriteRawPrices(paths.RawPrices, def.PriceColumn(), points); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Downloaded price series",
		"city", def.CityID, "series_id", def.FredSeriesID, "observations", len(points))
	return nil
}

func (r *Runner) scorePosts(ctx context.Context, def cases.Definition, paths cases.Paths, opts CaseOptions) error {
	req := acquire.PostRequest{
		Query:     def.SentimentQuery,
		Subreddit: def.Subreddit,
		Limit:     opts.SentimentLimit,
		Feeds:     def.RSSFeeds,
		Primary:   opts.SentimentSource,
	}
	posts, servedBy, err := r.posts.Posts(ctx, req)
	if err != nil {
		return err
	}

	records := r.analyzer.ScorePosts(posts, def.SentimentQuery)
	if err := report.WriteCSV(paths.Sentiment, records); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Scored posts",
		"city", def.CityID, "source", servedBy, "rows", len(records))
	return nil
}

// DownloadFRED runs only the price download for one case.
func (r *Runner) DownloadFRED(ctx context.Context, def cases.Definition) error {
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerDownload, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerDownload,
		artifacts: []string{paths.RawPrices},
		run:       func(ctx context.Context) error { return r.downloadPrices(ctx, def, paths) },
	}})
	return err
}

// Sentiment runs only post acquisition and scoring for one case.
func (r *Runner) Sentiment(ctx context.Context, def cases.Definition, opts CaseOptions) error {
	opts = opts.normalized(def)
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerSentiment, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerSentiment,
		artifacts: []string{paths.Sentiment},
		run:       func(ctx context.Context) error { return r.scorePosts(ctx, def, paths, opts) },
	}})
	return err
}

// Aggregate runs only the daily sentiment aggregation for one case.
func (r *Runner) Aggregate(ctx context.Context, def cases.Definition) error {
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerAggregate, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerAggregate,
		artifacts: []string{paths.SentimentDaily, paths.SentimentTrend},
		run: func(ctx context.Context) error {
			_, err := analyze.Run(paths, def.CityName)
			return err
		},
	}})
	return err
}

// Topics runs only the topic model for one case.
func (r *Runner) Topics(ctx context.Context, def cases.Definition, opts topics.Options) error {
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerTopics, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerTopics,
		artifacts: []string{paths.TopicKeywords, paths.TopicEvolution, paths.TopicEvolutionPlot},
		run: func(ctx context.Context) error {
			_, err := topics.Run(paths, def.CityName, opts)
			return err
		},
	}})
	return err
}

// Policy runs only the policy window analysis for one case.
func (r *Runner) Policy(ctx context.Context, def cases.Definition) error {
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerPolicy, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerPolicy,
		artifacts: []string{paths.MonthlySeries, paths.PolicySummary, paths.PolicyTrend},
		run: func(ctx context.Context) error {
			_, err := policy.Run(paths, def)
			return err
		},
	}})
	return err
}

// Causal runs only the counterfactual impact analysis for one case. A
// windowMonths of zero falls back to the default; a negative value uses
// the full series.
func (r *Runner) Causal(ctx context.Context, def cases.Definition, windowMonths int) error {
	if windowMonths == 0 {
		windowMonths = causal.DefaultWindowMonths
	}
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerCausal, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerCausal,
		artifacts: []string{paths.CausalEffects, paths.CausalSummary, paths.CausalPlot},
		run: func(ctx context.Context) error {
			_, err := causal.Run(paths, def, windowMonths)
			return err
		},
	}})
	return err
}

// PredictLags runs only the lagged prediction analysis for one case.
func (r *Runner) PredictLags(ctx context.Context, def cases.Definition, maxLag int) error {
	paths := r.casePaths(def.CityID)
	_, err := r.execute(ctx, report.ProducerPredict, def.CityID, paths.Manifest, []step{{
		name:      report.ProducerPredict,
		artifacts: []string{paths.LagMetrics, paths.GrangerResults, paths.LagSummary, paths.LagFitPlot},
		run: func(ctx context.Context) error {
			_, err := predict.Run(paths, def, maxLag)
			return err
		},
	}})
	return err
}

// CompareCities builds the cross-city comparison from the built-in cases'
// existing artifacts.
func (r *Runner) CompareCities(ctx context.Context) ([]compare.Row, error) {
	out := cases.NewComparisonPaths(r.reportsDir)

	ids := cases.BuiltinIDs()
	cities := make([]compare.City, 0, len(ids))
	for _, id := range ids {
		def, err := cases.Builtin(id)
		if err != nil {
			return nil, err
		}
		cities = append(cities, compare.City{Def: def, Paths: r.casePaths(id)})
	}

	var rows []compare.Row
	_, err := r.execute(ctx, report.ProducerCompare, "", out.Manifest, []step{{
		name:      report.ProducerCompare,
		artifacts: []string{out.Table, out.DivergencePlot},
		run: func(ctx context.Context) error {
			var err error
			rows, err = compare.Run(out, cities)
			return err
		},
	}})
	return rows, err
}

// FullPlatform runs every built-in case and then the comparison, all under
// one run ID. A failed case is logged and kept out of the comparison rather
// than stopping the platform run; the returned error reflects only the
// comparison, which fails when no case produced a usable summary.
func (r *Runner) FullPlatform(ctx context.Context, opts CaseOptions) ([]compare.Row, error) {
	if _, ok := runid.ID(ctx); !ok {
		ctx = runid.WithID(ctx, runid.New())
	}
	start := r.clock.Now()

	casesFailed := 0
	for _, id := range cases.BuiltinIDs() {
		def, err := cases.Builtin(id)
		if err != nil {
			return nil, err
		}
		if _, err := r.RunCase(ctx, id+"-case", def, opts); err != nil {
			casesFailed++
			slog.WarnContext(ctx, "City case failed during full platform run", "city", id, "error", err)
		}
	}

	rows, err := r.CompareCities(ctx)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case casesFailed > 0:
		result = "partial"
	}
	metrics.WorkflowDuration.WithLabelValues("full-platform").Observe(r.clock.Since(start).Seconds())
	metrics.WorkflowRunsTotal.WithLabelValues("full-platform", result).Inc()
	slog.InfoContext(ctx, "Full platform run finished", "result", result, "failed_cases", casesFailed)
	return rows, err
}
