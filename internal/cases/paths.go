package cases

import "path/filepath"

// Paths resolves every artifact location for one case. Keeping the layout in
// one place means the runner, the analyses, and the dashboard never disagree
// about where a file lives.
type Paths struct {
	// Inputs
	RawPrices string // data/raw/<city>_hpi_fred.csv
	Sentiment string // data/processed/<city>_sentiment.csv

	// Report directory for the case
	ReportDir string // reports/<city>

	// Daily sentiment aggregation
	SentimentDaily string
	SentimentTrend string

	// Policy EDA
	MonthlySeries string
	PolicySummary string
	PolicyTrend   string

	// Causal impact
	CausalEffects string
	CausalSummary string
	CausalPlot    string

	// Lagged prediction
	LagMetrics     string
	GrangerResults string
	LagSummary     string
	LagFitPlot     string

	// Topic modeling
	TopicsDir          string
	TopicKeywords      string
	TopicEvolution     string
	TopicEvolutionPlot string

	// Run manifest
	Manifest string
}

// NewPaths builds the artifact layout for a city under the given data and
// reports roots.
func NewPaths(dataDir, reportsDir, cityID string) Paths {
	reportDir := filepath.Join(reportsDir, cityID)
	topicsDir := filepath.Join(reportDir, "topics")
	return Paths{
		RawPrices: filepath.Join(dataDir, "raw", cityID+"_hpi_fred.csv"),
		Sentiment: filepath.Join(dataDir, "processed", cityID+"_sentiment.csv"),

		ReportDir: reportDir,

		SentimentDaily: filepath.Join(reportDir, "sentiment_daily.csv"),
		SentimentTrend: filepath.Join(reportDir, "sentiment_trend.png"),

		MonthlySeries: filepath.Join(reportDir, "monthly_series.csv"),
		PolicySummary: filepath.Join(reportDir, "policy_summary.csv"),
		PolicyTrend:   filepath.Join(reportDir, "policy_trend.png"),

		CausalEffects: filepath.Join(reportDir, "causal_effects.csv"),
		CausalSummary: filepath.Join(reportDir, "causal_summary.csv"),
		CausalPlot:    filepath.Join(reportDir, "causal_counterfactual.png"),

		LagMetrics:     filepath.Join(reportDir, "lag_model_metrics.csv"),
		GrangerResults: filepath.Join(reportDir, "granger_results.csv"),
		LagSummary:     filepath.Join(reportDir, "lag_prediction_summary.csv"),
		LagFitPlot:     filepath.Join(reportDir, "lag_prediction_fit.png"),

		TopicsDir:          topicsDir,
		TopicKeywords:      filepath.Join(topicsDir, "topic_keywords.csv"),
		TopicEvolution:     filepath.Join(topicsDir, "topic_evolution.csv"),
		TopicEvolutionPlot: filepath.Join(topicsDir, "topic_evolution.png"),

		Manifest: filepath.Join(reportDir, "run_manifest.json"),
	}
}

// ComparisonPaths resolves the cross-city comparison artifacts.
type ComparisonPaths struct {
	Dir            string // reports/comparison
	Table          string
	DivergencePlot string
	Manifest       string
}

// NewComparisonPaths builds the comparison artifact layout.
func NewComparisonPaths(reportsDir string) ComparisonPaths {
	dir := filepath.Join(reportsDir, "comparison")
	return ComparisonPaths{
		Dir:            dir,
		Table:          filepath.Join(dir, "cross_city_comparison.csv"),
		DivergencePlot: filepath.Join(dir, "cross_city_divergence.png"),
		Manifest:       filepath.Join(dir, "run_manifest.json"),
	}
}
