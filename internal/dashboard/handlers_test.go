package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/compare"
	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/platform/config"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/report"
	"github.com/policypulse/policypulse/internal/topics"
)

func newTestServer(t *testing.T, checks ...HealthCheck) (*Server, cases.Paths) {
	t.Helper()
	dataDir := t.TempDir()
	reportsDir := t.TempDir()

	cfg := &config.Config{
		Port:           "8080",
		DataDir:        dataDir,
		ReportsDir:     reportsDir,
		ReportCacheTTL: 30 * time.Second,
	}
	store := NewReportStore(dataDir, reportsDir, cfg.ReportCacheTTL, clockwork.NewFakeClock())

	srv, err := NewServer(cfg, store, checks)
	require.NoError(t, err)
	return srv, cases.NewPaths(dataDir, reportsDir, "la")
}

func get(srv *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestCaseSummaryAPI(t *testing.T) {
	srv, paths := newTestServer(t)
	writeSummary(t, paths.PolicySummary, 5)

	rec := get(srv, "/api/cases/la/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"metric":"percent_change"`)
}

func TestCaseSummaryAPI_MissingArtifact(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/api/cases/la/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_upstream")
}

func TestCaseSummaryAPI_UnknownCity(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/api/cases/atlantis/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCaseMonthlyAPI(t *testing.T) {
	srv, paths := newTestServer(t)
	month, err := domain.ParseMonth("2023-03-01")
	require.NoError(t, err)
	require.NoError(t, report.WriteCSV(paths.MonthlySeries, []domain.MonthlyPoint{
		{Month: month, Value: 210.5, Period: domain.PeriodPre},
	}))

	rec := get(srv, "/api/cases/la/monthly")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"monthly_avg_value":210.5`)
	assert.Contains(t, body, `"period":"pre_policy"`)
}

func TestCaseCausalAPI(t *testing.T) {
	srv, paths := newTestServer(t)
	require.NoError(t, report.WriteCSV(paths.CausalSummary, []domain.SummaryMetric{
		{Metric: "avg_post_policy_treatment_effect", Value: 5},
	}))
	month, err := domain.ParseMonth("2023-12-01")
	require.NoError(t, err)
	require.NoError(t, report.WriteCSV(paths.CausalEffects, []causal.Row{
		{Month: month, Observed: 146, T: 23, Post: 1, TPost: 23, Counterfactual: 141, Lo: 141, Hi: 141, Effect: 5},
	}))

	rec := get(srv, "/api/cases/la/causal")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"avg_post_policy_treatment_effect"`)
	assert.Contains(t, body, `"y":146`)
	assert.Contains(t, body, `"cf_ci_low":141`)
}

func TestListCasesAPI(t *testing.T) {
	srv, paths := newTestServer(t)

	rec := get(srv, "/api/cases")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"id":"la"`)
	assert.Contains(t, body, `"id":"nyc"`)
	assert.NotContains(t, body, `"last_run"`)

	m := report.Manifest{
		RunID:      "run-1",
		Workflow:   "la-case",
		FinishedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Steps:      []report.StepResult{{Name: report.ProducerPolicy, Status: report.StepOK}},
	}
	require.NoError(t, report.WriteManifest(paths.Manifest, m))
	srv.store.Clear()

	rec = get(srv, "/api/cases")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, `"run_id":"run-1"`)
	assert.Contains(t, body, `"failed":false`)
}

func TestCaseLagsAPI(t *testing.T) {
	srv, paths := newTestServer(t)
	require.NoError(t, report.WriteCSV(paths.LagSummary, []domain.SummaryMetric{{Metric: "best_lag", Value: 2}}))
	require.NoError(t, report.WriteCSV(paths.LagMetrics, []predict.LagMetric{{Lag: 0, R2: 0.1, RMSE: 1.5}}))
	require.NoError(t, report.WriteCSV(paths.GrangerResults, []predict.GrangerResult{{Lag: 1, PValue: 0.03}}))

	rec := get(srv, "/api/cases/la/lags")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"metric":"best_lag"`)
	assert.Contains(t, body, `"ssr_ftest_pvalue":0.03`)
}

func TestCaseTopicsAPI(t *testing.T) {
	srv, paths := newTestServer(t)
	require.NoError(t, report.WriteCSV(paths.TopicKeywords, []topics.KeywordRow{
		{Topic: 0, TopTerms: "rent, eviction, tenants"},
		{Topic: 1, TopTerms: "mortgage, rates, lenders"},
	}))
	month, err := domain.ParseMonth("2024-01-01")
	require.NoError(t, err)
	require.NoError(t, report.WriteTopicEvolution(paths.TopicEvolution, 2, []report.TopicEvolutionRow{
		{Month: month, Weights: []float64{0.7, 0.3}},
	}))

	rec := get(srv, "/api/cases/la/topics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"topics":2`)
	assert.Contains(t, body, `"top_terms":"rent, eviction, tenants"`)
	assert.Contains(t, body, `"weights":[0.7,0.3]`)
}

func TestComparisonAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	out := cases.NewComparisonPaths(srv.config.ReportsDir)

	change := 11.0
	rank := 1
	rows := []compare.Row{
		{City: "Los Angeles", PercentChange: &change, EffectivenessRank: &rank},
		{City: "New York City", Unavailable: true},
	}
	require.NoError(t, report.WriteCSV(out.Table, rows))

	rec := get(srv, "/api/comparison")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"city":"Los Angeles"`)
	assert.Contains(t, body, `"effectiveness_rank":1`)
	assert.Contains(t, body, `"unavailable":true`)
	assert.Contains(t, body, `"percent_change":null`)
}

func TestOverviewPage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Los Angeles")
	assert.Contains(t, body, "New York City")
	assert.Contains(t, body, "no runs yet")
}

func TestCasePage(t *testing.T) {
	srv, paths := newTestServer(t)
	writeSummary(t, paths.PolicySummary, 5)
	require.NoError(t, report.EnsureDir(filepath.Dir(paths.PolicyTrend)))
	require.NoError(t, os.WriteFile(paths.PolicyTrend, []byte("png"), 0o644))

	rec := get(srv, "/cases/la")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Measure ULA")
	assert.Contains(t, body, "percent_change")
	assert.Contains(t, body, "/reports/la/policy_trend.png")
	assert.Contains(t, body, "No impact estimate yet")
}

func TestCasePage_UnknownCity(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(srv, "/cases/atlantis")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticReports(t *testing.T) {
	srv, paths := newTestServer(t)
	require.NoError(t, report.EnsureDir(filepath.Dir(paths.PolicyTrend)))
	require.NoError(t, os.WriteFile(paths.PolicyTrend, []byte("png"), 0o644))

	rec := get(srv, "/reports/la/policy_trend.png")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t,
		HealthCheck{Name: "reports_dir", Check: func(context.Context) error { return nil }},
	)

	rec := get(srv, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = get(srv, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	rec = get(srv, "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness_FailingCheck(t *testing.T) {
	srv, _ := newTestServer(t,
		HealthCheck{Name: "reports_dir", Check: func(context.Context) error { return errors.New("gone") }},
	)

	rec := get(srv, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"reports_dir"`)
}
