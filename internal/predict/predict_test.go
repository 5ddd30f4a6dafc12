package predict

import (
	"errors"
	"math/rand"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/report"
)

func date(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

// coupledSeries builds a sentiment series and a price series whose monthly
// change tracks sentiment two months earlier, plus a little noise so no fit
// is exactly perfect.
func coupledSeries(t *testing.T, months int) ([]domain.DailySentiment, []domain.MonthlyPoint) {
	t.Helper()
	start, err := domain.ParseMonth("2020-01-01")
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	sent := make([]float64, months)
	for i := range sent {
		sent[i] = rng.Float64()*2 - 1
	}

	price := make([]float64, months)
	price[0] = 100
	for i := 1; i < months; i++ {
		price[i] = price[i-1] + 0.05*(rng.Float64()*2-1)
		if i >= 2 {
			price[i] += 3 * sent[i-2]
		}
	}

	daily := make([]domain.DailySentiment, months)
	prices := make([]domain.MonthlyPoint, months)
	for i := 0; i < months; i++ {
		month := start.AddMonths(i)
		daily[i] = domain.DailySentiment{Date: domain.NewDate(month.Time), AvgCompound: sent[i], Posts: 10}
		prices[i] = domain.MonthlyPoint{Month: month, Value: price[i], Period: domain.PeriodPre}
	}
	return daily, prices
}

func TestMonthlySentiment_AveragesWithinMonth(t *testing.T) {
	daily := []domain.DailySentiment{
		{Date: date(t, "2024-02-02"), AvgCompound: -0.1, Posts: 2},
		{Date: date(t, "2024-01-05"), AvgCompound: 0.2, Posts: 3},
		{Date: date(t, "2024-01-20"), AvgCompound: 0.4, Posts: 1},
	}

	monthly := MonthlySentiment(daily)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2024-01-01", monthly[0].Month.String())
	assert.InDelta(t, 0.3, monthly[0].Value, 1e-9)
	assert.Equal(t, "2024-02-01", monthly[1].Month.String())
	assert.InDelta(t, -0.1, monthly[1].Value, 1e-9)
}

func TestAnalyze_RecoversKnownLag(t *testing.T) {
	daily, prices := coupledSeries(t, 48)

	res, err := Analyze(daily, prices, DefaultMaxLag)
	require.NoError(t, err)

	assert.Equal(t, 2, res.BestLag)
	assert.InDelta(t, 1.0, res.BestR2, 0.01)
	assert.Less(t, res.BestRMSE, 0.1)
	assert.Len(t, res.Metrics, DefaultMaxLag+1)

	require.Len(t, res.Granger, DefaultMaxLag)
	for _, g := range res.Granger {
		assert.GreaterOrEqual(t, g.PValue, 0.0)
		assert.LessOrEqual(t, g.PValue, 1.0)
		if g.Lag == 2 {
			assert.Less(t, g.PValue, 0.01)
		}
	}
}

func TestAnalyze_ShortOverlap(t *testing.T) {
	daily, prices := coupledSeries(t, 13)

	_, err := Analyze(daily, prices, DefaultMaxLag)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientOverlap))
	assert.Equal(t, apperrors.TypeInsufficientData, apperrors.TypeOf(err))
}

func TestAnalyze_DisjointSeries(t *testing.T) {
	daily, _ := coupledSeries(t, 24)

	start, err := domain.ParseMonth("2010-01-01")
	require.NoError(t, err)
	prices := make([]domain.MonthlyPoint, 24)
	for i := range prices {
		prices[i] = domain.MonthlyPoint{Month: start.AddMonths(i), Value: 100, Period: domain.PeriodPre}
	}

	_, err = Analyze(daily, prices, DefaultMaxLag)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientOverlap))
}

func TestRun_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths := cases.NewPaths(dir+"/data", dir+"/reports", "la")
	def, err := cases.Builtin("la")
	require.NoError(t, err)

	daily, prices := coupledSeries(t, 48)
	require.NoError(t, report.WriteCSV(paths.SentimentDaily, daily))
	require.NoError(t, report.WriteCSV(paths.MonthlySeries, prices))

	res, err := Run(paths, def, DefaultMaxLag)
	require.NoError(t, err)
	assert.Equal(t, 2, res.BestLag)

	metrics, err := report.ReadCSV[LagMetric](paths.LagMetrics, report.ProducerPredict)
	require.NoError(t, err)
	assert.Len(t, metrics, DefaultMaxLag+1)

	granger, err := report.ReadCSV[GrangerResult](paths.GrangerResults, report.ProducerPredict)
	require.NoError(t, err)
	assert.Len(t, granger, DefaultMaxLag)

	summary, err := report.ReadCSV[domain.SummaryMetric](paths.LagSummary, report.ProducerPredict)
	require.NoError(t, err)
	best, ok := report.SummaryValue(summary, "best_lag")
	require.True(t, ok)
	assert.InDelta(t, 2.0, best, 1e-9)
	r2, ok := report.SummaryValue(summary, "best_lag_r2")
	require.True(t, ok)
	assert.InDelta(t, 1.0, r2, 0.01)

	info, err := os.Stat(paths.LagFitPlot)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(1000))
}

func TestRun_MissingUpstreams(t *testing.T) {
	dir := t.TempDir()
	paths := cases.NewPaths(dir+"/data", dir+"/reports", "la")
	def, err := cases.Builtin("la")
	require.NoError(t, err)

	_, err = Run(paths, def, DefaultMaxLag)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeMissingUpstream, apperrors.TypeOf(err))

	daily, _ := coupledSeries(t, 48)
	require.NoError(t, report.WriteCSV(paths.SentimentDaily, daily))

	_, err = Run(paths, def, DefaultMaxLag)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeMissingUpstream, apperrors.TypeOf(err))
}
