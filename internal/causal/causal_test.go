package causal

import (
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

// series builds a monthly series starting at startMonth with period tags
// derived from the policy date, one value per month.
func series(t *testing.T, startMonth string, values []float64, policy domain.Date) []domain.MonthlyPoint {
	t.Helper()
	start, err := domain.ParseMonth(startMonth)
	require.NoError(t, err)

	points := make([]domain.MonthlyPoint, len(values))
	for i := range values {
		month := start.AddMonths(i)
		period := domain.PeriodPost
		if month.Before(policy.Time) {
			period = domain.PeriodPre
		}
		points[i] = domain.MonthlyPoint{Month: month, Value: values[i], Period: period}
	}
	return points
}

// shiftedLinear is a perfectly linear series that jumps by shift at and
// after the policy month.
func shiftedLinear(n, postStart int, shift float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + 2*float64(i)
		if i >= postStart {
			values[i] += shift
		}
	}
	return values
}

func TestAnalyze_RecoversKnownLevelShift(t *testing.T) {
	policy := date(t, "2023-01-01")
	monthly := series(t, "2022-01-01", shiftedLinear(24, 12, 5), policy)

	res, err := Analyze(monthly, policy, 0)
	require.NoError(t, err)

	assert.Equal(t, 12, res.PrePoints)
	assert.Equal(t, 12, res.PostPoints)
	assert.InDelta(t, 5.0, res.AvgEffect, 1e-9)
	assert.InDelta(t, 60.0, res.TotalEffect, 1e-9)

	// A noiseless pre fit leaves no residual variance, so the interval
	// collapses onto the estimate.
	assert.InDelta(t, res.AvgEffect, res.EffectLo, 1e-9)
	assert.InDelta(t, res.AvgEffect, res.EffectHi, 1e-9)
	assert.InDelta(t, 1.0, res.RSquared, 1e-9)

	// The counterfactual continues the pre trend untouched by the shift.
	last := res.Rows[len(res.Rows)-1]
	assert.InDelta(t, 146.0, last.Counterfactual, 1e-9)
	assert.InDelta(t, 5.0, last.Effect, 1e-9)
	assert.InDelta(t, last.Counterfactual, last.Lo, 1e-9)
	assert.InDelta(t, last.Counterfactual, last.Hi, 1e-9)
	assert.Equal(t, 1, last.Post)
	assert.InDelta(t, last.T, last.TPost, 1e-9)
}

func TestAnalyze_NoisySeriesWidensInterval(t *testing.T) {
	policy := date(t, "2023-01-01")
	values := shiftedLinear(24, 12, 5)
	for i := range values {
		// Deterministic alternating disturbance on the trend.
		if i%2 == 0 {
			values[i] += 0.5
		} else {
			values[i] -= 0.5
		}
	}
	monthly := series(t, "2022-01-01", values, policy)

	res, err := Analyze(monthly, policy, 0)
	require.NoError(t, err)

	assert.Less(t, res.EffectLo, res.AvgEffect)
	assert.Greater(t, res.EffectHi, res.AvgEffect)
	for _, row := range res.Rows {
		assert.Less(t, row.Lo, row.Counterfactual)
		assert.Greater(t, row.Hi, row.Counterfactual)
	}
}

func TestAnalyze_WindowClipsSeries(t *testing.T) {
	policy := date(t, "2023-01-01")
	monthly := series(t, "2021-01-01", shiftedLinear(48, 24, 5), policy)

	res, err := Analyze(monthly, policy, 12)
	require.NoError(t, err)

	// Twelve months either side of the policy month, inclusive.
	require.Len(t, res.Rows, 25)
	assert.Equal(t, "2022-01-01", res.Rows[0].Month.String())
	assert.Equal(t, "2024-01-01", res.Rows[24].Month.String())
	assert.InDelta(t, 5.0, res.AvgEffect, 1e-9)
}

func TestAnalyze_OrderIndependent(t *testing.T) {
	policy := date(t, "2023-01-01")
	monthly := series(t, "2022-01-01", shiftedLinear(24, 12, 5), policy)

	shuffled := make([]domain.MonthlyPoint, len(monthly))
	copy(shuffled, monthly)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	sorted, err := Analyze(monthly, policy, 0)
	require.NoError(t, err)
	unsorted, err := Analyze(shuffled, policy, 0)
	require.NoError(t, err)

	assert.Equal(t, sorted.Rows, unsorted.Rows)
	assert.InDelta(t, sorted.AvgEffect, unsorted.AvgEffect, 1e-12)
}

func TestAnalyze_TooFewPoints(t *testing.T) {
	policy := date(t, "2023-01-01")

	tests := []struct {
		name       string
		startMonth string
		n          int
		postStart  int
	}{
		{"short pre period", "2022-10-01", 15, 3},
		{"short post period", "2022-01-01", 15, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monthly := series(t, tt.startMonth, shiftedLinear(tt.n, tt.postStart, 5), policy)
			_, err := Analyze(monthly, policy, 0)
			require.Error(t, err)
			assert.Equal(t, apperrors.TypeInsufficientData, apperrors.TypeOf(err))
		})
	}
}

func TestRun_WritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths := cases.NewPaths(dir+"/data", dir+"/reports", "la")
	def, err := cases.Builtin("la")
	require.NoError(t, err)

	monthly := series(t, "2022-04-01", shiftedLinear(24, 12, 5), def.PolicyDate)
	require.NoError(t, report.WriteCSV(paths.MonthlySeries, monthly))

	res, err := Run(paths, def, DefaultWindowMonths)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, res.AvgEffect, 1e-9)

	rows, err := report.ReadCSV[Row](paths.CausalEffects, report.ProducerCausal)
	require.NoError(t, err)
	assert.Len(t, rows, 24)

	summary, err := report.ReadCSV[domain.SummaryMetric](paths.CausalSummary, report.ProducerCausal)
	require.NoError(t, err)
	avg, ok := report.SummaryValue(summary, "avg_post_policy_treatment_effect")
	require.True(t, ok)
	assert.InDelta(t, 5.0, avg, 1e-9)
	points, ok := report.SummaryValue(summary, "post_period_points")
	require.True(t, ok)
	assert.InDelta(t, 12.0, points, 1e-9)

	info, err := os.Stat(paths.CausalPlot)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(1000))
}

func TestRun_MissingMonthlySeries(t *testing.T) {
	dir := t.TempDir()
	paths := cases.NewPaths(dir+"/data", dir+"/reports", "la")
	def, err := cases.Builtin("la")
	require.NoError(t, err)

	_, err = Run(paths, def, DefaultWindowMonths)
	require.Error(t, err)
	assert.Equal(t, apperrors.TypeMissingUpstream, apperrors.TypeOf(err))
}
