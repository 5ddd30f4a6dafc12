// Package predict relates the monthly sentiment index to subsequent price
// movements: a lag grid scores how well sentiment k months back explains
// the month-over-month price change, and Granger F-tests check whether
// sentiment history adds information beyond the price's own past.
package predict

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/chart"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/report"
)

const (
	// DefaultMaxLag is the largest sentiment lag, in months, the grid tries.
	DefaultMaxLag = 6

	// minOverlapMonths is the smallest usable aligned sample after lagging.
	minOverlapMonths = 8

	minTrainMonths = 4
	trainFraction  = 0.8
)

// LagMetric is one row of the lag grid artifact.
type LagMetric struct {
	Lag  int     `csv:"lag" json:"lag"`
	R2   float64 `csv:"r2" json:"r2"`
	RMSE float64 `csv:"rmse" json:"rmse"`
}

// GrangerResult is one row of the Granger test artifact.
type GrangerResult struct {
	Lag    int     `csv:"lag" json:"lag"`
	PValue float64 `csv:"ssr_ftest_pvalue" json:"ssr_ftest_pvalue"`
}

// Result holds the full lag analysis.
type Result struct {
	Metrics []LagMetric
	Granger []GrangerResult

	BestLag  int
	BestR2   float64
	BestRMSE float64
}

// merged is the inner join of the two monthly series.
type merged struct {
	months []domain.Month
	sent   []float64
	price  []float64
}

// MonthlySentiment averages the daily sentiment index per calendar month,
// oldest month first. Days weigh equally regardless of post volume.
func MonthlySentiment(daily []domain.DailySentiment) []domain.MonthlyPoint {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[domain.Month]*bucket)
	for _, d := range daily {
		month := domain.NewMonth(d.Date.Time)
		b := buckets[month]
		if b == nil {
			b = &bucket{}
			buckets[month] = b
		}
		b.sum += d.AvgCompound
		b.count++
	}

	monthly := make([]domain.MonthlyPoint, 0, len(buckets))
	for month, b := range buckets {
		monthly = append(monthly, domain.MonthlyPoint{Month: month, Value: b.sum / float64(b.count)})
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month.Before(monthly[j].Month.Time) })
	return monthly
}

// join inner-joins the sentiment and price series on month.
func join(sentiment, prices []domain.MonthlyPoint) merged {
	priceByMonth := make(map[domain.Month]float64, len(prices))
	for _, p := range prices {
		priceByMonth[p.Month] = p.Value
	}

	var m merged
	for _, s := range sentiment {
		price, ok := priceByMonth[s.Month]
		if !ok {
			continue
		}
		m.months = append(m.months, s.Month)
		m.sent = append(m.sent, s.Value)
		m.price = append(m.price, price)
	}
	return m
}

// Analyze runs the lag grid and the Granger tests over the joined series.
func Analyze(daily []domain.DailySentiment, prices []domain.MonthlyPoint, maxLag int) (*Result, error) {
	if maxLag < 1 {
		maxLag = DefaultMaxLag
	}

	m := join(MonthlySentiment(daily), prices)
	n := len(m.months)

	// Every lag shares the same sample rows so the grid scores are
	// comparable: rows start where the largest lag (and the price change)
	// are defined.
	start := maxLag
	samples := n - start
	if samples < minOverlapMonths {
		return nil, apperrors.InsufficientDataError("sentiment and price series overlap on too few months").
			WithCause(domain.ErrInsufficientOverlap).
			WithComponent("predict").
			WithField("overlap_months", n).
			WithField("usable_samples", max(samples, 0)).
			WithField("min_samples", minOverlapMonths)
	}

	y := make([]float64, samples)
	for i := 0; i < samples; i++ {
		t := start + i
		y[i] = m.price[t] - m.price[t-1]
	}

	trainN := int(trainFraction * float64(samples))
	if trainN < minTrainMonths {
		trainN = minTrainMonths
	}
	if trainN >= samples {
		return nil, apperrors.InsufficientDataError("not enough samples to hold out a test window").
			WithComponent("predict").
			WithField("usable_samples", samples)
	}

	res := &Result{BestLag: -1}
	for lag := 0; lag <= maxLag; lag++ {
		x := make([]float64, samples)
		for i := 0; i < samples; i++ {
			x[i] = m.sent[start+i-lag]
		}

		alpha, beta := stat.LinearRegression(x[:trainN], y[:trainN], nil, false)

		preds := make([]float64, samples-trainN)
		var sqErr float64
		for i := trainN; i < samples; i++ {
			pred := alpha + beta*x[i]
			preds[i-trainN] = pred
			sqErr += (pred - y[i]) * (pred - y[i])
		}
		r2 := stat.RSquaredFrom(preds, y[trainN:], nil)
		rmse := math.Sqrt(sqErr / float64(samples-trainN))

		res.Metrics = append(res.Metrics, LagMetric{Lag: lag, R2: r2, RMSE: rmse})
		if !math.IsNaN(r2) && !math.IsInf(r2, 0) && (res.BestLag < 0 || r2 > res.BestR2) {
			res.BestLag = lag
			res.BestR2 = r2
			res.BestRMSE = rmse
		}
	}

	if res.BestLag < 0 {
		return nil, apperrors.InsufficientDataError("no lag produced a scoreable fit").
			WithComponent("predict")
	}

	res.Granger = grangerTests(m, maxLag)
	return res, nil
}

// grangerTests runs the F-test per lag on the price levels. Each lag keeps
// its own row alignment so small samples are not wasted on large-lag
// padding; lags without a residual degree of freedom are skipped.
func grangerTests(m merged, maxLag int) []GrangerResult {
	n := len(m.price)
	var results []GrangerResult

	for lag := 1; lag <= maxLag; lag++ {
		rows := n - lag
		df2 := rows - 2*lag - 1
		if df2 < 1 {
			continue
		}

		y := make([]float64, rows)
		restricted := mat.NewDense(rows, lag+1, nil)
		unrestricted := mat.NewDense(rows, 2*lag+1, nil)
		for i := 0; i < rows; i++ {
			t := lag + i
			y[i] = m.price[t]
			restricted.Set(i, 0, 1)
			unrestricted.Set(i, 0, 1)
			for k := 1; k <= lag; k++ {
				restricted.Set(i, k, m.price[t-k])
				unrestricted.Set(i, k, m.price[t-k])
				unrestricted.Set(i, lag+k, m.sent[t-k])
			}
		}

		rssR, errR := olsRSS(restricted, y)
		rssU, errU := olsRSS(unrestricted, y)
		if errR != nil || errU != nil {
			continue
		}

		f := ((rssR - rssU) / float64(lag)) / (rssU / float64(df2))
		p := distuv.F{D1: float64(lag), D2: float64(df2)}.Survival(f)
		if math.IsNaN(p) {
			continue
		}
		results = append(results, GrangerResult{Lag: lag, PValue: p})
	}
	return results
}

func olsRSS(X *mat.Dense, y []float64) (float64, error) {
	var qr mat.QR
	qr.Factorize(X)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, mat.NewVecDense(len(y), y)); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return 0, err
		}
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &coef)

	var rss float64
	for i, v := range y {
		r := v - fitted.AtVec(i)
		rss += r * r
	}
	return rss, nil
}

// Run reads the daily sentiment index and the monthly price series for a
// case, runs the lag analysis, and writes the metrics tables, the summary,
// and the fit chart for the best lag.
func Run(paths cases.Paths, def cases.Definition, maxLag int) (*Result, error) {
	daily, err := report.ReadCSV[domain.DailySentiment](paths.SentimentDaily, report.ProducerAggregate)
	if err != nil {
		return nil, err
	}
	prices, err := report.ReadCSV[domain.MonthlyPoint](paths.MonthlySeries, report.ProducerPolicy)
	if err != nil {
		return nil, err
	}

	res, err := Analyze(daily, prices, maxLag)
	if err != nil {
		return nil, err
	}

	if err := report.WriteCSV(paths.LagMetrics, res.Metrics); err != nil {
		return nil, err
	}
	if err := report.WriteCSV(paths.GrangerResults, res.Granger); err != nil {
		return nil, err
	}

	summary := []domain.SummaryMetric{
		{Metric: "best_lag", Value: float64(res.BestLag)},
		{Metric: "best_lag_r2", Value: res.BestR2},
		{Metric: "best_lag_rmse", Value: res.BestRMSE},
	}
	if err := report.WriteCSV(paths.LagSummary, summary); err != nil {
		return nil, err
	}

	if err := writeFitChart(paths.LagFitPlot, def, daily, prices, maxLag, res.BestLag); err != nil {
		return nil, err
	}
	return res, nil
}

// writeFitChart refits the best lag on every usable sample and plots the
// actual price change against the prediction.
func writeFitChart(path string, def cases.Definition, daily []domain.DailySentiment, prices []domain.MonthlyPoint, maxLag, bestLag int) error {
	if maxLag < 1 {
		maxLag = DefaultMaxLag
	}
	m := join(MonthlySentiment(daily), prices)
	n := len(m.months)

	start := maxLag
	samples := n - start

	times := make([]time.Time, samples)
	actual := make([]float64, samples)
	x := make([]float64, samples)
	for i := 0; i < samples; i++ {
		t := start + i
		times[i] = m.months[t].Time
		actual[i] = m.price[t] - m.price[t-1]
		x[i] = m.sent[t-bestLag]
	}

	alpha, beta := stat.LinearRegression(x, actual, nil, false)
	predicted := make([]float64, samples)
	for i := range predicted {
		predicted[i] = alpha + beta*x[i]
	}

	opts := chart.Options{
		Title:  fmt.Sprintf("%s: Price Change vs Sentiment (lag %d months)", def.CityName, bestLag),
		YLabel: "monthly price change",
	}
	return chart.SaveTimeSeries(path, opts,
		chart.Series{Name: "actual", Times: times, Values: actual},
		chart.Series{Name: "predicted", Times: times, Values: predicted, Dashed: true},
	)
}
