// Package causal estimates the policy's treatment effect on the price
// series with an interrupted time series design: a linear trend fitted on
// the pre-policy window is projected forward as the counterfactual, and the
// post-policy gap between observed and counterfactual is the effect.
package causal

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
	// DefaultWindowMonths bounds the analysis to this many months on each
	// side of the policy month. Zero means the whole series.
	DefaultWindowMonths = 12

	// minPointsPerSide is the smallest usable sample on each side of the
	// policy date. The pre fit needs at least two residual degrees of
	// freedom for the interval math.
	minPointsPerSide = 4
)

// Row is one month of the counterfactual analysis. The t, post, and t_post
// columns are the regressors of the segmented model, kept in the artifact
// so the fit can be reproduced outside the pipeline.
type Row struct {
	Month          domain.Month `csv:"month" json:"month"`
	Observed       float64      `csv:"y" json:"y"`
	T              float64      `csv:"t" json:"t"`
	Post           int          `csv:"post" json:"post"`
	TPost          float64      `csv:"t_post" json:"t_post"`
	Counterfactual float64      `csv:"counterfactual" json:"counterfactual"`
	Lo             float64      `csv:"cf_ci_low" json:"cf_ci_low"`
	Hi             float64      `csv:"cf_ci_high" json:"cf_ci_high"`
	Effect         float64      `csv:"effect" json:"effect"`
}

// Result summarizes the treatment effect estimate.
type Result struct {
	Rows []Row

	AvgEffect   float64
	TotalEffect float64
	EffectLo    float64
	EffectHi    float64

	RSquared   float64
	PrePoints  int
	PostPoints int
}

// Analyze runs the interrupted time series analysis on a monthly series.
// The series must carry period tags relative to policyDate; windowMonths
// bounds the window on each side of the policy month (0 = whole series).
func Analyze(monthly []domain.MonthlyPoint, policyDate domain.Date, windowMonths int) (*Result, error) {
	window := selectWindow(monthly, policyDate, windowMonths)

	var pre, post []int
	for i, m := range window {
		if m.Period == domain.PeriodPre {
			pre = append(pre, i)
		} else {
			post = append(post, i)
		}
	}
	if len(pre) < minPointsPerSide || len(post) < minPointsPerSide {
		return nil, apperrors.InsufficientDataError("too few monthly points around the policy date for a counterfactual fit").
			WithComponent("causal").
			WithField("pre_months", len(pre)).
			WithField("post_months", len(post)).
			WithField("min_per_side", minPointsPerSide)
	}

	// Fit the pre-policy trend. t is the month index within the window.
	xPre := make([]float64, len(pre))
	yPre := make([]float64, len(pre))
	for i, idx := range pre {
		xPre[i] = float64(idx)
		yPre[i] = window[idx].Value
	}
	alpha, beta := stat.LinearRegression(xPre, yPre, nil, false)

	var rss float64
	for i := range xPre {
		r := yPre[i] - (alpha + beta*xPre[i])
		rss += r * r
	}
	dof := float64(len(pre) - 2)
	s := math.Sqrt(rss / dof)

	tBarPre := stat.Mean(xPre, nil)
	var sxx float64
	for _, x := range xPre {
		sxx += (x - tBarPre) * (x - tBarPre)
	}

	tCrit := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}.Quantile(0.975)

	rows := make([]Row, len(window))
	var effectSum, tBarPost float64
	for j, m := range window {
		tj := float64(j)
		postFlag := 0
		if m.Period == domain.PeriodPost {
			postFlag = 1
		}

		cf := alpha + beta*tj
		se := s * math.Sqrt(1/float64(len(pre))+(tj-tBarPre)*(tj-tBarPre)/sxx)
		margin := tCrit * se

		rows[j] = Row{
			Month:          m.Month,
			Observed:       m.Value,
			T:              tj,
			Post:           postFlag,
			TPost:          tj * float64(postFlag),
			Counterfactual: cf,
			Lo:             cf - margin,
			Hi:             cf + margin,
			Effect:         m.Value - cf,
		}
		if postFlag == 1 {
			effectSum += rows[j].Effect
			tBarPost += tj
		}
	}
	tBarPost /= float64(len(post))

	avgEffect := effectSum / float64(len(post))
	seEffect := s * math.Sqrt(1/float64(len(post))+1/float64(len(pre))+(tBarPost-tBarPre)*(tBarPost-tBarPre)/sxx)

	rsq, err := segmentedRSquared(rows)
	if err != nil {
		return nil, apperrors.InternalError("segmented trend fit failed", err).WithComponent("causal")
	}

	return &Result{
		Rows:        rows,
		AvgEffect:   avgEffect,
		TotalEffect: effectSum,
		EffectLo:    avgEffect - tCrit*seEffect,
		EffectHi:    avgEffect + tCrit*seEffect,
		RSquared:    rsq,
		PrePoints:   len(pre),
		PostPoints:  len(post),
	}, nil
}

// selectWindow clips the series to windowMonths on each side of the policy
// month and returns it sorted by month.
func selectWindow(monthly []domain.MonthlyPoint, policyDate domain.Date, windowMonths int) []domain.MonthlyPoint {
	window := make([]domain.MonthlyPoint, 0, len(monthly))
	if windowMonths <= 0 {
		window = append(window, monthly...)
	} else {
		policyMonth := domain.NewMonth(policyDate.Time)
		lo := policyMonth.AddMonths(-windowMonths)
		hi := policyMonth.AddMonths(windowMonths)
		for _, m := range monthly {
			if m.Month.Before(lo.Time) || m.Month.After(hi.Time) {
				continue
			}
			window = append(window, m)
		}
	}
	sort.Slice(window, func(i, j int) bool { return window[i].Month.Before(window[j].Month.Time) })
	return window
}

// segmentedRSquared fits observed ~ 1 + t + post + t_post by least squares
// and reports the R-squared of the fit.
func segmentedRSquared(rows []Row) (float64, error) {
	n := len(rows)
	X := mat.NewDense(n, 4, nil)
	y := mat.NewVecDense(n, nil)
	observed := make([]float64, n)
	for i, r := range rows {
		X.SetRow(i, []float64{1, r.T, float64(r.Post), r.TPost})
		y.SetVec(i, r.Observed)
		observed[i] = r.Observed
	}

	var qr mat.QR
	qr.Factorize(X)

	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, y); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return 0, err
		}
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &coef)
	estimates := make([]float64, n)
	for i := range estimates {
		estimates[i] = fitted.AtVec(i)
	}
	return stat.RSquaredFrom(estimates, observed, nil), nil
}

// Run reads the monthly series for a case, estimates the treatment effect,
// and writes the effects table, the summary metrics, and the
// counterfactual chart.
func Run(paths cases.Paths, def cases.Definition, windowMonths int) (*Result, error) {
	monthly, err := report.ReadCSV[domain.MonthlyPoint](paths.MonthlySeries, report.ProducerPolicy)
	if err != nil {
		return nil, err
	}

	res, err := Analyze(monthly, def.PolicyDate, windowMonths)
	if err != nil {
		return nil, err
	}

	if err := report.WriteCSV(paths.CausalEffects, res.Rows); err != nil {
		return nil, err
	}

	summary := []domain.SummaryMetric{
		{Metric: "avg_post_policy_treatment_effect", Value: res.AvgEffect},
		{Metric: "total_post_policy_treatment_effect", Value: res.TotalEffect},
		{Metric: "avg_effect_ci_lower", Value: res.EffectLo},
		{Metric: "avg_effect_ci_upper", Value: res.EffectHi},
		{Metric: "model_r_squared", Value: res.RSquared},
		{Metric: "post_period_points", Value: float64(res.PostPoints)},
	}
	if err := report.WriteCSV(paths.CausalSummary, summary); err != nil {
		return nil, err
	}

	if err := writeCounterfactualChart(paths.CausalPlot, def, res.Rows); err != nil {
		return nil, err
	}
	return res, nil
}

func writeCounterfactualChart(path string, def cases.Definition, rows []Row) error {
	times := make([]time.Time, len(rows))
	observed := make([]float64, len(rows))
	counterfactual := make([]float64, len(rows))
	lo := make([]float64, len(rows))
	hi := make([]float64, len(rows))
	for i, r := range rows {
		times[i] = r.Month.Time
		observed[i] = r.Observed
		counterfactual[i] = r.Counterfactual
		lo[i] = r.Lo
		hi[i] = r.Hi
	}

	opts := chart.Options{
		Title:  fmt.Sprintf("%s: Observed vs Counterfactual Price Index", def.CityName),
		YLabel: "index value",
		VLines: []chart.VLine{{Name: def.PolicyName, At: def.PolicyDate.Time}},
	}
	return chart.SaveBand(path, opts, times, observed, counterfactual, lo, hi, "observed", "counterfactual")
}
