// Package policy compares the housing price level before and after the
// policy date.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/chart"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/report"
)

// MonthlySeries averages price observations per calendar month and tags
// each month as pre or post policy, oldest month first. A month counts as
// pre when it starts before the policy date, so a mid-month policy keeps
// its own month in the pre period.
func MonthlySeries(points []domain.PricePoint, policyDate domain.Date) []domain.MonthlyPoint {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[domain.Month]*bucket)
	for _, p := range points {
		month := domain.NewMonth(p.Date.Time)
		b := buckets[month]
		if b == nil {
			b = &bucket{}
			buckets[month] = b
		}
		b.sum += p.Value
		b.count++
	}

	monthly := make([]domain.MonthlyPoint, 0, len(buckets))
	for month, b := range buckets {
		period := domain.PeriodPost
		if month.Before(policyDate.Time) {
			period = domain.PeriodPre
		}
		monthly = append(monthly, domain.MonthlyPoint{
			Month:  month,
			Value:  b.sum / float64(b.count),
			Period: period,
		})
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month.Before(monthly[j].Month.Time) })
	return monthly
}

// Stats summarizes the average price level on each side of the policy date.
type Stats struct {
	PreAvg        float64
	PostAvg       float64
	PercentChange float64
}

// Summary computes the pre and post averages and the percent change between
// them. Both periods need at least one month.
func Summary(monthly []domain.MonthlyPoint) (Stats, error) {
	var preSum, postSum float64
	var preN, postN int
	for _, m := range monthly {
		if m.Period == domain.PeriodPre {
			preSum += m.Value
			preN++
		} else {
			postSum += m.Value
			postN++
		}
	}
	if preN == 0 || postN == 0 {
		return Stats{}, apperrors.InsufficientDataError("need price observations on both sides of the policy date").
			WithComponent("policy").
			WithField("pre_months", preN).
			WithField("post_months", postN)
	}

	s := Stats{PreAvg: preSum / float64(preN), PostAvg: postSum / float64(postN)}
	if s.PreAvg == 0 {
		return Stats{}, apperrors.InsufficientDataError("pre-policy average is zero, percent change is undefined").
			WithComponent("policy")
	}
	s.PercentChange = (s.PostAvg - s.PreAvg) / s.PreAvg * 100
	return s, nil
}

// Run reads the raw price series for a case and writes the monthly series,
// the summary metrics, and the trend chart.
func Run(paths cases.Paths, def cases.Definition) (Stats, error) {
	points, err := report.ReadRawPrices(paths.RawPrices, def.PriceColumn(), report.ProducerDownload)
	if err != nil {
		return Stats{}, err
	}

	monthly := MonthlySeries(points, def.PolicyDate)
	stats, err := Summary(monthly)
	if err != nil {
		return Stats{}, err
	}

	if err := report.WriteCSV(paths.MonthlySeries, monthly); err != nil {
		return Stats{}, err
	}

	summary := []domain.SummaryMetric{
		{Metric: "pre_policy_avg", Value: stats.PreAvg},
		{Metric: "post_policy_avg", Value: stats.PostAvg},
		{Metric: "percent_change", Value: stats.PercentChange},
	}
	if err := report.WriteCSV(paths.PolicySummary, summary); err != nil {
		return Stats{}, err
	}

	if err := writeTrendChart(paths.PolicyTrend, def, monthly); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func writeTrendChart(path string, def cases.Definition, monthly []domain.MonthlyPoint) error {
	times := make([]time.Time, len(monthly))
	values := make([]float64, len(monthly))
	for i, m := range monthly {
		times[i] = m.Month.Time
		values[i] = m.Value
	}

	opts := chart.Options{
		Title:  fmt.Sprintf("%s: Monthly Housing Price Index Around %s", def.CityName, def.PolicyName),
		YLabel: "index value",
		VLines: []chart.VLine{{Name: def.PolicyName, At: def.PolicyDate.Time}},
	}
	return chart.SaveTimeSeries(path, opts, chart.Series{Name: "monthly avg", Times: times, Values: values})
}
