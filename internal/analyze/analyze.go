// Package analyze builds the daily sentiment index from scored records.
package analyze

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

// Daily averages compound scores per UTC day, oldest day first. Each row
// also carries the number of posts that produced it so chart readers can
// judge how thin a day is.
func Daily(records []domain.SentimentRecord) ([]domain.DailySentiment, error) {
	if len(records) == 0 {
		return nil, apperrors.InsufficientDataError("no sentiment records to aggregate").
			WithComponent("analyze")
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[domain.Date]*bucket)
	for _, r := range records {
		day := r.Date
		if day.IsZero() {
			day = r.CreatedUTC.Date()
		}
		b := buckets[day]
		if b == nil {
			b = &bucket{}
			buckets[day] = b
		}
		b.sum += r.Compound
		b.count++
	}

	daily := make([]domain.DailySentiment, 0, len(buckets))
	for day, b := range buckets {
		daily = append(daily, domain.DailySentiment{
			Date:        day,
			AvgCompound: b.sum / float64(b.count),
			Posts:       b.count,
		})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date.Time) })
	return daily, nil
}

// Run reads the scored records for a case, aggregates them per day, and
// writes the daily index plus its trend chart.
func Run(paths cases.Paths, cityName string) ([]domain.DailySentiment, error) {
	records, err := report.ReadCSV[domain.SentimentRecord](paths.Sentiment, report.ProducerSentiment)
	if err != nil {
		return nil, err
	}

	daily, err := Daily(records)
	if err != nil {
		return nil, err
	}

	if err := report.WriteCSV(paths.SentimentDaily, daily); err != nil {
		return nil, err
	}
	if err := writeTrendChart(paths.SentimentTrend, cityName, daily); err != nil {
		return nil, err
	}
	return daily, nil
}

func writeTrendChart(path, cityName string, daily []domain.DailySentiment) error {
	days := make([]time.Time, len(daily))
	avgs := make([]float64, len(daily))
	counts := make([]int, len(daily))
	for i, d := range daily {
		days[i] = d.Date.Time
		avgs[i] = d.AvgCompound
		counts[i] = d.Posts
	}

	title := fmt.Sprintf("%s: Daily Housing Sentiment", cityName)
	return chart.SaveTrendWithVolume(path, title, days, avgs, counts)
}
