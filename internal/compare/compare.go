// Package compare places two completed city cases side by side: the policy
// summary metrics in one ranked table and both monthly price series in one
// divergence chart. Each side loads independently, so one broken city
// degrades the comparison instead of failing it.
package compare

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/chart"
	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/report"
)

// City is one side of the comparison.
type City struct {
	Def   cases.Definition
	Paths cases.Paths
}

// Row is one city's line in the comparison table. Pointer columns render as
// empty cells when the underlying artifact was not readable.
type Row struct {
	City              string   `csv:"city" json:"city"`
	PrePolicyAvg      *float64 `csv:"pre_policy_avg" json:"pre_policy_avg"`
	PostPolicyAvg     *float64 `csv:"post_policy_avg" json:"post_policy_avg"`
	PercentChange     *float64 `csv:"percent_change" json:"percent_change"`
	AvgSentiment      *float64 `csv:"avg_sentiment" json:"avg_sentiment"`
	Posts             *int     `csv:"posts" json:"posts"`
	EffectivenessRank *int     `csv:"effectiveness_rank" json:"effectiveness_rank"`
	Unavailable       bool     `csv:"unavailable" json:"unavailable"`
}

// Run builds the comparison table and divergence chart for the given
// cities. A city whose policy summary cannot be read is kept in the table
// flagged unavailable; the call fails only when no city is usable.
func Run(out cases.ComparisonPaths, cities []City) ([]Row, error) {
	rows := make([]Row, len(cities))
	var firstErr error
	available := 0

	for i, city := range cities {
		row, err := loadCity(city)
		if err != nil {
			slog.Warn("Comparison side unavailable",
				"city", city.Def.CityID,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			rows[i] = Row{City: city.Def.CityName, Unavailable: true}
			continue
		}
		rows[i] = row
		available++
	}

	if available == 0 {
		return nil, apperrors.InsufficientDataError("no city produced a usable policy summary").
			WithComponent("compare").
			WithCause(firstErr)
	}

	rankByPercentChange(rows)

	if err := report.WriteCSV(out.Table, rows); err != nil {
		return nil, err
	}
	if err := writeDivergenceChart(out.DivergencePlot, cities); err != nil {
		return nil, err
	}
	return rows, nil
}

// loadCity reads one city's policy summary and, when present, its scored
// corpus for the sentiment columns.
func loadCity(city City) (Row, error) {
	summary, err := report.ReadCSV[domain.SummaryMetric](city.Paths.PolicySummary, report.ProducerPolicy)
	if err != nil {
		return Row{}, err
	}

	row := Row{City: city.Def.CityName}
	for _, m := range []struct {
		name string
		dst  **float64
	}{
		{"pre_policy_avg", &row.PrePolicyAvg},
		{"post_policy_avg", &row.PostPolicyAvg},
		{"percent_change", &row.PercentChange},
	} {
		v, ok := report.SummaryValue(summary, m.name)
		if !ok {
			return Row{}, apperrors.InsufficientDataError("policy summary is missing a metric").
				WithComponent("compare").
				WithField("city", city.Def.CityID).
				WithField("metric", m.name)
		}
		value := v
		*m.dst = &value
	}

	// Sentiment columns are best effort: the monthly price comparison
	// stands on its own when the corpus was never collected.
	records, err := report.ReadCSV[domain.SentimentRecord](city.Paths.Sentiment, report.ProducerSentiment)
	if err == nil && len(records) > 0 {
		compounds := make([]float64, len(records))
		for i, r := range records {
			compounds[i] = r.Compound
		}
		avg := stat.Mean(compounds, nil)
		posts := len(records)
		row.AvgSentiment = &avg
		row.Posts = &posts
	}
	return row, nil
}

// rankByPercentChange assigns a dense descending rank over the available
// rows: the largest percent change ranks 1 and equal changes share a rank.
func rankByPercentChange(rows []Row) {
	var changes []float64
	for _, r := range rows {
		if r.PercentChange != nil {
			changes = append(changes, *r.PercentChange)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(changes)))
	distinct := changes[:0]
	for _, v := range changes {
		if len(distinct) == 0 || distinct[len(distinct)-1] != v {
			distinct = append(distinct, v)
		}
	}

	for i := range rows {
		if rows[i].PercentChange == nil {
			continue
		}
		for j, v := range distinct {
			if v == *rows[i].PercentChange {
				rank := j + 1
				rows[i].EffectivenessRank = &rank
				break
			}
		}
	}
}

// writeDivergenceChart overlays the monthly series of every city whose
// series artifact is readable.
func writeDivergenceChart(path string, cities []City) error {
	var series []chart.Series
	var names []string
	for _, city := range cities {
		monthly, err := report.ReadCSV[domain.MonthlyPoint](city.Paths.MonthlySeries, report.ProducerPolicy)
		if err != nil || len(monthly) == 0 {
			continue
		}
		times := make([]time.Time, len(monthly))
		values := make([]float64, len(monthly))
		for i, p := range monthly {
			times[i] = p.Month.Time
			values[i] = p.Value
		}
		series = append(series, chart.Series{Name: city.Def.CityName, Times: times, Values: values})
		names = append(names, city.Def.CityName)
	}
	if len(series) == 0 {
		return nil
	}

	opts := chart.Options{
		Title:  fmt.Sprintf("Housing Market Divergence: %s", strings.Join(names, " vs ")),
		YLabel: "average index",
	}
	return chart.SaveTimeSeries(path, opts, series...)
}
