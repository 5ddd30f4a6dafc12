package dashboard

import (
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/domain"
)

type overviewCase struct {
	ID         string
	Name       string
	PolicyName string
	PolicyDate string
	HasRun     bool
	Failed     bool
}

func (s *Server) handleOverview(c echo.Context) error {
	ids := cases.BuiltinIDs()
	views := make([]overviewCase, 0, len(ids))
	for _, id := range ids {
		def, err := cases.Builtin(id)
		if err != nil {
			return err
		}

		view := overviewCase{
			ID:         def.CityID,
			Name:       def.CityName,
			PolicyName: def.PolicyName,
			PolicyDate: def.PolicyDate.String(),
		}
		if m, err := s.store.Manifest(id); err == nil {
			view.HasRun = true
			view.Failed = m.Failed()
		}
		views = append(views, view)
	}

	return s.renderTemplate(c, "overview.html", map[string]any{"Cases": views})
}

type chartView struct {
	Title string
	URL   string
}

func (s *Server) handleCasePage(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	paths := s.store.paths(def.CityID)

	// Each section renders with whatever artifacts exist; a city that has
	// only run half the pipeline still gets a useful page.
	var summary, causalSummary, lagSummary []domain.SummaryMetric
	if rows, err := s.store.PolicySummary(def.CityID); err == nil {
		summary = rows
	}
	if rep, err := s.store.Causal(def.CityID); err == nil {
		causalSummary = rep.Summary
	}
	if rep, err := s.store.Lags(def.CityID); err == nil {
		lagSummary = rep.Summary
	}

	charts := s.availableCharts([]chartView{
		{Title: "Price trend around the policy date", URL: paths.PolicyTrend},
		{Title: "Observed vs counterfactual", URL: paths.CausalPlot},
		{Title: "Daily sentiment", URL: paths.SentimentTrend},
		{Title: "Lagged prediction fit", URL: paths.LagFitPlot},
		{Title: "Topic evolution", URL: paths.TopicEvolutionPlot},
	})

	data := map[string]any{
		"CityID":     def.CityID,
		"CityName":   def.CityName,
		"PolicyName": def.PolicyName,
		"PolicyDate": def.PolicyDate.String(),
		"Summary":    summary,
		"Causal":     causalSummary,
		"Lags":       lagSummary,
		"Charts":     charts,
	}
	return s.renderTemplate(c, "case.html", data)
}

// availableCharts filters to charts that exist on disk and rewrites their
// filesystem paths to /reports URLs.
func (s *Server) availableCharts(candidates []chartView) []chartView {
	charts := make([]chartView, 0, len(candidates))
	for _, chart := range candidates {
		if _, err := os.Stat(chart.URL); err != nil {
			continue
		}
		rel, err := filepath.Rel(s.config.ReportsDir, chart.URL)
		if err != nil {
			continue
		}
		chart.URL = "/reports/" + filepath.ToSlash(rel)
		charts = append(charts, chart)
	}
	return charts
}
