package dashboard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/domain"
)

type caseDescriptor struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	PolicyName string        `json:"policy_name"`
	PolicyDate domain.Date   `json:"policy_date"`
	LastRun    *caseRunState `json:"last_run,omitempty"`
}

type caseRunState struct {
	RunID      string    `json:"run_id"`
	Workflow   string    `json:"workflow"`
	FinishedAt time.Time `json:"finished_at"`
	Failed     bool      `json:"failed"`
}

// caseDef resolves the :city parameter to a builtin case, turning unknown
// IDs into a 404.
func (s *Server) caseDef(c echo.Context) (cases.Definition, error) {
	city := c.Param("city")
	def, err := cases.Builtin(city)
	if err != nil {
		return cases.Definition{}, echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown case %q", city))
	}
	return def, nil
}

func (s *Server) handleListCases(c echo.Context) error {
	ids := cases.BuiltinIDs()
	descriptors := make([]caseDescriptor, 0, len(ids))
	for _, id := range ids {
		def, err := cases.Builtin(id)
		if err != nil {
			return err
		}

		descriptor := caseDescriptor{
			ID:         def.CityID,
			Name:       def.CityName,
			PolicyName: def.PolicyName,
			PolicyDate: def.PolicyDate,
		}
		if m, err := s.store.Manifest(id); err == nil {
			descriptor.LastRun = &caseRunState{
				RunID:      m.RunID,
				Workflow:   m.Workflow,
				FinishedAt: m.FinishedAt,
				Failed:     m.Failed(),
			}
		}
		descriptors = append(descriptors, descriptor)
	}
	return c.JSON(http.StatusOK, descriptors)
}

func (s *Server) handleCaseSummary(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rows, err := s.store.PolicySummary(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleCaseMonthly(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rows, err := s.store.MonthlySeries(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleCaseSentiment(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rows, err := s.store.DailySentiment(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleCaseCausal(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rep, err := s.store.Causal(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleCaseLags(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rep, err := s.store.Lags(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleCaseTopics(c echo.Context) error {
	def, err := s.caseDef(c)
	if err != nil {
		return err
	}
	rep, err := s.store.Topics(def.CityID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleComparison(c echo.Context) error {
	rows, err := s.store.Comparison()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}
