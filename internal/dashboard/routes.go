package dashboard

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/policypulse/policypulse/internal/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'self'; img-src 'self'; style-src 'self' 'unsafe-inline'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	s.echo.GET("/", s.handleOverview)
	s.echo.GET("/cases/:city", s.handleCasePage)

	s.echo.GET("/api/cases", s.handleListCases)
	s.echo.GET("/api/cases/:city/summary", s.handleCaseSummary)
	s.echo.GET("/api/cases/:city/monthly", s.handleCaseMonthly)
	s.echo.GET("/api/cases/:city/sentiment", s.handleCaseSentiment)
	s.echo.GET("/api/cases/:city/causal", s.handleCaseCausal)
	s.echo.GET("/api/cases/:city/lags", s.handleCaseLags)
	s.echo.GET("/api/cases/:city/topics", s.handleCaseTopics)
	s.echo.GET("/api/comparison", s.handleComparison)

	// Charts and raw CSVs referenced by the pages and APIs.
	s.echo.Static("/reports", s.config.ReportsDir)

	s.registerHealthRoutes()
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}
