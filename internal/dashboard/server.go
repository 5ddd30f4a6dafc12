// Package dashboard serves the report tree over HTTP: an HTML page per
// case, JSON APIs backed by the CSV artifacts, and the PNG charts as static
// files. It is a passive consumer; pipeline runs happen through the CLI and
// the dashboard only reads what they wrote.
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/policypulse/policypulse/internal/platform/config"
	"github.com/policypulse/policypulse/web"
)

const evictionInterval = time.Minute

type Server struct {
	echo   *echo.Echo
	config *config.Config

	store        *ReportStore
	templates    *template.Template
	healthChecks []HealthCheck
	startTime    time.Time
	stopEviction func()
}

func NewServer(cfg *config.Config, store *ReportStore, healthChecks []HealthCheck) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		store:        store,
		templates:    templates,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	s.stopEviction = s.store.StartEvictionTimer(evictionInterval)

	slog.Info("Starting dashboard", "port", s.config.Port, "reports_dir", s.config.ReportsDir)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopEviction != nil {
		s.stopEviction()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
