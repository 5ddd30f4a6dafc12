package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/policypulse/policypulse/internal/dashboard"
	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/platform/version"
	"github.com/policypulse/policypulse/internal/report"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the generated reports over HTTP",
	Long: `Serve the report tree on PORT (default 8080): an HTML page per case,
JSON APIs over the CSV artifacts, the PNG charts, and /metrics. The
dashboard only reads what the pipeline commands wrote; run a case first
for something to look at.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	// Directory flags win over the environment for the whole server.
	cfg.DataDir = flagDataDir
	cfg.ReportsDir = flagReportsDir

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version)

	if err := report.EnsureDir(cfg.ReportsDir); err != nil {
		return err
	}

	store := dashboard.NewReportStore(cfg.DataDir, cfg.ReportsDir, cfg.ReportCacheTTL, nil)
	checks := []dashboard.HealthCheck{
		{Name: "reports_dir", Check: dirCheck(cfg.ReportsDir)},
		{Name: "data_dir", Check: dirCheck(cfg.DataDir)},
	}

	srv, err := dashboard.NewServer(cfg, store, checks)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	return nil
}

func runGracefulShutdown(srv *dashboard.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

// dirCheck is a readiness probe for one of the artifact directories. The
// data dir only exists after a first pipeline run, so it counts as healthy
// while absent.
func dirCheck(dir string) func(context.Context) error {
	return func(ctx context.Context) error {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		return nil
	}
}
