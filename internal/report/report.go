// Package report reads and writes the CSV and JSON artifacts the pipeline
// produces. Every artifact has a typed row struct; the csv tags on those
// structs are the column contract the dashboard and the comparison step rely
// on.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
	"github.com/policypulse/policypulse/internal/metrics"
)

// Producer names used in missing-upstream errors. They match the CLI
// workflow that writes the artifact, so the error tells the operator what
// to run first.
const (
	ProducerDownload  = "download-fred"
	ProducerSentiment = "sentiment"
	ProducerAggregate = "aggregate"
	ProducerPolicy    = "policy"
	ProducerCausal    = "causal"
	ProducerPredict   = "predict-lags"
	ProducerTopics    = "topics"
	ProducerCompare   = "compare-cities"
)

// EnsureDir creates the directory (and parents) if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// CheckUpstream verifies that a required input artifact exists. A missing
// file maps to a missing_upstream error naming the workflow that produces it.
func CheckUpstream(path, producedBy string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.MissingUpstreamError(path, producedBy)
		}
		return apperrors.InternalError("failed to stat artifact", err).WithField("path", path)
	}
	return nil
}

// WriteCSV writes rows to path, creating parent directories as needed.
// An empty slice still writes the header row so downstream readers see the
// schema.
func WriteCSV[T any](path string, rows []T) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	metrics.ArtifactsWrittenTotal.WithLabelValues("csv").Inc()
	return nil
}

// ReadCSV reads a typed artifact. A missing file maps to a missing_upstream
// error naming producedBy.
func ReadCSV[T any](path, producedBy string) ([]T, error) {
	if err := CheckUpstream(path, producedBy); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var rows []T
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

// SummaryValue looks up a metric by name in a metric,value artifact.
func SummaryValue(rows []domain.SummaryMetric, name string) (float64, bool) {
	for _, r := range rows {
		if r.Metric == name {
			return r.Value, true
		}
	}
	return 0, false
}
