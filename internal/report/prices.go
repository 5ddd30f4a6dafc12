package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/metrics"
)

// The raw price artifact keeps FRED's own shape: a DATE column plus one value
// column named after the series ID. The value column name is data, not
// schema, so this file uses encoding/csv with a header lookup instead of a
// tagged struct.

// WriteRawPrices writes a price series in the raw FRED layout.
func WriteRawPrices(path, column string, points []domain.PricePoint) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"DATE", column}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, p := range points {
		if err := w.Write([]string{p.Date.String(), strconv.FormatFloat(p.Value, 'f', -1, 64)}); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	metrics.ArtifactsWrittenTotal.WithLabelValues("csv").Inc()
	return nil
}

// ReadRawPrices reads a price series from the raw FRED layout. Rows whose
// value does not parse as a number (FRED marks gaps with ".") are skipped.
func ReadRawPrices(path, column, producedBy string) ([]domain.PricePoint, error) {
	if err := CheckUpstream(path, producedBy); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		switch {
		case strings.EqualFold(name, "DATE") || strings.EqualFold(name, "observation_date"):
			dateIdx = i
		case name == column:
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("parse %s: missing DATE or %s column", path, column)
	}

	var points []domain.PricePoint
	for _, row := range rows[1:] {
		if len(row) <= dateIdx || len(row) <= valueIdx {
			continue
		}
		date, err := domain.ParseDate(strings.TrimSpace(row[dateIdx]))
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[valueIdx]), 64)
		if err != nil {
			continue
		}
		points = append(points, domain.PricePoint{Date: date, Value: value})
	}
	return points, nil
}
