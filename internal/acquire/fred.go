package acquire

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/policypulse/policypulse/internal/domain"
	apperrors "github.com/policypulse/policypulse/internal/errors"
)

const fredBaseURL = "https://fred.stlouisfed.org/graph/fredgraph.csv"

// FREDClient downloads observation series from the St. Louis Fed. The
// fredgraph endpoint returns CSV with a DATE column and one value column
// named after the series ID.
type FREDClient struct {
	client  *Client
	baseURL string
}

func NewFREDClient(client *Client) *FREDClient {
	return &FREDClient{client: client, baseURL: fredBaseURL}
}

// FetchSeries downloads one series and returns its parsed observations in
// date order. FRED marks gaps with "."; those rows are dropped.
func (f *FREDClient) FetchSeries(ctx context.Context, seriesID string) ([]domain.PricePoint, error) {
	requestURL := fmt.Sprintf("%s?id=%s", f.baseURL, url.QueryEscape(seriesID))

	body, err := f.client.Get(ctx, domain.SourceFRED, requestURL, nil)
	if err != nil {
		return nil, apperrors.AcquisitionError("failed to download FRED series", err).
			WithField("series_id", seriesID)
	}

	points, err := parseFredCSV(body, seriesID)
	if err != nil {
		return nil, apperrors.AcquisitionError("FRED returned an unexpected payload", err).
			WithField("series_id", seriesID)
	}
	if len(points) == 0 {
		return nil, apperrors.AcquisitionError("FRED series has no observations", nil).
			WithField("series_id", seriesID)
	}
	return points, nil
}

func parseFredCSV(body []byte, seriesID string) ([]domain.PricePoint, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty response")
	}

	// FRED renamed the date column from DATE to observation_date at some
	// point, so accept either.
	header := rows[0]
	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		switch {
		case strings.EqualFold(name, "DATE") || strings.EqualFold(name, "observation_date"):
			dateIdx = i
		case strings.EqualFold(name, seriesID):
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("header %v is missing the DATE or %s column", header, seriesID)
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
