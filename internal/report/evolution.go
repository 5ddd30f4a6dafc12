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

// TopicEvolutionRow is one month of average document-topic weights. The
// artifact has one topic_<i> column per topic, so its width depends on the
// run and it cannot be a fixed tagged struct.
type TopicEvolutionRow struct {
	Month   domain.Month `json:"month"`
	Weights []float64    `json:"weights"`
}

// WriteTopicEvolution writes the month-by-topic weight matrix with header
// month,topic_0,...,topic_{k-1}.
func WriteTopicEvolution(path string, topics int, rows []TopicEvolutionRow) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	header := make([]string, 0, topics+1)
	header = append(header, "month")
	for i := 0; i < topics; i++ {
		header = append(header, fmt.Sprintf("topic_%d", i))
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, row := range rows {
		record := make([]string, 0, topics+1)
		record = append(record, row.Month.String())
		for i := 0; i < topics; i++ {
			var v float64
			if i < len(row.Weights) {
				v = row.Weights[i]
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
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

// ReadTopicEvolution reads the weight matrix back, returning the topic count
// from the header.
func ReadTopicEvolution(path, producedBy string) (int, []TopicEvolutionRow, error) {
	if err := CheckUpstream(path, producedBy); err != nil {
		return 0, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return 0, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return 0, nil, nil
	}

	header := records[0]
	if len(header) < 1 || !strings.EqualFold(header[0], "month") {
		return 0, nil, fmt.Errorf("parse %s: first column must be month", path)
	}
	topics := len(header) - 1

	rows := make([]TopicEvolutionRow, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) != topics+1 {
			return 0, nil, fmt.Errorf("parse %s: row has %d columns, want %d", path, len(record), topics+1)
		}
		month, err := domain.ParseMonth(record[0])
		if err != nil {
			return 0, nil, fmt.Errorf("parse %s: %w", path, err)
		}
		weights := make([]float64, topics)
		for i := 0; i < topics; i++ {
			w, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return 0, nil, fmt.Errorf("parse %s: %w", path, err)
			}
			weights[i] = w
		}
		rows = append(rows, TopicEvolutionRow{Month: month, Weights: weights})
	}
	return topics, rows, nil
}
