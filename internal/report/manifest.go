package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/policypulse/policypulse/internal/metrics"
)

// Step statuses recorded in the run manifest.
const (
	StepOK      = "ok"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// StepResult records the outcome of one pipeline step.
type StepResult struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Manifest describes one workflow run: which steps ran, which failed, and
// which artifacts they produced. The run_id matches the run_id attribute on
// every log line of the run.
type Manifest struct {
	RunID      string       `json:"run_id"`
	Workflow   string       `json:"workflow"`
	CityID     string       `json:"city_id,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
}

// Failed reports whether any step failed.
func (m Manifest) Failed() bool {
	for _, s := range m.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// WriteManifest writes the run manifest as indented JSON.
func WriteManifest(path string, m Manifest) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	metrics.ArtifactsWrittenTotal.WithLabelValues("json").Inc()
	return nil
}

// ReadManifest reads a run manifest.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}
