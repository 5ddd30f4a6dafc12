package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policypulse/policypulse/internal/cases"
	"github.com/policypulse/policypulse/internal/causal"
	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/predict"
	"github.com/policypulse/policypulse/internal/report"
	"github.com/policypulse/policypulse/internal/topics"
)

// resetCLI restores flag state between executions; cobra keeps parsed
// values and Changed bits across Execute calls.
func resetCLI(t *testing.T) {
	t.Helper()
	flagDataDir, flagReportsDir, flagCaseConfig = "data", "reports", ""
	flagSkipDownload, flagSkipSentiment, flagSkipPolicy = false, false, false
	flagLimit, flagSource = 0, ""
	flagMaxLag, flagWindow = predict.DefaultMaxLag, causal.DefaultWindowMonths
	flagTopics, flagTopTerms, flagTopicSeed = topics.DefaultTopics, topics.DefaultTopTerms, int64(topics.DefaultSeed)
	for _, name := range []string{"data-dir", "reports-dir", "config"} {
		rootCmd.PersistentFlags().Lookup(name).Changed = false
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCLI(t)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "policypulse")
}

func TestAllWorkflowsRegistered(t *testing.T) {
	want := []string{
		"la-case", "nyc-case", "run-case", "full-platform", "compare-cities",
		"download-fred", "sentiment", "aggregate", "topics", "policy",
		"causal", "predict-lags", "dashboard", "version",
	}
	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %s not registered", name)
	}
}

func TestRunCase_RequiresConfig(t *testing.T) {
	_, err := execute(t, "run-case")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--config")
}

func TestStepCommand_UnknownCase(t *testing.T) {
	_, err := execute(t, "policy", "atlantis", "--data-dir", t.TempDir(), "--reports-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown case")
}

func TestStepCommand_NoCaseGiven(t *testing.T) {
	_, err := execute(t, "policy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "la, nyc")
}

func TestPolicyCommand_RunsFromSeededPrices(t *testing.T) {
	dataDir := t.TempDir()
	reportsDir := t.TempDir()

	def, err := cases.Builtin("la")
	require.NoError(t, err)
	paths := cases.NewPaths(dataDir, reportsDir, def.CityID)

	points := make([]domain.PricePoint, 0, 24)
	for i := 0; i < 24; i++ {
		points = append(points, domain.PricePoint{
			Date:  domain.NewDate(time.Date(2022, time.January+time.Month(i), 1, 0, 0, 0, 0, time.UTC)),
			Value: 300 + float64(i),
		})
	}
	require.NoError(t, report.WriteRawPrices(paths.RawPrices, def.PriceColumn(), points))

	_, err = execute(t, "policy", "la", "--data-dir", dataDir, "--reports-dir", reportsDir)
	require.NoError(t, err)

	for _, artifact := range []string{paths.MonthlySeries, paths.PolicySummary, paths.PolicyTrend, paths.Manifest} {
		_, statErr := os.Stat(artifact)
		assert.NoError(t, statErr, "expected artifact %s", artifact)
	}
}

func TestCaseFromArg_ConfigFile(t *testing.T) {
	def, err := cases.Builtin("la")
	require.NoError(t, err)
	def.CityID = "sf"
	def.CityName = "San Francisco"

	data, err := json.Marshal(def)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sf.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := caseFromArg(path)
	require.NoError(t, err)
	assert.Equal(t, "sf", got.CityID)
	assert.Equal(t, "San Francisco", got.CityName)
}

func TestValidSource(t *testing.T) {
	assert.NoError(t, validSource(""))
	assert.NoError(t, validSource("reddit"))
	assert.NoError(t, validSource("gdelt"))
	assert.NoError(t, validSource("rss"))
	assert.Error(t, validSource("usenet"))
}
