package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrendInterval(t *testing.T) {
	assert.Equal(t, 1, trendInterval(6))
	assert.Equal(t, 2, trendInterval(24))
	assert.Equal(t, 6, trendInterval(168))
	assert.Equal(t, 24, trendInterval(720))
}

func TestRunReportWritesPDF(t *testing.T) {
	engine := alerts.NewEngine()
	engine.AddCandidate(alerts.Candidate{
		EndpointID: "eth-1",
		Type:       "offline",
		Severity:   "critical",
		Message:    "endpoint offline: connection refused",
	})
	export, err := engine.ExportJSON(true)
	require.NoError(t, err)

	dir := t.TempDir()
	input := filepath.Join(dir, "alerts.json")
	output := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(input, export, 0644))

	reportInput = input
	reportOutput = output
	reportWindow = 24
	reportTenant = "default"

	require.NoError(t, runReport())

	pdf, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestRunReportRejectsMissingInput(t *testing.T) {
	reportInput = filepath.Join(t.TempDir(), "nope.json")
	reportOutput = filepath.Join(t.TempDir(), "report.pdf")
	assert.Error(t, runReport())
}
