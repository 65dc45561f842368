package alerts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	src := NewEngine()

	a := src.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, a)
	b := src.AddCandidate(Candidate{
		EndpointID: "eth-2",
		Type:       models.AlertTypeResponseTime,
		Severity:   models.SeverityHigh,
		Message:    "slow",
		Details:    map[string]any{"value": 1500.0, "threshold": 1000.0},
	})
	require.NotNil(t, b)
	require.True(t, src.Resolve(a.ID, "ops"))

	data, err := src.ExportJSON(true)
	require.NoError(t, err)

	dst := NewEngine()
	result, err := dst.ImportJSON(data, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Skipped)

	want := src.List(ListOptions{IncludeResolved: true})
	got := dst.List(ListOptions{IncludeResolved: true})
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].EndpointID, got[i].EndpointID)
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, want[i].Severity, got[i].Severity)
		assert.Equal(t, want[i].Resolved, got[i].Resolved)
		assert.Equal(t, want[i].ResolvedBy, got[i].ResolvedBy)
	}

	// The imported unresolved alert participates in dedup again.
	assert.Nil(t, dst.AddCandidate(offlineCandidate("eth-2")))
}

func TestExportExcludesResolved(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	a := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, a)
	e.AddCandidate(offlineCandidate("eth-2"))
	require.True(t, e.Resolve(a.ID, "ops"))

	data, err := e.ExportJSON(false)
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "eth-2", records[0]["endpointId"])
}

func TestImportSkipsMalformedRecords(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	now := time.Now().UTC().Format(time.RFC3339)
	payload := `[
		{"id":"a1","endpointId":"eth-1","type":"offline","severity":"critical","message":"down","timestamp":"` + now + `","resolved":false},
		{"id":"","endpointId":"eth-2","type":"offline","severity":"critical","message":"down","timestamp":"` + now + `","resolved":false},
		{"id":"a3","endpointId":"eth-3","type":"offline","severity":"nonsense","message":"down","timestamp":"` + now + `","resolved":false},
		{"id":"a4","endpointId":"eth-4","type":"offline","severity":"critical","message":"down","timestamp":"not-a-time","resolved":false},
		{"id":"a5","endpointId":"eth-5","type":"offline","severity":"critical","message":"down","timestamp":"` + now + `"}
	]`

	result, err := e.ImportJSON([]byte(payload), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 4, result.Skipped)

	all := e.List(ListOptions{IncludeResolved: true})
	require.Len(t, all, 1)
	assert.Equal(t, "a1", all[0].ID)
}

func TestImportMergeKeepsExisting(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	existing := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, existing)

	now := time.Now().UTC().Format(time.RFC3339)
	payload := `[
		{"id":"` + existing.ID + `","endpointId":"hijacked","type":"offline","severity":"low","message":"x","timestamp":"` + now + `","resolved":true},
		{"id":"new-1","endpointId":"eth-9","type":"peer_count","severity":"medium","message":"low peers","timestamp":"` + now + `","resolved":false}
	]`

	result, err := e.ImportJSON([]byte(payload), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	all := e.List(ListOptions{IncludeResolved: true})
	require.Len(t, all, 2)
	for _, alert := range all {
		if alert.ID == existing.ID {
			assert.Equal(t, "eth-1", alert.EndpointID)
			assert.False(t, alert.Resolved)
		}
	}
}

func TestImportReplaceDiscardsExisting(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	require.NotNil(t, e.AddCandidate(offlineCandidate("eth-old")))

	now := time.Now().UTC().Format(time.RFC3339)
	payload := `[{"id":"n1","endpointId":"eth-new","type":"offline","severity":"critical","message":"down","timestamp":"` + now + `","resolved":false}]`

	_, err := e.ImportJSON([]byte(payload), false)
	require.NoError(t, err)

	all := e.List(ListOptions{IncludeResolved: true})
	require.Len(t, all, 1)
	assert.Equal(t, "eth-new", all[0].EndpointID)
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	_, err := e.ImportJSON([]byte("{not json"), false)
	assert.Error(t, err)
}
