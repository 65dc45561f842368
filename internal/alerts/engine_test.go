package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineCandidate(endpointID string) Candidate {
	return Candidate{
		EndpointID: endpointID,
		Type:       models.AlertTypeOffline,
		Severity:   models.SeverityCritical,
		Message:    "endpoint is offline",
	}
}

func TestAddCandidateDedupWindow(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	first := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, first)

	// Same (endpoint, type) within the window: suppressed.
	second := e.AddCandidate(offlineCandidate("eth-1"))
	assert.Nil(t, second)
	assert.Len(t, e.List(ListOptions{IncludeResolved: true}), 1)

	// Different endpoint is a different dedup key.
	other := e.AddCandidate(offlineCandidate("eth-2"))
	assert.NotNil(t, other)
}

func TestAddCandidateDedupExpiresAfterWindow(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	base := time.Now()
	e.now = func() time.Time { return base }
	require.NotNil(t, e.AddCandidate(offlineCandidate("eth-1")))

	e.now = func() time.Time { return base.Add(DefaultDuplicateWindow + time.Second) }
	assert.NotNil(t, e.AddCandidate(offlineCandidate("eth-1")))
	assert.Len(t, e.List(ListOptions{IncludeResolved: true}), 2)
}

func TestAddCandidateAfterResolveNotSuppressed(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	first := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, first)
	require.True(t, e.Resolve(first.ID, "ops"))

	// The prior alert is resolved, so the dedup key is free again.
	second := e.AddCandidate(offlineCandidate("eth-1"))
	assert.NotNil(t, second)
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	alert := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, alert)

	require.True(t, e.Resolve(alert.ID, "ops"))
	stored := e.List(ListOptions{IncludeResolved: true})[0]
	firstResolvedAt := stored.ResolvedAt
	require.NotNil(t, firstResolvedAt)

	assert.False(t, e.Resolve(alert.ID, "ops-again"))
	stored = e.List(ListOptions{IncludeResolved: true})[0]
	assert.Equal(t, *firstResolvedAt, *stored.ResolvedAt)
	assert.Equal(t, "ops", stored.ResolvedBy)
}

func TestResolveUnknownID(t *testing.T) {
	t.Parallel()
	e := NewEngine()
	assert.False(t, e.Resolve("nope", "ops"))
}

func TestAutoResolve(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	e.AddCandidate(offlineCandidate("eth-1"))
	e.AddCandidate(Candidate{
		EndpointID: "eth-1",
		Type:       models.AlertTypeSyncLag,
		Severity:   models.SeverityMedium,
		Message:    "node catching up",
	})
	e.AddCandidate(offlineCandidate("eth-2"))

	count := e.AutoResolve("eth-1", models.AlertTypeOffline, models.AlertTypeSyncLag)
	assert.Equal(t, 2, count)

	for _, alert := range e.List(ListOptions{IncludeResolved: true, EndpointID: "eth-1"}) {
		assert.True(t, alert.Resolved)
		assert.Equal(t, AutoResolver, alert.ResolvedBy)
	}

	// eth-2 untouched.
	assert.Len(t, e.Active("eth-2"), 1)
}

func TestBulkResolve(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	a := e.AddCandidate(offlineCandidate("eth-1"))
	b := e.AddCandidate(offlineCandidate("eth-2"))
	require.NotNil(t, a)
	require.NotNil(t, b)

	count := e.BulkResolve([]string{a.ID, b.ID, "missing"}, "ops")
	assert.Equal(t, 2, count)
	assert.Zero(t, e.ActiveCount())
}

func TestAlertListCap(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	// 1001 distinct (endpoint, type) pairs so dedup never triggers.
	for i := 0; i < DefaultMaxAlerts+1; i++ {
		alert := e.AddCandidate(offlineCandidate(fmt.Sprintf("ep-%04d", i)))
		require.NotNil(t, alert)
	}

	all := e.List(ListOptions{IncludeResolved: true})
	require.Len(t, all, DefaultMaxAlerts)

	// The oldest (first inserted) was evicted; the newest survives.
	for _, alert := range all {
		assert.NotEqual(t, "ep-0000", alert.EndpointID)
	}
	assert.Equal(t, "ep-1000", all[0].EndpointID)
}

func TestRetentionAsymmetry(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	base := time.Now()

	// Resolved alert created 30h ago.
	e.now = func() time.Time { return base.Add(-30 * time.Hour) }
	resolved := e.AddCandidate(offlineCandidate("eth-old-resolved"))
	require.NotNil(t, resolved)
	require.True(t, e.Resolve(resolved.ID, "ops"))

	// Unresolved alert created 100h ago.
	e.now = func() time.Time { return base.Add(-100 * time.Hour) }
	unresolved := e.AddCandidate(offlineCandidate("eth-ancient-active"))
	require.NotNil(t, unresolved)

	e.now = func() time.Time { return base }
	removed := e.ClearOlderThan(24 * time.Hour)
	assert.Equal(t, 1, removed)

	remaining := e.List(ListOptions{IncludeResolved: true})
	require.Len(t, remaining, 1)
	assert.Equal(t, "eth-ancient-active", remaining[0].EndpointID)
	assert.False(t, remaining[0].Resolved)
}

func TestAcknowledge(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	alert := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, alert)

	require.NoError(t, e.Acknowledge(alert.ID, "alice"))
	stored := e.List(ListOptions{IncludeResolved: true})[0]
	assert.True(t, stored.Acknowledged)
	assert.Equal(t, "alice", stored.AckUser)
	require.NotNil(t, stored.AckTime)
	firstAck := *stored.AckTime

	// Second acknowledge keeps the original attribution.
	require.NoError(t, e.Acknowledge(alert.ID, "bob"))
	stored = e.List(ListOptions{IncludeResolved: true})[0]
	assert.Equal(t, "alice", stored.AckUser)
	assert.Equal(t, firstAck, *stored.AckTime)

	require.NoError(t, e.Unacknowledge(alert.ID))
	stored = e.List(ListOptions{IncludeResolved: true})[0]
	assert.False(t, stored.Acknowledged)
	assert.Nil(t, stored.AckTime)

	assert.Error(t, e.Acknowledge("missing", "alice"))
}

func TestListFilters(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	e.AddCandidate(offlineCandidate("eth-mainnet-1"))
	e.AddCandidate(Candidate{
		EndpointID: "eth-mainnet-2",
		Type:       models.AlertTypeResponseTime,
		Severity:   models.SeverityHigh,
		Message:    "slow",
	})
	e.AddCandidate(Candidate{
		EndpointID: "poly-1",
		Type:       models.AlertTypePeerCount,
		Severity:   models.SeverityMedium,
		Message:    "low peers",
	})

	assert.Len(t, e.List(ListOptions{EndpointID: "eth-*"}), 2)
	assert.Len(t, e.List(ListOptions{Type: models.AlertTypePeerCount}), 1)
	assert.Len(t, e.BySeverity(models.SeverityHigh, false), 1)

	limited := e.List(ListOptions{Limit: 2})
	assert.Len(t, limited, 2)

	offset := e.List(ListOptions{Offset: 2})
	assert.Len(t, offset, 1)

	assert.Empty(t, e.List(ListOptions{Offset: 10}))
}

func TestMostRecent(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	_, ok := e.MostRecent("eth-1")
	assert.False(t, ok)

	base := time.Now()
	e.now = func() time.Time { return base.Add(-10 * time.Minute) }
	e.AddCandidate(offlineCandidate("eth-1"))

	e.now = func() time.Time { return base }
	e.AddCandidate(Candidate{
		EndpointID: "eth-1",
		Type:       models.AlertTypeResponseTime,
		Severity:   models.SeverityLow,
		Message:    "slow",
	})

	recent, ok := e.MostRecent("eth-1")
	require.True(t, ok)
	assert.Equal(t, models.AlertTypeResponseTime, recent.Type)
}

func TestStatsWindow(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	base := time.Now()

	e.now = func() time.Time { return base.Add(-48 * time.Hour) }
	e.AddCandidate(offlineCandidate("eth-outside"))

	e.now = func() time.Time { return base.Add(-2 * time.Hour) }
	inWindow := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, inWindow)
	e.AddCandidate(Candidate{
		EndpointID: "eth-1",
		Type:       models.AlertTypeResponseTime,
		Severity:   models.SeverityHigh,
		Message:    "slow",
	})

	e.now = func() time.Time { return base }
	require.True(t, e.Resolve(inWindow.ID, "ops"))

	stats := e.Stats(24)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 1, stats.BySeverity[models.SeverityCritical])
	assert.Equal(t, 1, stats.BySeverity[models.SeverityHigh])
	assert.Equal(t, 2, stats.ByEndpoint["eth-1"])
	assert.Equal(t, 1, stats.ByType[models.AlertTypeOffline])
}

func TestTrendBucketing(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	base := time.Now()

	e.now = func() time.Time { return base.Add(-90 * time.Minute) }
	e.AddCandidate(offlineCandidate("eth-1"))

	e.now = func() time.Time { return base.Add(-10 * time.Minute) }
	e.AddCandidate(offlineCandidate("eth-2"))

	e.now = func() time.Time { return base }
	buckets := e.Trends(2, 1)
	require.Len(t, buckets, 2)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 1, buckets[1].Count)
	assert.Equal(t, 1, buckets[0].BySeverity[models.SeverityCritical])
}

func TestCallbacksFire(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	var fired, resolved []models.Alert
	e.SetAlertCallback(func(a models.Alert) { fired = append(fired, a) })
	e.SetResolvedCallback(func(a models.Alert) { resolved = append(resolved, a) })

	alert := e.AddCandidate(offlineCandidate("eth-1"))
	require.NotNil(t, alert)
	e.AddCandidate(offlineCandidate("eth-1")) // deduped, no callback
	e.Resolve(alert.ID, "ops")

	require.Len(t, fired, 1)
	require.Len(t, resolved, 1)
	assert.Equal(t, alert.ID, fired[0].ID)
	assert.Equal(t, alert.ID, resolved[0].ID)
	assert.True(t, resolved[0].Resolved)
}

func TestMalformedCandidateDropped(t *testing.T) {
	t.Parallel()
	e := NewEngine()

	assert.Nil(t, e.AddCandidate(Candidate{Type: models.AlertTypeOffline}))
	assert.Nil(t, e.AddCandidate(Candidate{EndpointID: "eth-1", Type: "bogus"}))
	assert.Empty(t, e.List(ListOptions{IncludeResolved: true}))
}
