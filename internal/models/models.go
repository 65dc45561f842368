// Package models defines the shared data model for the chainpulse
// monitoring engine: endpoint configuration, live status, bounded
// health history, probe results and alerts.
package models

import (
	"time"
)

// AlertSeverity represents how urgent an alert is.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s AlertSeverity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertType identifies which threshold check produced an alert.
type AlertType string

const (
	AlertTypeOffline      AlertType = "offline"
	AlertTypeResponseTime AlertType = "response_time"
	AlertTypePeerCount    AlertType = "peer_count"
	AlertTypeSyncLag      AlertType = "sync_lag"
	AlertTypeBlockLag     AlertType = "block_lag"
	AlertTypeErrorRate    AlertType = "error_rate"
)

// ValidAlertType reports whether t is one of the known alert types.
func ValidAlertType(t AlertType) bool {
	switch t {
	case AlertTypeOffline, AlertTypeResponseTime, AlertTypePeerCount,
		AlertTypeSyncLag, AlertTypeBlockLag, AlertTypeErrorRate:
		return true
	}
	return false
}

// AlertThresholds holds the per-metric trigger levels for one endpoint.
// Zero values disable the corresponding check (offline is always on).
type AlertThresholds struct {
	ResponseTimeMs float64 `json:"responseTime"` // milliseconds
	ErrorRatePct   float64 `json:"errorRate"`    // percent of failed probes in history
	PeerCount      float64 `json:"peerCount"`    // minimum acceptable peers
	BlockLag       uint64  `json:"blockLag"`     // blocks behind the chain's best known head
	SyncLagPct     float64 `json:"syncLag"`      // minimum acceptable sync progress percent
}

// EndpointConfig describes one monitored JSON-RPC endpoint. It is owned
// by the configuration layer and read-only to the engine; only Enabled
// and Thresholds may change between ticks.
type EndpointConfig struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	URL               string          `json:"url"`
	Network           string          `json:"network"`
	ChainID           int64           `json:"chainId"`
	TimeoutMs         int64           `json:"timeoutMs"`
	Enabled           bool            `json:"enabled"`
	Priority          int             `json:"priority"`
	Thresholds        AlertThresholds `json:"thresholds"`
	MaxHistoryEntries int             `json:"maxHistoryEntries"`
}

// Default limits applied when an EndpointConfig leaves them unset.
const (
	DefaultProbeTimeout      = 10 * time.Second
	DefaultMaxHistoryEntries = 100
)

// ProbeTimeout returns the per-probe timeout, falling back to the
// default when the config does not set one.
func (c EndpointConfig) ProbeTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return DefaultProbeTimeout
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HistoryCap returns the bounded history size for this endpoint.
func (c EndpointConfig) HistoryCap() int {
	if c.MaxHistoryEntries <= 0 {
		return DefaultMaxHistoryEntries
	}
	return c.MaxHistoryEntries
}

// HealthCheckResult is the outcome of a single probe. Probe failures
// are reported as IsOnline=false with ErrorMessage set; a result never
// carries an error value.
type HealthCheckResult struct {
	IsOnline     bool          `json:"isOnline"`
	ResponseTime time.Duration `json:"responseTime"`
	BlockNumber  uint64        `json:"blockNumber"`
	GasPrice     uint64        `json:"gasPrice"`
	PeerCount    int           `json:"peerCount"`
	IsSyncing    bool          `json:"isSyncing"`
	SyncProgress float64       `json:"syncProgress"`
	CurrentBlock uint64        `json:"currentBlock,omitempty"`
	HighestBlock uint64        `json:"highestBlock,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	CheckedAt    time.Time     `json:"checkedAt"`
}

// HealthMetric is one immutable history sample derived from a probe.
type HealthMetric struct {
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"responseTime"`
	BlockNumber  uint64        `json:"blockNumber"`
	PeerCount    int           `json:"peerCount"`
	GasPrice     uint64        `json:"gasPrice"`
	IsSyncing    bool          `json:"isSyncing"`
	SyncProgress float64       `json:"syncProgress"`
	IsOnline     bool          `json:"isOnline"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
}

// MetricFromResult builds the history entry for a probe result.
func MetricFromResult(result HealthCheckResult) HealthMetric {
	ts := result.CheckedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return HealthMetric{
		Timestamp:    ts,
		ResponseTime: result.ResponseTime,
		BlockNumber:  result.BlockNumber,
		PeerCount:    result.PeerCount,
		GasPrice:     result.GasPrice,
		IsSyncing:    result.IsSyncing,
		SyncProgress: result.SyncProgress,
		IsOnline:     result.IsOnline,
		ErrorMessage: result.ErrorMessage,
	}
}

// EndpointStatus is the live view of one endpoint, owned exclusively by
// the scheduler. History is ordered most-recent-first and never exceeds
// the endpoint's history cap.
type EndpointStatus struct {
	EndpointID   string         `json:"endpointId"`
	Name         string         `json:"name"`
	Network      string         `json:"network"`
	IsOnline     bool           `json:"isOnline"`
	LastCheck    time.Time      `json:"lastCheck"`
	ResponseTime time.Duration  `json:"responseTime"`
	BlockNumber  uint64         `json:"blockNumber"`
	PeerCount    int            `json:"peerCount"`
	GasPrice     uint64         `json:"gasPrice"`
	IsSyncing    bool           `json:"isSyncing"`
	SyncProgress float64        `json:"syncProgress"`
	CurrentBlock uint64         `json:"currentBlock,omitempty"`
	HighestBlock uint64         `json:"highestBlock,omitempty"`
	LastError    string         `json:"lastError,omitempty"`
	History      []HealthMetric `json:"history"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *EndpointStatus) Clone() EndpointStatus {
	clone := *s
	if len(s.History) > 0 {
		clone.History = append([]HealthMetric(nil), s.History...)
	}
	return clone
}

// Alert is one raised alert. The alert engine is its sole owner;
// endpoints never hold alert references.
type Alert struct {
	ID         string                 `json:"id"`
	EndpointID string                 `json:"endpointId"`
	Type       AlertType              `json:"type"`
	Severity   AlertSeverity          `json:"severity"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty"`
	ResolvedBy string                 `json:"resolvedBy,omitempty"`

	Acknowledged bool       `json:"acknowledged,omitempty"`
	AckTime      *time.Time `json:"ackTime,omitempty"`
	AckUser      string     `json:"ackUser,omitempty"`
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() Alert {
	clone := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		clone.ResolvedAt = &t
	}
	if a.AckTime != nil {
		t := *a.AckTime
		clone.AckTime = &t
	}
	if a.Details != nil {
		details := make(map[string]interface{}, len(a.Details))
		for k, v := range a.Details {
			details[k] = v
		}
		clone.Details = details
	}
	return clone
}

// SystemMetricsSnapshot is the aggregate state broadcast once per tick.
type SystemMetricsSnapshot struct {
	Timestamp        time.Time     `json:"timestamp"`
	Tenant           string        `json:"tenant"`
	TotalEndpoints   int           `json:"totalEndpoints"`
	OnlineEndpoints  int           `json:"onlineEndpoints"`
	OfflineEndpoints int           `json:"offlineEndpoints"`
	ActiveAlerts     int           `json:"activeAlerts"`
	CheckDuration    time.Duration `json:"checkDuration"`
	HostCPUPercent   float64       `json:"hostCpuPercent"`
	HostMemPercent   float64       `json:"hostMemPercent"`
}
