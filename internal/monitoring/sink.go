package monitoring

import (
	"context"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
)

// NotificationSink receives the engine's outbound event stream. The
// websocket hub is the production implementation; tests use a
// recording sink.
type NotificationSink interface {
	OnStatusUpdate(status models.EndpointStatus)
	OnHealthCheck(snapshot models.SystemMetricsSnapshot)
	OnAlert(alert models.Alert)
	OnAlertResolved(alert models.Alert)
	OnMonitoringStarted(tenant string, at time.Time)
	OnMonitoringStopped(tenant string, at time.Time)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) OnStatusUpdate(models.EndpointStatus)       {}
func (NopSink) OnHealthCheck(models.SystemMetricsSnapshot) {}
func (NopSink) OnAlert(models.Alert)                       {}
func (NopSink) OnAlertResolved(models.Alert)               {}
func (NopSink) OnMonitoringStarted(string, time.Time)      {}
func (NopSink) OnMonitoringStopped(string, time.Time)      {}

// EndpointProvider supplies the per-tenant endpoint inventory. The
// file-backed provider in the config package implements it.
type EndpointProvider interface {
	Endpoints(ctx context.Context, tenant string) ([]models.EndpointConfig, error)
}

// Prober is the probe surface the scheduler drives. Satisfied by
// *rpc.ConnectionManager.
type Prober interface {
	AddEndpoint(ctx context.Context, config models.EndpointConfig) bool
	RemoveEndpoint(endpointID string)
	Reconnect(ctx context.Context, config models.EndpointConfig) bool
	Probe(ctx context.Context, config models.EndpointConfig) models.HealthCheckResult
}

// HostSampler reports host resource usage for the per-tick snapshot.
type HostSampler interface {
	Sample(ctx context.Context) (cpuPercent, memPercent float64, err error)
}
