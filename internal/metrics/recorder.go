// Package metrics records health-check and alert activity into a
// private Prometheus registry and renders it in text exposition format.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "chainpulse"

var endpointLabels = []string{"endpoint_id", "endpoint_name", "network", "chain_id"}

// responseTimeBuckets cover the latency range of public RPC providers,
// from same-region nodes to congested free tiers.
var responseTimeBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// resolutionBuckets span 1 minute to 1 day.
var resolutionBuckets = []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400}

// series holds one generation of registered collectors. Reset swaps in
// a fresh generation, which clears every label combination at once.
type series struct {
	registry *prometheus.Registry

	rpcRequestsTotal *prometheus.CounterVec
	rpcErrorsTotal   *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec

	rpcBlockNumber         *prometheus.GaugeVec
	rpcGasPrice            *prometheus.GaugeVec
	rpcPeerCount           *prometheus.GaugeVec
	rpcOnlineStatus        *prometheus.GaugeVec
	rpcSyncProgressPercent *prometheus.GaugeVec

	activeAlerts      prometheus.Gauge
	systemRPCsTotal   prometheus.Gauge
	systemRPCsOnline  prometheus.Gauge
	systemRPCsOffline prometheus.Gauge

	rpcResponseTimeSeconds     *prometheus.HistogramVec
	alertResolutionTimeSeconds *prometheus.HistogramVec
}

func newSeries() *series {
	s := &series{
		registry: prometheus.NewRegistry(),
		rpcRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Total number of health-check probes issued per endpoint",
		}, endpointLabels),
		rpcErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_errors_total",
			Help:      "Total number of failed health-check probes per endpoint",
		}, endpointLabels),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of alerts fired by type and severity",
		}, []string{"type", "severity"}),
		rpcBlockNumber: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_block_number",
			Help:      "Latest block number reported by the endpoint",
		}, endpointLabels),
		rpcGasPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_gas_price",
			Help:      "Latest gas price in wei reported by the endpoint",
		}, endpointLabels),
		rpcPeerCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_peer_count",
			Help:      "Number of peers connected to the endpoint's node",
		}, endpointLabels),
		rpcOnlineStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_online_status",
			Help:      "Whether the endpoint's last applied probe succeeded (1) or failed (0)",
		}, endpointLabels),
		rpcSyncProgressPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_sync_progress_percent",
			Help:      "Node sync progress, 100 when fully synced",
		}, endpointLabels),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Number of unresolved alerts",
		}),
		systemRPCsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_rpcs_total",
			Help:      "Number of endpoints under monitoring",
		}),
		systemRPCsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_rpcs_online",
			Help:      "Number of monitored endpoints currently online",
		}),
		systemRPCsOffline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_rpcs_offline",
			Help:      "Number of monitored endpoints currently offline",
		}),
		rpcResponseTimeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_response_time_seconds",
			Help:      "Probe round-trip time per endpoint",
			Buckets:   responseTimeBuckets,
		}, endpointLabels),
		alertResolutionTimeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_resolution_time_seconds",
			Help:      "Time from alert creation to resolution by alert type",
			Buckets:   resolutionBuckets,
		}, []string{"type"}),
	}

	s.registry.MustRegister(
		s.rpcRequestsTotal,
		s.rpcErrorsTotal,
		s.alertsTotal,
		s.rpcBlockNumber,
		s.rpcGasPrice,
		s.rpcPeerCount,
		s.rpcOnlineStatus,
		s.rpcSyncProgressPercent,
		s.activeAlerts,
		s.systemRPCsTotal,
		s.systemRPCsOnline,
		s.systemRPCsOffline,
		s.rpcResponseTimeSeconds,
		s.alertResolutionTimeSeconds,
	)
	return s
}

// Recorder is the time-series sink for probe results and alert events.
// All methods are safe for concurrent use.
type Recorder struct {
	mu sync.RWMutex
	s  *series
}

func NewRecorder() *Recorder {
	return &Recorder{s: newSeries()}
}

func endpointLabelValues(config models.EndpointConfig) []string {
	return []string{config.ID, config.Name, config.Network, strconv.FormatInt(config.ChainID, 10)}
}

// Record updates every series relevant to one probe result.
func (r *Recorder) Record(config models.EndpointConfig, result models.HealthCheckResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := endpointLabelValues(config)
	r.s.rpcRequestsTotal.WithLabelValues(labels...).Inc()
	r.s.rpcResponseTimeSeconds.WithLabelValues(labels...).Observe(result.ResponseTime.Seconds())

	if !result.IsOnline {
		r.s.rpcErrorsTotal.WithLabelValues(labels...).Inc()
		r.s.rpcOnlineStatus.WithLabelValues(labels...).Set(0)
		return
	}

	r.s.rpcOnlineStatus.WithLabelValues(labels...).Set(1)
	r.s.rpcBlockNumber.WithLabelValues(labels...).Set(float64(result.BlockNumber))
	r.s.rpcGasPrice.WithLabelValues(labels...).Set(float64(result.GasPrice))
	r.s.rpcPeerCount.WithLabelValues(labels...).Set(float64(result.PeerCount))
	r.s.rpcSyncProgressPercent.WithLabelValues(labels...).Set(result.SyncProgress)
}

// RecordAlert counts a newly fired alert.
func (r *Recorder) RecordAlert(alert models.Alert) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.s.alertsTotal.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
}

// RecordResolution samples the fire-to-resolve duration of an alert.
func (r *Recorder) RecordResolution(alert models.Alert) {
	if alert.ResolvedAt == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	duration := alert.ResolvedAt.Sub(alert.Timestamp)
	r.s.alertResolutionTimeSeconds.WithLabelValues(string(alert.Type)).Observe(duration.Seconds())
}

// SetActiveAlerts publishes the current unresolved alert count.
func (r *Recorder) SetActiveAlerts(count int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.s.activeAlerts.Set(float64(count))
}

// SetSystemCounts publishes the fleet-level endpoint gauges.
func (r *Recorder) SetSystemCounts(total, online, offline int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.s.systemRPCsTotal.Set(float64(total))
	r.s.systemRPCsOnline.Set(float64(online))
	r.s.systemRPCsOffline.Set(float64(offline))
}

// RemoveEndpoint drops all series for an endpoint that left the
// monitored set, so stale gauges do not linger in scrapes.
func (r *Recorder) RemoveEndpoint(endpointID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	match := prometheus.Labels{"endpoint_id": endpointID}
	r.s.rpcRequestsTotal.DeletePartialMatch(match)
	r.s.rpcErrorsTotal.DeletePartialMatch(match)
	r.s.rpcBlockNumber.DeletePartialMatch(match)
	r.s.rpcGasPrice.DeletePartialMatch(match)
	r.s.rpcPeerCount.DeletePartialMatch(match)
	r.s.rpcOnlineStatus.DeletePartialMatch(match)
	r.s.rpcSyncProgressPercent.DeletePartialMatch(match)
	r.s.rpcResponseTimeSeconds.DeletePartialMatch(match)
}

// Reset discards every recorded series and starts a fresh registry.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = newSeries()
}

func (r *Recorder) gather() ([]*dto.MetricFamily, error) {
	r.mu.RLock()
	registry := r.s.registry
	r.mu.RUnlock()
	return registry.Gather()
}

// Render produces the text exposition format for all current series.
func (r *Recorder) Render() ([]byte, error) {
	families, err := r.gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
			return nil, fmt.Errorf("encode metric family %q: %w", family.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// Handler serves the scrape endpoint. It follows registry swaps made
// by Reset.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.GathererFunc(r.gather), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Snapshot is a convenience for tests and debug endpoints: the current
// value of a single-sample family, false when absent.
func (r *Recorder) Snapshot(name string) (float64, bool) {
	families, err := r.gather()
	if err != nil {
		return 0, false
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		metrics := family.GetMetric()
		if len(metrics) != 1 {
			return 0, false
		}
		m := metrics[0]
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), true
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), true
		}
		return 0, false
	}
	return 0, false
}
