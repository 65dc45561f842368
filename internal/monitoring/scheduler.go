// Package monitoring drives the health-check loop: it probes every
// enabled endpoint on a fixed interval, maintains live status and
// bounded history, records metrics, evaluates alert thresholds and
// prunes stale data.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/chainpulse/chainpulse/internal/metrics"
	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/rs/zerolog/log"
)

// State is the per-tenant lifecycle of the scheduler.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

const (
	DefaultCheckInterval   = 30 * time.Second
	DefaultCleanupInterval = time.Hour
	DefaultHistoryMaxAge   = 24 * time.Hour

	// reconnectAfterFailures is how many consecutive failed probes
	// trigger a handle rebuild.
	reconnectAfterFailures = 3
)

// Options tune the scheduler's timers. Zero values take defaults.
type Options struct {
	CheckInterval   time.Duration
	CleanupInterval time.Duration
	HistoryMaxAge   time.Duration
}

func (o Options) withDefaults() Options {
	if o.CheckInterval <= 0 {
		o.CheckInterval = DefaultCheckInterval
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.HistoryMaxAge <= 0 {
		o.HistoryMaxAge = DefaultHistoryMaxAge
	}
	return o
}

// Scheduler owns the monitoring lifecycle for one tenant at a time. It
// is the only writer of the endpoint status map.
type Scheduler struct {
	prober   Prober
	provider EndpointProvider
	engine   *alerts.Engine
	recorder *metrics.Recorder
	sink     NotificationSink
	sampler  HostSampler
	opts     Options

	mu         sync.RWMutex
	state      State
	tenant     string
	configs    map[string]models.EndpointConfig
	order      []string // endpoint IDs in provider order
	statuses   map[string]*models.EndpointStatus
	inFlight   map[string]bool
	failures   map[string]int
	bestBlocks map[int64]uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler wires the scheduler to its collaborators and registers
// the alert observers that fan out to metrics and the sink.
func NewScheduler(prober Prober, provider EndpointProvider, engine *alerts.Engine, recorder *metrics.Recorder, sink NotificationSink, sampler HostSampler, opts Options) *Scheduler {
	if sink == nil {
		sink = NopSink{}
	}
	s := &Scheduler{
		prober:     prober,
		provider:   provider,
		engine:     engine,
		recorder:   recorder,
		sink:       sink,
		sampler:    sampler,
		opts:       opts.withDefaults(),
		state:      StateStopped,
		configs:    make(map[string]models.EndpointConfig),
		statuses:   make(map[string]*models.EndpointStatus),
		inFlight:   make(map[string]bool),
		failures:   make(map[string]int),
		bestBlocks: make(map[int64]uint64),
	}

	engine.SetAlertCallback(func(alert models.Alert) {
		recorder.RecordAlert(alert)
		recorder.SetActiveAlerts(engine.ActiveCount())
		sink.OnAlert(alert)
	})
	engine.SetResolvedCallback(func(alert models.Alert) {
		recorder.RecordResolution(alert)
		recorder.SetActiveAlerts(engine.ActiveCount())
		sink.OnAlertResolved(alert)
	})
	return s
}

// Start loads the tenant's enabled endpoints, seeds their status and
// begins the check and cleanup timers. Calling Start while already
// running is a no-op with a warning. Startup failures (no endpoints,
// provider error) are returned to the caller.
func (s *Scheduler) Start(ctx context.Context, tenant string) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		log.Warn().Str("tenant", tenant).Msg("Monitoring already running, ignoring start request")
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	configs, err := s.provider.Endpoints(ctx, tenant)
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("load endpoints for tenant %s: %w", tenant, err)
	}

	enabled := make([]models.EndpointConfig, 0, len(configs))
	for _, config := range configs {
		if config.Enabled {
			enabled = append(enabled, config)
		}
	}
	if len(enabled) == 0 {
		s.setState(StateStopped)
		return fmt.Errorf("tenant %s has no enabled endpoints", tenant)
	}

	for _, config := range enabled {
		if !s.prober.AddEndpoint(ctx, config) {
			log.Warn().
				Str("endpoint", config.ID).
				Str("url", config.URL).
				Msg("Connectivity test failed, endpoint will be probed anyway")
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.tenant = tenant
	s.configs = make(map[string]models.EndpointConfig, len(enabled))
	s.order = s.order[:0]
	s.statuses = make(map[string]*models.EndpointStatus, len(enabled))
	s.inFlight = make(map[string]bool, len(enabled))
	s.failures = make(map[string]int, len(enabled))
	s.bestBlocks = make(map[int64]uint64)
	for _, config := range enabled {
		s.configs[config.ID] = config
		s.order = append(s.order, config.ID)
		s.statuses[config.ID] = &models.EndpointStatus{
			EndpointID: config.ID,
			Name:       config.Name,
			Network:    config.Network,
			IsOnline:   false,
			History:    []models.HealthMetric{},
		}
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	s.mu.Unlock()

	s.recorder.SetSystemCounts(len(enabled), 0, len(enabled))

	startedAt := time.Now()
	s.sink.OnMonitoringStarted(tenant, startedAt)
	log.Info().
		Str("tenant", tenant).
		Int("endpoints", len(enabled)).
		Dur("interval", s.opts.CheckInterval).
		Msg("Monitoring started")

	go s.run(runCtx)
	return nil
}

// Stop cancels the timers and transitions to Stopped. In-flight probes
// are not cancelled; their completions apply to the retained status
// map harmlessly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	cancel := s.cancel
	done := s.done
	tenant := s.tenant
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.sink.OnMonitoringStopped(tenant, time.Now())
	log.Info().Str("tenant", tenant).Msg("Monitoring stopped")
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Tenant returns the tenant under monitoring, empty when stopped.
func (s *Scheduler) Tenant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant
}

// Status returns a copy of one endpoint's live status.
func (s *Scheduler) Status(endpointID string) (models.EndpointStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[endpointID]
	if !ok {
		return models.EndpointStatus{}, false
	}
	return status.Clone(), true
}

// Statuses returns copies of every endpoint's live status in provider
// order.
func (s *Scheduler) Statuses() []models.EndpointStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EndpointStatus, 0, len(s.order))
	for _, id := range s.order {
		if status, ok := s.statuses[id]; ok {
			out = append(out, status.Clone())
		}
	}
	return out
}

// ApplyEndpointUpdates takes effect between ticks: enabled flips and
// threshold edits apply to known endpoints. Additions and removals
// wait for the next Start.
func (s *Scheduler) ApplyEndpointUpdates(configs []models.EndpointConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, incoming := range configs {
		current, ok := s.configs[incoming.ID]
		if !ok {
			continue
		}
		if current.Enabled != incoming.Enabled {
			log.Info().
				Str("endpoint", incoming.ID).
				Bool("enabled", incoming.Enabled).
				Msg("Endpoint enabled flag changed")
		}
		current.Enabled = incoming.Enabled
		current.Thresholds = incoming.Thresholds
		s.configs[incoming.ID] = current
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	checkTicker := time.NewTicker(s.opts.CheckInterval)
	defer checkTicker.Stop()
	cleanupTicker := time.NewTicker(s.opts.CleanupInterval)
	defer cleanupTicker.Stop()

	// First pass immediately so dashboards are not empty for a full
	// interval after start.
	s.runChecks(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-checkTicker.C:
			s.runChecks(ctx)
		case <-cleanupTicker.C:
			s.cleanup()
		}
	}
}

// runChecks probes every enabled endpoint concurrently, waits for the
// batch and broadcasts the aggregate snapshot. Endpoints with a probe
// still in flight from a previous tick are skipped, so a slow endpoint
// can never have two overlapping probes racing to apply their results.
func (s *Scheduler) runChecks(ctx context.Context) {
	started := time.Now()

	s.mu.Lock()
	batch := make([]models.EndpointConfig, 0, len(s.order))
	for _, id := range s.order {
		config, ok := s.configs[id]
		if !ok || !config.Enabled {
			continue
		}
		if s.inFlight[id] {
			log.Debug().Str("endpoint", id).Msg("Previous probe still in flight, skipping")
			continue
		}
		s.inFlight[id] = true
		batch = append(batch, config)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, config := range batch {
		wg.Add(1)
		go func(config models.EndpointConfig) {
			defer wg.Done()
			defer s.clearInFlight(config.ID)
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("endpoint", config.ID).
						Interface("panic", r).
						Msg("Recovered panic during endpoint check")
					s.applyResult(ctx, config, models.HealthCheckResult{
						IsOnline:     false,
						ErrorMessage: fmt.Sprintf("internal error: %v", r),
						CheckedAt:    time.Now(),
					})
				}
			}()
			result := s.prober.Probe(ctx, config)
			s.applyResult(ctx, config, result)
		}(config)
	}
	wg.Wait()

	s.broadcastSnapshot(ctx, time.Since(started))
}

func (s *Scheduler) clearInFlight(endpointID string) {
	s.mu.Lock()
	delete(s.inFlight, endpointID)
	s.mu.Unlock()
}

// applyResult is the per-endpoint tail of a probe: status and history
// update, metrics, failure accounting and threshold evaluation. It is
// safe to call after Stop; the retained status map simply absorbs the
// late result.
func (s *Scheduler) applyResult(ctx context.Context, config models.EndpointConfig, result models.HealthCheckResult) {
	s.mu.Lock()
	status, ok := s.statuses[config.ID]
	if !ok {
		s.mu.Unlock()
		return
	}

	metric := models.MetricFromResult(result)
	status.History = append([]models.HealthMetric{metric}, status.History...)
	if limit := config.HistoryCap(); len(status.History) > limit {
		status.History = status.History[:limit]
	}

	status.IsOnline = result.IsOnline
	status.LastCheck = metric.Timestamp
	status.ResponseTime = result.ResponseTime
	status.BlockNumber = result.BlockNumber
	status.PeerCount = result.PeerCount
	status.GasPrice = result.GasPrice
	status.IsSyncing = result.IsSyncing
	status.SyncProgress = result.SyncProgress
	status.CurrentBlock = result.CurrentBlock
	status.HighestBlock = result.HighestBlock
	status.LastError = result.ErrorMessage

	if result.IsOnline {
		s.failures[config.ID] = 0
		if result.BlockNumber > s.bestBlocks[config.ChainID] {
			s.bestBlocks[config.ChainID] = result.BlockNumber
		}
	} else {
		s.failures[config.ID]++
	}
	failures := s.failures[config.ID]
	bestBlock := s.bestBlocks[config.ChainID]
	history := append([]models.HealthMetric(nil), status.History...)
	statusCopy := status.Clone()
	s.mu.Unlock()

	s.recorder.Record(config, result)
	s.sink.OnStatusUpdate(statusCopy)

	if failures > 0 && failures%reconnectAfterFailures == 0 {
		log.Warn().
			Str("endpoint", config.ID).
			Int("consecutiveFailures", failures).
			Msg("Rebuilding endpoint handle after repeated probe failures")
		s.prober.Reconnect(ctx, config)
	}

	candidates := evaluateThresholds(config, result, history, bestBlock)
	fired := make(map[models.AlertType]bool, len(candidates))
	for _, candidate := range candidates {
		fired[candidate.Type] = true
		s.engine.AddCandidate(candidate)
	}

	if result.IsOnline {
		recovered := []models.AlertType{models.AlertTypeOffline}
		if !fired[models.AlertTypeErrorRate] {
			recovered = append(recovered, models.AlertTypeErrorRate)
		}
		if !fired[models.AlertTypeSyncLag] {
			recovered = append(recovered, models.AlertTypeSyncLag)
		}
		if n := s.engine.AutoResolve(config.ID, recovered...); n > 0 {
			log.Info().
				Str("endpoint", config.ID).
				Int("resolved", n).
				Msg("Auto-resolved alerts after recovery")
		}
	}
}

func (s *Scheduler) broadcastSnapshot(ctx context.Context, duration time.Duration) {
	s.mu.RLock()
	tenant := s.tenant
	total := 0
	online := 0
	for _, id := range s.order {
		config, ok := s.configs[id]
		if !ok || !config.Enabled {
			continue
		}
		total++
		if status, ok := s.statuses[id]; ok && status.IsOnline {
			online++
		}
	}
	s.mu.RUnlock()

	snapshot := models.SystemMetricsSnapshot{
		Timestamp:        time.Now(),
		Tenant:           tenant,
		TotalEndpoints:   total,
		OnlineEndpoints:  online,
		OfflineEndpoints: total - online,
		ActiveAlerts:     s.engine.ActiveCount(),
		CheckDuration:    duration,
	}
	if s.sampler != nil {
		cpu, mem, err := s.sampler.Sample(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Host sampling failed")
		} else {
			snapshot.HostCPUPercent = cpu
			snapshot.HostMemPercent = mem
		}
	}

	s.recorder.SetSystemCounts(total, online, total-online)
	s.recorder.SetActiveAlerts(snapshot.ActiveAlerts)
	s.sink.OnHealthCheck(snapshot)
}

// cleanup trims history entries older than HistoryMaxAge and removes
// resolved alerts past the same cutoff. Unresolved alerts and recent
// history survive regardless of count.
func (s *Scheduler) cleanup() {
	cutoff := time.Now().Add(-s.opts.HistoryMaxAge)
	trimmed := 0

	s.mu.Lock()
	for _, status := range s.statuses {
		// History is newest-first, so stale entries sit at the tail.
		keep := len(status.History)
		for keep > 0 && status.History[keep-1].Timestamp.Before(cutoff) {
			keep--
		}
		if keep < len(status.History) {
			trimmed += len(status.History) - keep
			status.History = status.History[:keep]
		}
	}
	s.mu.Unlock()

	removedAlerts := s.engine.ClearOlderThan(s.opts.HistoryMaxAge)
	if trimmed > 0 || removedAlerts > 0 {
		log.Info().
			Int("historyEntries", trimmed).
			Int("alerts", removedAlerts).
			Msg("Cleanup pass completed")
	}
}

// RunChecksOnce executes a single synchronous check pass. Intended for
// tests and the one-shot CLI mode.
func (s *Scheduler) RunChecksOnce(ctx context.Context) {
	s.runChecks(ctx)
}

// Cleanup runs one cleanup pass immediately.
func (s *Scheduler) Cleanup() {
	s.cleanup()
}
