package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// handle is the live probe state for one endpoint.
type handle struct {
	client    *client
	active    bool
	createdAt time.Time
	lastProbe time.Time
}

// HandleStats summarizes the manager's handle counts.
type HandleStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// ConnectionManager owns one probe handle per configured endpoint and
// performs the actual JSON-RPC calls. Every failure is converted into
// an offline HealthCheckResult; nothing escapes as an error.
type ConnectionManager struct {
	mu      sync.RWMutex
	handles map[string]*handle

	httpClient *http.Client
	resolver   *dnscache.Resolver
	stopDNS    chan struct{}
	stopOnce   sync.Once
}

// NewConnectionManager creates a manager with a shared DNS-cached
// transport for all endpoint clients.
func NewConnectionManager() *ConnectionManager {
	resolver := &dnscache.Resolver{}
	m := &ConnectionManager{
		handles:  make(map[string]*handle),
		resolver: resolver,
		httpClient: &http.Client{
			Transport: newCachedTransport(resolver),
		},
		stopDNS: make(chan struct{}),
	}
	go refreshResolver(resolver, m.stopDNS)
	return m
}

// Close releases background resources. Handles stay usable; Close only
// stops the DNS refresh loop.
func (m *ConnectionManager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopDNS)
	})
}

// AddEndpoint establishes a probe handle for the endpoint and performs
// one connectivity test. It returns whether the handle is usable; the
// handle is registered either way so later probes report offline
// instead of missing-handle.
func (m *ConnectionManager) AddEndpoint(ctx context.Context, config models.EndpointConfig) bool {
	c := &client{
		endpointID: config.ID,
		url:        config.URL,
		httpClient: m.httpClient,
	}

	testCtx, cancel := context.WithTimeout(ctx, config.ProbeTimeout())
	defer cancel()

	_, err := c.callUint64(testCtx, "eth_blockNumber")
	usable := err == nil
	if err != nil {
		log.Warn().
			Err(err).
			Str("endpoint", config.ID).
			Str("url", config.URL).
			Msg("Endpoint connectivity test failed")
	} else {
		log.Info().
			Str("endpoint", config.ID).
			Str("network", config.Network).
			Msg("Endpoint handle established")
	}

	m.mu.Lock()
	m.handles[config.ID] = &handle{
		client:    c,
		active:    usable,
		createdAt: time.Now(),
	}
	m.mu.Unlock()

	return usable
}

// RemoveEndpoint discards the endpoint's handle.
func (m *ConnectionManager) RemoveEndpoint(endpointID string) {
	m.mu.Lock()
	delete(m.handles, endpointID)
	m.mu.Unlock()
}

// Reconnect discards and recreates the endpoint's handle. Callers drive
// this after repeated probe failures; the manager never reconnects on
// its own.
func (m *ConnectionManager) Reconnect(ctx context.Context, config models.EndpointConfig) bool {
	log.Info().Str("endpoint", config.ID).Msg("Recreating endpoint handle")
	m.RemoveEndpoint(config.ID)
	return m.AddEndpoint(ctx, config)
}

// Probe issues the four health RPC calls concurrently against the
// endpoint's handle, racing the endpoint's timeout. A missing handle,
// a timeout or any call error yields an offline result.
func (m *ConnectionManager) Probe(ctx context.Context, config models.EndpointConfig) models.HealthCheckResult {
	start := time.Now()

	m.mu.RLock()
	h, ok := m.handles[config.ID]
	m.mu.RUnlock()

	if !ok {
		return offlineResult(start, "no probe handle for endpoint")
	}

	probeCtx, cancel := context.WithTimeout(ctx, config.ProbeTimeout())
	defer cancel()

	var (
		blockNumber uint64
		gasPrice    uint64
		peerCount   uint64
		syncInfo    syncState
	)

	g, gctx := errgroup.WithContext(probeCtx)
	g.Go(func() error {
		var err error
		blockNumber, err = h.client.callUint64(gctx, "eth_blockNumber")
		return err
	})
	g.Go(func() error {
		var err error
		gasPrice, err = h.client.callUint64(gctx, "eth_gasPrice")
		return err
	})
	g.Go(func() error {
		var err error
		peerCount, err = h.client.callUint64(gctx, "net_peerCount")
		return err
	})
	g.Go(func() error {
		var err error
		syncInfo, err = h.client.callSyncing(gctx)
		return err
	})

	err := g.Wait()
	elapsed := time.Since(start)

	m.mu.Lock()
	h.lastProbe = time.Now()
	h.active = err == nil
	m.mu.Unlock()

	if err != nil {
		log.Debug().
			Err(err).
			Str("endpoint", config.ID).
			Dur("elapsed", elapsed).
			Msg("Probe failed")
		return offlineResult(start, err.Error())
	}

	result := models.HealthCheckResult{
		IsOnline:     true,
		ResponseTime: elapsed,
		BlockNumber:  blockNumber,
		GasPrice:     gasPrice,
		PeerCount:    int(peerCount),
		IsSyncing:    syncInfo.Syncing,
		SyncProgress: 100,
		CheckedAt:    start,
	}
	if syncInfo.Syncing {
		result.CurrentBlock = syncInfo.CurrentBlock
		result.HighestBlock = syncInfo.HighestBlock
		result.SyncProgress = syncProgress(syncInfo.CurrentBlock, syncInfo.HighestBlock)
	}
	return result
}

// Stats returns handle counts. A handle is active when its most recent
// probe (or connectivity test) succeeded.
func (m *ConnectionManager) Stats() HandleStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := HandleStats{Total: len(m.handles)}
	for _, h := range m.handles {
		if h.active {
			stats.Active++
		} else {
			stats.Inactive++
		}
	}
	return stats
}

func syncProgress(current, highest uint64) float64 {
	if highest == 0 {
		return 0
	}
	return float64(current) / float64(highest) * 100
}

func offlineResult(start time.Time, message string) models.HealthCheckResult {
	return models.HealthCheckResult{
		IsOnline:     false,
		ResponseTime: time.Since(start),
		ErrorMessage: message,
		CheckedAt:    start,
	}
}
