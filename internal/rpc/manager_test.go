package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode serves canned JSON-RPC responses per method.
type fakeNode struct {
	blockNumber string
	gasPrice    string
	peerCount   string
	syncing     interface{} // false or map with hex blocks
	delay       time.Duration
	failMethod  string // method to answer with an rpc error
}

func (n *fakeNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if n.delay > 0 {
			time.Sleep(n.delay)
		}

		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Method == n.failMethod {
			writeRPC(w, map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32000, "message": "boom"},
			})
			return
		}

		var result interface{}
		switch req.Method {
		case "eth_blockNumber":
			result = n.blockNumber
		case "eth_gasPrice":
			result = n.gasPrice
		case "net_peerCount":
			result = n.peerCount
		case "eth_syncing":
			result = n.syncing
		default:
			writeRPC(w, map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID,
				"error": map[string]interface{}{"code": -32601, "message": "method not found"},
			})
			return
		}
		writeRPC(w, map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
}

func writeRPC(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func healthyNode() *fakeNode {
	return &fakeNode{
		blockNumber: "0x112a880", // 18000000
		gasPrice:    "0x3b9aca00", // 1 gwei
		peerCount:   "0x19",       // 25
		syncing:     false,
	}
}

func testConfig(url string) models.EndpointConfig {
	return models.EndpointConfig{
		ID:        "eth-mainnet-1",
		Name:      "Mainnet Primary",
		URL:       url,
		Network:   "ethereum",
		ChainID:   1,
		TimeoutMs: 2000,
		Enabled:   true,
	}
}

func TestProbeHealthyEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(healthyNode().handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	cfg := testConfig(srv.URL)
	require.True(t, m.AddEndpoint(context.Background(), cfg))

	result := m.Probe(context.Background(), cfg)
	assert.True(t, result.IsOnline)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, uint64(18000000), result.BlockNumber)
	assert.Equal(t, uint64(1000000000), result.GasPrice)
	assert.Equal(t, 25, result.PeerCount)
	assert.False(t, result.IsSyncing)
	assert.Equal(t, float64(100), result.SyncProgress)
	assert.Greater(t, result.ResponseTime, time.Duration(0))
}

func TestProbeSyncingEndpoint(t *testing.T) {
	t.Parallel()

	node := healthyNode()
	node.syncing = map[string]string{
		"startingBlock": "0x0",
		"currentBlock":  "0x2d", // 45
		"highestBlock":  "0x32", // 50
	}
	srv := httptest.NewServer(node.handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	cfg := testConfig(srv.URL)
	m.AddEndpoint(context.Background(), cfg)

	result := m.Probe(context.Background(), cfg)
	require.True(t, result.IsOnline)
	assert.True(t, result.IsSyncing)
	assert.Equal(t, uint64(45), result.CurrentBlock)
	assert.Equal(t, uint64(50), result.HighestBlock)
	assert.InDelta(t, 90.0, result.SyncProgress, 0.001)
}

func TestProbeRPCErrorGoesOffline(t *testing.T) {
	t.Parallel()

	node := healthyNode()
	node.failMethod = "eth_gasPrice"
	srv := httptest.NewServer(node.handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	cfg := testConfig(srv.URL)
	m.AddEndpoint(context.Background(), cfg)

	result := m.Probe(context.Background(), cfg)
	assert.False(t, result.IsOnline)
	assert.Contains(t, result.ErrorMessage, "boom")
}

func TestProbeTimeoutGoesOffline(t *testing.T) {
	t.Parallel()

	node := healthyNode()
	node.delay = 300 * time.Millisecond
	srv := httptest.NewServer(node.handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	cfg := testConfig(srv.URL)
	cfg.TimeoutMs = 50

	// AddEndpoint's connectivity test also times out; handle stays registered.
	assert.False(t, m.AddEndpoint(context.Background(), cfg))

	result := m.Probe(context.Background(), cfg)
	assert.False(t, result.IsOnline)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestProbeMissingHandle(t *testing.T) {
	t.Parallel()

	m := NewConnectionManager()
	defer m.Close()

	result := m.Probe(context.Background(), testConfig("http://127.0.0.1:0"))
	assert.False(t, result.IsOnline)
	assert.Contains(t, result.ErrorMessage, "no probe handle")
}

func TestReconnectRestoresHandle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(healthyNode().handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	cfg := testConfig(srv.URL)
	require.True(t, m.AddEndpoint(context.Background(), cfg))
	m.RemoveEndpoint(cfg.ID)

	result := m.Probe(context.Background(), cfg)
	require.False(t, result.IsOnline)

	require.True(t, m.Reconnect(context.Background(), cfg))
	result = m.Probe(context.Background(), cfg)
	assert.True(t, result.IsOnline)
}

func TestStatsCountsActiveAndInactive(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(healthyNode().handler())
	defer srv.Close()

	m := NewConnectionManager()
	defer m.Close()

	good := testConfig(srv.URL)
	m.AddEndpoint(context.Background(), good)

	bad := testConfig("http://127.0.0.1:1")
	bad.ID = "eth-mainnet-2"
	bad.TimeoutMs = 200
	m.AddEndpoint(context.Background(), bad)

	stats := m.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
}

func TestParseHexUint64(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"0x0", 0, false},
		{"0x10", 16, false},
		{"0x112a880", 18000000, false},
		{" 0x1 ", 1, false},
		{"0x", 0, true},
		{"", 0, true},
		{"nope", 0, true},
	}

	for _, tc := range cases {
		got, err := parseHexUint64(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseHexUint64(%q) expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseHexUint64(%q) unexpected error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseHexUint64(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}
