package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	internalerrors "github.com/chainpulse/chainpulse/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validInventory = `{
  "tenants": {
    "acme": [
      {
        "id": "eth-mainnet-1",
        "name": "Ethereum Mainnet",
        "url": "https://eth.example/rpc",
        "network": "ethereum",
        "chainId": 1,
        "enabled": true,
        "thresholds": {"responseTime": 5000, "peerCount": 5}
      },
      {
        "id": "poly-1",
        "name": "Polygon",
        "url": "https://polygon.example/rpc",
        "network": "polygon",
        "chainId": 137,
        "enabled": false
      }
    ],
    "globex": [
      {
        "id": "eth-archive",
        "name": "Ethereum Archive",
        "url": "https://archive.example/rpc",
        "network": "ethereum",
        "chainId": 1,
        "enabled": true
      }
    ]
  }
}`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "endpoints.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileProviderLoad(t *testing.T) {
	t.Parallel()

	provider, err := NewFileProvider(writeInventory(t, validInventory))
	require.NoError(t, err)

	configs, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "eth-mainnet-1", configs[0].ID)
	assert.Equal(t, float64(5000), configs[0].Thresholds.ResponseTimeMs)
	assert.True(t, configs[0].Enabled)
	assert.False(t, configs[1].Enabled)

	assert.ElementsMatch(t, []string{"acme", "globex"}, provider.Tenants())
}

func TestFileProviderUnknownTenant(t *testing.T) {
	t.Parallel()

	provider, err := NewFileProvider(writeInventory(t, validInventory))
	require.NoError(t, err)

	_, err = provider.Endpoints(context.Background(), "unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, internalerrors.ErrNotFound))
}

func TestFileProviderMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFileProviderValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"invalid json", `{not json`},
		{"no tenants", `{"tenants": {}}`},
		{"missing id", `{"tenants":{"acme":[{"name":"x","url":"https://x"}]}}`},
		{"missing name", `{"tenants":{"acme":[{"id":"a","url":"https://x"}]}}`},
		{"missing url", `{"tenants":{"acme":[{"id":"a","name":"x"}]}}`},
		{"duplicate id", `{"tenants":{"acme":[
			{"id":"a","name":"x","url":"https://x"},
			{"id":"a","name":"y","url":"https://y"}]}}`},
		{"negative timeout", `{"tenants":{"acme":[{"id":"a","name":"x","url":"https://x","timeoutMs":-1}]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFileProvider(writeInventory(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestFileProviderReloadKeepsOldOnError(t *testing.T) {
	t.Parallel()

	path := writeInventory(t, validInventory)
	provider, err := NewFileProvider(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))
	require.Error(t, provider.Reload())

	// The previous inventory is still served.
	configs, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, configs, 2)
}

func TestFileProviderReturnsCopies(t *testing.T) {
	t.Parallel()

	provider, err := NewFileProvider(writeInventory(t, validInventory))
	require.NoError(t, err)

	configs, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	configs[0].Enabled = false

	fresh, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, fresh[0].Enabled)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeInventory(t, validInventory)
	provider, err := NewFileProvider(path)
	require.NoError(t, err)

	watcher, err := NewWatcher(provider)
	require.NoError(t, err)
	defer watcher.Stop()

	reloaded := make(chan struct{}, 1)
	watcher.SetReloadCallback(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, watcher.Start())

	updated := `{"tenants":{"acme":[{"id":"eth-mainnet-1","name":"Renamed","url":"https://eth.example/rpc","enabled":true}]}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback not invoked")
	}

	configs, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "Renamed", configs[0].Name)
}

func TestWatcherIgnoresBrokenRewrite(t *testing.T) {
	path := writeInventory(t, validInventory)
	provider, err := NewFileProvider(path)
	require.NoError(t, err)

	watcher, err := NewWatcher(provider)
	require.NoError(t, err)
	defer watcher.Stop()
	require.NoError(t, watcher.Start())

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))
	time.Sleep(300 * time.Millisecond)

	configs, err := provider.Endpoints(context.Background(), "acme")
	require.NoError(t, err)
	assert.Len(t, configs, 2)
}
