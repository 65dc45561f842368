package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	internalerrors "github.com/chainpulse/chainpulse/internal/errors"
	"github.com/chainpulse/chainpulse/internal/models"
	"github.com/rs/zerolog/log"
)

// endpointsFile is the on-disk inventory schema: endpoint lists keyed
// by tenant name.
type endpointsFile struct {
	Tenants map[string][]models.EndpointConfig `json:"tenants"`
}

// FileProvider serves per-tenant endpoint configurations from a JSON
// file. It implements the scheduler's EndpointProvider.
type FileProvider struct {
	path string

	mu      sync.RWMutex
	tenants map[string][]models.EndpointConfig
}

// NewFileProvider loads the inventory file and validates it.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the file. On any error the previous inventory stays
// in effect.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read endpoints file %s: %w", p.path, err)
	}

	var parsed endpointsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse endpoints file %s: %w", p.path, err)
	}
	if len(parsed.Tenants) == 0 {
		return fmt.Errorf("endpoints file %s: no tenants defined: %w", p.path, internalerrors.ErrInvalidInput)
	}

	for tenant, configs := range parsed.Tenants {
		seen := make(map[string]bool, len(configs))
		for i, config := range configs {
			if err := validateEndpoint(config); err != nil {
				return fmt.Errorf("tenant %s endpoint %d: %w", tenant, i, err)
			}
			if seen[config.ID] {
				return fmt.Errorf("tenant %s: duplicate endpoint id %q: %w", tenant, config.ID, internalerrors.ErrInvalidInput)
			}
			seen[config.ID] = true
		}
	}

	p.mu.Lock()
	p.tenants = parsed.Tenants
	p.mu.Unlock()

	log.Info().
		Str("file", p.path).
		Int("tenants", len(parsed.Tenants)).
		Msg("Endpoint inventory loaded")
	return nil
}

func validateEndpoint(config models.EndpointConfig) error {
	if config.ID == "" {
		return fmt.Errorf("missing id: %w", internalerrors.ErrInvalidInput)
	}
	if config.Name == "" {
		return fmt.Errorf("endpoint %s: missing name: %w", config.ID, internalerrors.ErrInvalidInput)
	}
	if config.URL == "" {
		return fmt.Errorf("endpoint %s: missing url: %w", config.ID, internalerrors.ErrInvalidInput)
	}
	if config.TimeoutMs < 0 {
		return fmt.Errorf("endpoint %s: negative timeout: %w", config.ID, internalerrors.ErrInvalidInput)
	}
	return nil
}

// Endpoints returns the tenant's configured endpoints in file order.
func (p *FileProvider) Endpoints(_ context.Context, tenant string) ([]models.EndpointConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	configs, ok := p.tenants[tenant]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenant, internalerrors.ErrNotFound)
	}
	return append([]models.EndpointConfig(nil), configs...), nil
}

// Tenants lists the tenant names present in the inventory.
func (p *FileProvider) Tenants() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.tenants))
	for tenant := range p.tenants {
		names = append(names, tenant)
	}
	return names
}

// Path returns the inventory file path.
func (p *FileProvider) Path() string {
	return p.path
}
