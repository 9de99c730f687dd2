// Package platform keeps the in-memory registry of integrated platforms.
package platform

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ashureev/nero-labs/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed platforms.yaml
var defaultPlatforms []byte

// DefaultFee applies when no platform is selected.
var DefaultFee = decimal.RequireFromString("0.005")

// ErrInvalidConfig is returned by Update for a config that fails validation.
var ErrInvalidConfig = errors.New("invalid platform config")

// Platform is a registry entry.
type Platform struct {
	ID string `json:"id"`
	domain.PlatformConfig
}

type fileEntry struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Logo           string `yaml:"logo"`
	PrimaryColor   string `yaml:"primaryColor"`
	NFTImage       string `yaml:"nftImage"`
	TreasuryWallet string `yaml:"treasuryWallet"`
	FeePerQuery    string `yaml:"feePerQuery"`
	SystemPrompt   string `yaml:"systemPrompt"`
}

type file struct {
	Platforms []fileEntry `yaml:"platforms"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]domain.PlatformConfig
}

// NewRegistry returns a registry seeded with the built-in platforms.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]domain.PlatformConfig)}
	entries, err := Parse(defaultPlatforms)
	if err != nil {
		panic(fmt.Sprintf("platform: built-in seed is invalid: %v", err))
	}
	for _, p := range entries {
		r.put(p.ID, p.PlatformConfig)
	}
	return r
}

// Load returns a registry seeded with the built-ins and then overridden by
// the YAML file at path. An empty path yields the built-ins only.
func Load(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platforms file: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse platforms file %s: %w", path, err)
	}
	for _, p := range entries {
		r.put(p.ID, p.PlatformConfig)
	}
	return r, nil
}

// Parse decodes and validates a platforms YAML document.
func Parse(data []byte) ([]Platform, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	out := make([]Platform, 0, len(f.Platforms))
	for i, e := range f.Platforms {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fmt.Errorf("platform %d: missing id", i)
		}
		fee := decimal.Zero
		if e.FeePerQuery != "" {
			v, err := decimal.NewFromString(e.FeePerQuery)
			if err != nil {
				return nil, fmt.Errorf("platform %s: feePerQuery: %w", e.ID, err)
			}
			fee = v
		}
		cfg := domain.PlatformConfig{
			Name:           e.Name,
			Logo:           e.Logo,
			PrimaryColor:   e.PrimaryColor,
			NFTImage:       e.NFTImage,
			TreasuryWallet: e.TreasuryWallet,
			FeePerQuery:    fee,
			SystemPrompt:   e.SystemPrompt,
		}
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("platform %s: %w", e.ID, err)
		}
		out = append(out, Platform{ID: e.ID, PlatformConfig: cfg})
	}
	return out, nil
}

// Validate checks the invariants of a platform config.
func Validate(cfg domain.PlatformConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if cfg.FeePerQuery.IsNegative() {
		return fmt.Errorf("%w: feePerQuery must not be negative", ErrInvalidConfig)
	}
	return nil
}

// List returns all platforms in registration order.
func (r *Registry) List() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Platform{ID: id, PlatformConfig: r.byID[id]})
	}
	return out
}

// Get returns the config of id.
func (r *Registry) Get(id string) (domain.PlatformConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.byID[id]
	return cfg, ok
}

// Fee returns the per-query fee of id, or DefaultFee when id is empty or
// unknown.
func (r *Registry) Fee(id string) decimal.Decimal {
	if cfg, ok := r.Get(id); ok {
		return cfg.FeePerQuery
	}
	return DefaultFee
}

// Update replaces the config of an existing platform.
func (r *Registry) Update(id string, cfg domain.PlatformConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domain.ErrUnknownPlatform
	}
	r.byID[id] = cfg
	return nil
}

func (r *Registry) put(id string, cfg domain.PlatformConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = cfg
}
