// Package translateplugin translates short messages through a
// pluggable backend, with per-user rate limits and a small cache.
package translateplugin

import (
	"context"
	"strings"
	"sync"
	"time"

	"tomobot/internal/plugin"
)

const (
	// MaxInputRunes caps the text a single request may translate.
	MaxInputRunes = 300

	defaultCacheSize = 256
)

type Config struct {
	// Endpoint overrides the translation endpoint, mainly for tests.
	Endpoint string `json:"endpoint"`

	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

type Plugin struct {
	plugin.PluginBase

	mu  sync.RWMutex
	cfg Config

	backend Backend
	limits  *userLimits
	cache   *resultCache
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "translate" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	p.cache = newResultCache(defaultCacheSize)
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw []byte) error {
	cfg, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 3
	}
	if cfg.PerHour <= 0 {
		cfg.PerHour = 20
	}
	if cfg.PerDay <= 0 {
		cfg.PerDay = 50
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)

	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

func (p *Plugin) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	cfg := p.config()
	if p.backend == nil {
		p.backend = newGoogleBackend(cfg.Endpoint, 10*time.Second)
	}
	p.limits = newUserLimits(cfg.PerMinute, cfg.PerHour, cfg.PerDay)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}
