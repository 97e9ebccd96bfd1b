package reminderplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"tomobot/internal/plugin"
	"tomobot/internal/reminder"
	"tomobot/pkg/tgui"
)

const confirmTTL = 30 * time.Second

type Config struct {
	// File overrides the store file name inside the data dir.
	File string `json:"file"`
	// ListLimit caps how many reminders /remind list shows.
	ListLimit int `json:"list_limit"`
}

type Plugin struct {
	plugin.PluginBase

	mu       sync.RWMutex
	cfg      Config
	store    reminder.Store
	resolver *reminder.Resolver
	sched    *reminder.Scheduler

	// pending holds one-shot clear-all confirmation tokens.
	pending *tgui.TokenStore
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "reminder" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	p.pending = tgui.NewTokenStore().WithTTL(confirmTTL).WithCleanupInterval(10 * time.Second)
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	c, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if c.File == "" {
		c.File = "reminders.json"
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 10
	}
	p.mu.Lock()
	p.cfg = c
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

	file := p.config().File
	if file == "" {
		file = "reminders.json"
	}
	path := filepath.Join(p.Deps.DataDir, file)
	p.store = reminder.NewFileStore(path, p.Log)
	p.resolver = reminder.NewResolver(p.Deps.Adapter, p.Log)
	p.sched = reminder.NewScheduler(p.store, p.Deps.Adapter, p.Deps.Adapter.Ready(), reminder.SystemClock(), p.Log, p.Deps.Bus)

	p.Runner.Go("scheduler", p.sched.Run)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}
