// Package privacyplugin keeps per chat and user visibility flags.
// Other plugins consult the Predicate before showing someone's items
// to the rest of the chat.
package privacyplugin

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"tomobot/internal/plugin"
)

// Features that can be toggled. Unknown features are rejected.
var knownFeatures = map[string]bool{
	"tasks":    true,
	"calendar": true,
}

type Config struct {
	File string `json:"file"`
}

type Plugin struct {
	plugin.PluginBase

	mu    sync.RWMutex
	cfg   Config
	store *flagStore
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "privacy" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw []byte) error {
	cfg, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.File) == "" {
		cfg.File = "privacy.json"
	}
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
	path := filepath.Join(p.Deps.DataDir, p.config().File)
	p.store = newFlagStore(path, p.Log)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}

// IsPrivate reports whether the user marked the feature private in the
// chat. Default is shared. Safe to call before Start; it then reports
// everything shared.
func (p *Plugin) IsPrivate(chatID, userID int64, feature string) bool {
	if p.store == nil {
		return false
	}
	return p.store.isPrivate(chatID, userID, feature)
}
