// Package tasksplugin is a small team task tracker backed by sqlite,
// with an optional daily digest of tasks coming due.
package tasksplugin

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tomobot/internal/plugin"
	logx "tomobot/pkg/logx"
)

// VisibilityPredicate reports whether a user keeps the feature private
// in a chat. Nil means everything is shared.
type VisibilityPredicate func(chatID, userID int64, feature string) bool

// SheetSync pushes the current task list to an external spreadsheet.
// The real backend lives outside this repo; the default is a no-op.
type SheetSync interface {
	Push(ctx context.Context, tasks []Task) error
}

type nopSheetSync struct{}

func (nopSheetSync) Push(context.Context, []Task) error { return nil }

type Config struct {
	File string `json:"file"`

	// DigestCron schedules the due-soon digest; empty disables it.
	DigestCron   string `json:"digest_cron"`
	DigestChatID int64  `json:"digest_chat_id"`
	DueSoonDays  int    `json:"due_soon_days"`
}

type Plugin struct {
	plugin.PluginBase

	mu  sync.RWMutex
	cfg Config

	isPrivate VisibilityPredicate
	store     *taskStore
	sheets    SheetSync
}

func New(pred VisibilityPredicate) *Plugin {
	return &Plugin{isPrivate: pred, sheets: nopSheetSync{}}
}

func (p *Plugin) Name() string { return "tasks" }

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
		cfg.File = "tasks.db"
	}
	if cfg.DueSoonDays <= 0 {
		cfg.DueSoonDays = 3
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
	cfg := p.config()

	st, err := openTaskStore(filepath.Join(p.Deps.DataDir, cfg.File), p.Log)
	if err != nil {
		return err
	}
	p.store = st

	if cfg.DigestCron != "" && cfg.DigestChatID != 0 {
		if err := p.Cron("digest", cfg.DigestCron, time.Minute, p.runDigest); err != nil {
			p.Log.Warn("task digest not scheduled", logx.Err(err))
		}
	}
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.Unschedule("digest")
	err := p.StopBase(ctx)
	if p.store != nil {
		if cerr := p.store.Close(); cerr != nil {
			p.Log.Warn("task store close", logx.Err(cerr))
		}
	}
	return err
}

// visible filters out other users' private tasks. The viewer always
// sees their own.
func (p *Plugin) visible(tasks []Task, chatID, viewer int64) []Task {
	if p.isPrivate == nil {
		return tasks
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.CreatedBy != viewer && p.isPrivate(chatID, t.CreatedBy, "tasks") {
			continue
		}
		out = append(out, t)
	}
	return out
}
