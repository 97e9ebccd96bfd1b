// Package calendarplugin keeps lightweight local events per chat and
// announces the day's events each morning.
package calendarplugin

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

// CalendarSync mirrors events to an external calendar. The real
// backend lives outside this repo; the default is a no-op.
type CalendarSync interface {
	Push(ctx context.Context, events []Event) error
}

type nopCalendarSync struct{}

func (nopCalendarSync) Push(context.Context, []Event) error { return nil }

type Config struct {
	File string `json:"file"`

	// MorningCron schedules the daily announcement; empty disables it.
	MorningCron  string `json:"morning_cron"`
	DigestChatID int64  `json:"digest_chat_id"`
}

type Plugin struct {
	plugin.PluginBase

	mu  sync.RWMutex
	cfg Config

	isPrivate VisibilityPredicate
	store     *eventStore
	backend   CalendarSync
}

func New(pred VisibilityPredicate) *Plugin {
	return &Plugin{isPrivate: pred, backend: nopCalendarSync{}}
}

func (p *Plugin) Name() string { return "calendar" }

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
		cfg.File = "calendar.json"
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
	p.store = newEventStore(filepath.Join(p.Deps.DataDir, cfg.File), p.Log)

	if cfg.MorningCron != "" && cfg.DigestChatID != 0 {
		if err := p.Cron("morning", cfg.MorningCron, time.Minute, p.runMorning); err != nil {
			p.Log.Warn("morning announcement not scheduled", logx.Err(err))
		}
	}
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.Unschedule("morning")
	return p.StopBase(ctx)
}

func (p *Plugin) visible(events []Event, chatID, viewer int64) []Event {
	if p.isPrivate == nil {
		return events
	}
	out := events[:0]
	for _, e := range events {
		if e.CreatedBy != viewer && p.isPrivate(chatID, e.CreatedBy, "calendar") {
			continue
		}
		out = append(out, e)
	}
	return out
}
