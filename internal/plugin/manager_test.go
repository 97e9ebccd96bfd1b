package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tomobot/internal/config"
	logx "tomobot/pkg/logx"
)

type fakePlugin struct {
	PluginBase
	name      string
	inits     int
	starts    int
	stops     int
	lastRaw   json.RawMessage
	cfgCalls  int
	startFail error
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Init(ctx context.Context, deps PluginDeps) error {
	p.inits++
	p.InitBase(deps, p.name)
	return nil
}

func (p *fakePlugin) Start(ctx context.Context) error {
	if p.startFail != nil {
		return p.startFail
	}
	p.starts++
	p.StartBase(ctx)
	return nil
}

func (p *fakePlugin) Stop(ctx context.Context) error {
	p.stops++
	return p.StopBase(ctx)
}

func (p *fakePlugin) Commands() []Command {
	return []Command{{Route: p.name, Handle: func(ctx context.Context, req *Request) error { return nil }}}
}

func (p *fakePlugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	p.cfgCalls++
	p.lastRaw = raw
	return nil
}

func writeConfig(t *testing.T, dir, body string) *config.ConfigManager {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgm := config.NewConfigManager(path)
	if _, err := cfgm.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfgm
}

func newManager(t *testing.T, cfgm *config.ConfigManager) (*PluginManager, *fakePlugin) {
	t.Helper()
	cmdm := NewCommandManager(logx.Nop(), nil, cfgm, &Services{}, nil)
	pm := NewPluginManager(logx.Nop(), cfgm, PluginDeps{Logger: logx.Nop(), Config: cfgm}, cmdm)
	p := &fakePlugin{name: "fake"}
	pm.Register(p)
	return pm, p
}

func TestPluginManagerStartsEnabledPlugin(t *testing.T) {
	t.Parallel()

	cfgm := writeConfig(t, t.TempDir(), `
telegram:
  token: "t"
plugins:
  fake:
    enabled: true
    config: {"greeting": "hi"}
`)
	pm, p := newManager(t, cfgm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pm.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	if p.inits != 1 || p.starts != 1 {
		t.Fatalf("inits=%d starts=%d, want 1/1", p.inits, p.starts)
	}
	if p.cfgCalls != 1 || string(p.lastRaw) == "" {
		t.Fatalf("config not applied before start: calls=%d raw=%s", p.cfgCalls, p.lastRaw)
	}
}

func TestPluginManagerDisableStopsPlugin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgm := writeConfig(t, dir, `
telegram:
  token: "t"
plugins:
  fake:
    enabled: true
`)
	pm, p := newManager(t, cfgm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pm.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	// Flip to disabled and reconcile.
	off, err := cfgm.Parse()
	if err != nil {
		t.Fatal(err)
	}
	raw := off.Plugins["fake"]
	raw.Enabled = false
	off.Plugins["fake"] = raw
	pm.OnConfigUpdate(ctx, off)

	if p.stops != 1 {
		t.Fatalf("stops = %d, want 1", p.stops)
	}

	// Re-enable: Init must not run again.
	on, err := cfgm.Parse()
	if err != nil {
		t.Fatal(err)
	}
	pm.OnConfigUpdate(ctx, on)
	if p.inits != 1 {
		t.Fatalf("inits = %d after re-enable, want 1", p.inits)
	}
	if p.starts != 2 {
		t.Fatalf("starts = %d after re-enable, want 2", p.starts)
	}
}

func TestPluginManagerQuarantinesBadTimeouts(t *testing.T) {
	t.Parallel()

	cfgm := writeConfig(t, t.TempDir(), `
telegram:
  token: "t"
plugins:
  fake:
    enabled: true
    config: {"timeouts": {"command": "not-a-duration"}}
`)
	pm, p := newManager(t, cfgm)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pm.StartAll(ctx); err != nil {
		t.Fatal(err)
	}
	if p.starts != 0 {
		t.Fatalf("starts = %d, want 0 (quarantined)", p.starts)
	}

	// Same broken config again: still quarantined, no retry spam.
	pm.OnConfigUpdate(ctx, cfgm.Get())
	if p.starts != 0 {
		t.Fatalf("starts = %d after repeat reconcile, want 0", p.starts)
	}
}

func TestValidateStandardTimeouts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		wantOK bool
	}{
		{`{"timeouts": {"command": "5s"}}`, true},
		{`{"timeouts": {"task": "1m", "operation": "30s"}}`, true},
		{`{"timeouts": {"command": "bogus"}}`, false},
		{`{"timeouts": {"nope": "5s"}}`, false},
		{`{"other": true}`, true},
		{`{}`, true},
	}
	for _, tc := range cases {
		err := validateStandardTimeouts("p", json.RawMessage(tc.raw))
		if (err == nil) != tc.wantOK {
			t.Errorf("validate(%s) err=%v, wantOK=%v", tc.raw, err, tc.wantOK)
		}
	}
}

func TestPluginCommandTimeoutApplied(t *testing.T) {
	t.Parallel()

	cfgm := writeConfig(t, t.TempDir(), `
telegram:
  token: "t"
plugins:
  fake:
    enabled: true
    config: {"timeouts": {"command": "7s"}}
`)
	d, ok := pluginCommandTimeout(cfgm.Get(), "fake")
	if !ok || d != 7*time.Second {
		t.Fatalf("timeout = %v ok=%v, want 7s", d, ok)
	}
}
