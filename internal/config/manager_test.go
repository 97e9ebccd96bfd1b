package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  group_log: ""
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
  file:
    enabled: false
    path: ""
  chat:
    enabled: false
    thread_id: 0
    min_level: "warn"
    rate_per_sec: 1
data:
  dir: "./data"
schedule:
  enabled: true
  timezone: "Asia/Tokyo"
plugins:
  reminder:
    enabled: true
  tasks:
    enabled: false
    config: {"digest_spec": "0 9 * * *"}
`)

	cfg, err := NewConfigManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || len(cfg.Telegram.OwnerUserIDs) != 1 {
		t.Fatalf("telegram section mangled: %+v", cfg.Telegram)
	}
	if cfg.Schedule.Timezone != "Asia/Tokyo" {
		t.Fatalf("schedule section mangled: %+v", cfg.Schedule)
	}
	p, ok := cfg.Plugins["tasks"]
	if !ok || p.Enabled || len(p.Config) == 0 {
		t.Fatalf("plugin block mangled: %+v", p)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "x"
logging:
  level: "info"
  consoole: true
plugins: {}
`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("misspelled key accepted")
	}
}

func TestParseRejectsUnknownPluginKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "x"
plugins:
  reminder:
    enabled: true
    timeout: "10s"
`)
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("unknown plugin key accepted")
	}
}

func TestCommitSkipsRedundantHash(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	m.Commit(cfg)
	if m.Get() != cfg {
		t.Fatal("Get did not return committed config")
	}
	if m.lastHash == 0 {
		t.Fatal("commit did not record a content hash")
	}
	if hashConfig(cfg) != m.lastHash {
		t.Fatal("hash not stable for identical content")
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	t.Parallel()

	m := NewConfigManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a := &Config{Telegram: TelegramConfig{Token: "a"}}
	b := &Config{Telegram: TelegramConfig{Token: "b"}}
	m.publish(a)
	m.publish(b)

	got := <-ch
	if got.Telegram.Token != "b" {
		t.Fatalf("subscriber got %q, want the newest config", got.Telegram.Token)
	}
}
