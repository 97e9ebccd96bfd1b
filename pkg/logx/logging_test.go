package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func bufLogger(buf *bytes.Buffer, level zerolog.Level) Logger {
	zl := zerolog.New(buf).Level(level)
	return Logger{base: zl, hasBase: true}
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("bad log line %q: %v", line, err)
	}
	return m
}

func TestLoggerEmitsLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := bufLogger(&buf, zerolog.InfoLevel).With(String("component", "store"))

	log.Warn("save failed", Int("attempt", 2))

	m := decodeLine(t, buf.String())
	if m["level"] != "warn" {
		t.Fatalf("level = %v, want warn", m["level"])
	}
	if m["message"] != "save failed" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["component"] != "store" {
		t.Fatalf("component = %v, want store", m["component"])
	}
	if m["attempt"] != float64(2) {
		t.Fatalf("attempt = %v, want 2", m["attempt"])
	}
	if caller, _ := m[zerolog.CallerFieldName].(string); !strings.Contains(caller, "logging_test.go") {
		t.Fatalf("caller = %q, want file:line of the call site", caller)
	}
}

func TestLoggerSuppressesBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := bufLogger(&buf, zerolog.InfoLevel)

	log.Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatal("Enabled(debug) = true at info level")
	}
	if !log.Enabled(LevelError) {
		t.Fatal("Enabled(error) = false at info level")
	}
}

func TestZeroAndNopLoggersAreSilent(t *testing.T) {
	var zero Logger
	zero.Error("dropped")
	Nop().Error("dropped")
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
}

func TestFormatChatLine(t *testing.T) {
	line := `{"level":"error","time":"x","message":"tick failed","plugin":"reminder"}`
	got := formatChatLine([]byte(line))
	if !strings.HasPrefix(got, "[ERROR] tick failed") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "plugin=reminder") {
		t.Fatalf("field missing: %q", got)
	}

	if got := formatChatLine([]byte("not json")); got != "not json" {
		t.Fatalf("non-JSON passthrough = %q", got)
	}
}
