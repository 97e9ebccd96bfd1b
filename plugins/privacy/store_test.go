package privacyplugin

import (
	"path/filepath"
	"testing"

	logx "tomobot/pkg/logx"
)

func TestFlagStoreDefaultsToShared(t *testing.T) {
	s := newFlagStore(filepath.Join(t.TempDir(), "privacy.json"), logx.Nop())
	if s.isPrivate(-100, 42, "tasks") {
		t.Fatal("unset flag must read as shared")
	}
}

func TestFlagStoreSetAndClear(t *testing.T) {
	s := newFlagStore(filepath.Join(t.TempDir(), "privacy.json"), logx.Nop())

	if err := s.setPrivate(-100, 42, "tasks", true); err != nil {
		t.Fatal(err)
	}
	if !s.isPrivate(-100, 42, "tasks") {
		t.Fatal("flag not set")
	}
	// Scoped to chat, user and feature.
	if s.isPrivate(-200, 42, "tasks") || s.isPrivate(-100, 43, "tasks") || s.isPrivate(-100, 42, "calendar") {
		t.Fatal("flag leaked across scope")
	}

	if err := s.setPrivate(-100, 42, "tasks", false); err != nil {
		t.Fatal(err)
	}
	if s.isPrivate(-100, 42, "tasks") {
		t.Fatal("flag not cleared")
	}
}

func TestFlagStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privacy.json")
	s := newFlagStore(path, logx.Nop())
	if err := s.setPrivate(-100, 42, "calendar", true); err != nil {
		t.Fatal(err)
	}

	s2 := newFlagStore(path, logx.Nop())
	if !s2.isPrivate(-100, 42, "calendar") {
		t.Fatal("flag lost after reopen")
	}
	flags := s2.userFlags(-100, 42)
	if len(flags) != 1 || flags[0] != "calendar" {
		t.Fatalf("userFlags %v", flags)
	}
}
