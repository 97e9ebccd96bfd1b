package reminder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
)

func testReminder(owner int64, at time.Time) Reminder {
	return New(owner, kit.ChatTarget{ChatID: -100, ThreadID: 7}, "standup", at, false, nil, at.Add(-time.Hour))
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "reminders.json")
	s := NewFileStore(path, logx.Nop())

	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	r1 := New(1, kit.ChatTarget{ChatID: -100, ThreadID: 7}, "first", at, true, []int64{2, 3}, at.Add(-time.Hour))
	r2 := New(2, kit.ChatTarget{ChatID: -200}, "", at.Add(time.Hour), false, nil, at)

	if err := s.Add(r1); err != nil {
		t.Fatalf("Add r1: %v", err)
	}
	if err := s.Add(r2); err != nil {
		t.Fatalf("Add r2: %v", err)
	}

	// A fresh store over the same file must see identical state.
	got, err := NewFileStore(path, logx.Nop()).ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListAll len = %d, want 2", len(got))
	}
	if got[0].ID != r1.ID || got[1].ID != r2.ID {
		t.Fatal("store order not preserved across reload")
	}
	if got[0].Message != "first" || !got[0].Notify || len(got[0].Recipients) != 2 {
		t.Fatalf("r1 fields lost: %+v", got[0])
	}
	if got[1].Message != DefaultMessage {
		t.Fatalf("empty message not defaulted: %q", got[1].Message)
	}
	if !got[0].At.Equal(r1.At) || !got[0].CreatedAt.Equal(r1.CreatedAt) {
		t.Fatal("timestamps did not survive the round trip")
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"), logx.Nop())
	got, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll on missing file: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("missing file should read empty, got %d", len(got))
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFileStore(path, logx.Nop()).ListAll()
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("corrupt file error = %v, want PersistenceError", err)
	}
}

func TestListDueBoundary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemStore()
	past := testReminder(1, now.Add(-time.Minute))
	exact := testReminder(2, now)
	future := testReminder(3, now.Add(time.Minute))
	for _, r := range []Reminder{past, exact, future} {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	due, err := s.ListDue(now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("due count = %d, want 2 (past and exact)", len(due))
	}
	for _, r := range due {
		if r.ID == future.ID {
			t.Fatal("future reminder reported due")
		}
	}
}

func TestRemoveIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reminders.json")
	s := NewFileStore(path, logx.Nop())
	r := testReminder(1, time.Now().Add(time.Hour))
	if err := s.Add(r); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(r.ID); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := s.Remove(r.ID); err != nil {
		t.Fatalf("second Remove must be a no-op, got: %v", err)
	}
	if err := s.Remove("never-existed"); err != nil {
		t.Fatalf("Remove of unknown id must be a no-op, got: %v", err)
	}
}

func TestRemoveWhere(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	at := time.Now().Add(time.Hour)
	for _, owner := range []int64{1, 2, 1, 3} {
		if err := s.Add(testReminder(owner, at)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.RemoveWhere(func(r Reminder) bool { return r.OwnerID == 1 })
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	rest, _ := s.ListAll()
	if len(rest) != 2 {
		t.Fatalf("remaining = %d, want 2", len(rest))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)
	s := NewMemStore()

	old := testReminder(1, now.Add(time.Hour))
	old.CreatedAt = now.Add(-8 * 24 * time.Hour)
	fresh := testReminder(2, now.Add(time.Hour))
	fresh.CreatedAt = now.Add(-time.Hour)
	for _, r := range []Reminder{old, fresh} {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PurgeOlderThan(now.Add(-Retention))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	rest, _ := s.ListAll()
	if len(rest) != 1 || rest[0].ID != fresh.ID {
		t.Fatal("purge removed the wrong record")
	}
}

func TestFindByPrefix(t *testing.T) {
	t.Parallel()

	a := Reminder{ID: "aabbccdd-1111"}
	b := Reminder{ID: "aabbccdd-2222"}
	c := Reminder{ID: "zzyy-3333"}
	items := []Reminder{a, b, c}

	if got, err := FindByPrefix(items, c.ID); err != nil || got.ID != c.ID {
		t.Fatalf("full id lookup = %v, %v", got.ID, err)
	}
	if got, err := FindByPrefix(items, "zzyy"); err != nil || got.ID != c.ID {
		t.Fatalf("unique prefix lookup = %v, %v", got.ID, err)
	}
	if _, err := FindByPrefix(items, "aabbccdd"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("ambiguous prefix error = %v, want ErrAmbiguous", err)
	}
	if _, err := FindByPrefix(items, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown prefix error = %v, want ErrNotFound", err)
	}
	if _, err := FindByPrefix(items, a.ID); err != nil {
		t.Fatalf("full id must bypass prefix ambiguity: %v", err)
	}
}
