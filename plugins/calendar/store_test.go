package calendarplugin

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "tomobot/pkg/logx"
)

func newStoreT(t *testing.T) *eventStore {
	t.Helper()
	return newEventStore(filepath.Join(t.TempDir(), "calendar.json"), logx.Nop())
}

func TestEventStoreAddAndListSorted(t *testing.T) {
	s := newStoreT(t)
	now := time.Now()

	later := newEvent(-100, 1, "later", now.Add(48*time.Hour), false, now)
	sooner := newEvent(-100, 1, "sooner", now.Add(2*time.Hour), false, now)
	other := newEvent(-200, 1, "other-chat", now.Add(time.Hour), false, now)
	for _, e := range []Event{later, sooner, other} {
		if err := s.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(-100, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Title != "sooner" || got[1].Title != "later" {
		t.Fatalf("got %+v", got)
	}
}

func TestEventStoreOnDay(t *testing.T) {
	s := newStoreT(t)
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	today := newEvent(-100, 1, "today", start.Add(10*time.Hour), false, now)
	tomorrow := newEvent(-100, 1, "tomorrow", start.Add(34*time.Hour), false, now)
	for _, e := range []Event{today, tomorrow} {
		if err := s.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.On(-100, start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "today" {
		t.Fatalf("got %+v", got)
	}

	chats, err := s.ChatsWithEvents(start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0] != -100 {
		t.Fatalf("chats %v", chats)
	}
}

func TestEventStoreRemoveByPrefix(t *testing.T) {
	s := newStoreT(t)
	now := time.Now()
	e := newEvent(-100, 1, "standup", now.Add(time.Hour), false, now)
	if err := s.Add(e); err != nil {
		t.Fatal(err)
	}

	// Wrong chat must not see it.
	if _, err := s.Remove(-200, e.ShortID()); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("cross-chat remove: %v", err)
	}

	removed, err := s.Remove(-100, e.ShortID())
	if err != nil {
		t.Fatal(err)
	}
	if removed.ID != e.ID {
		t.Fatalf("removed %+v", removed)
	}
	if _, err := s.Remove(-100, e.ShortID()); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("second remove: %v", err)
	}
}

func TestEventStoreAmbiguousPrefix(t *testing.T) {
	s := newStoreT(t)
	now := time.Now()
	a := newEvent(-100, 1, "a", now.Add(time.Hour), false, now)
	b := newEvent(-100, 1, "b", now.Add(2*time.Hour), false, now)
	a.ID = "aaaaaaaa-1111"
	b.ID = "aaaaaaaa-2222"
	for _, e := range []Event{a, b} {
		if err := s.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Remove(-100, "aaaaaaaa"); !errors.Is(err, ErrEventAmbiguous) {
		t.Fatalf("want ambiguous, got %v", err)
	}
	// Full id still works.
	if _, err := s.Remove(-100, "aaaaaaaa-1111"); err != nil {
		t.Fatal(err)
	}
}

func TestEventStorePurgePast(t *testing.T) {
	s := newStoreT(t)
	now := time.Now()
	old := newEvent(-100, 1, "old", now.AddDate(0, 0, -10), false, now)
	fresh := newEvent(-100, 1, "fresh", now.Add(time.Hour), false, now)
	for _, e := range []Event{old, fresh} {
		if err := s.Add(e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.PurgePast(now.AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	got, _ := s.List(-100, now.AddDate(0, 0, -30))
	if len(got) != 1 || got[0].Title != "fresh" {
		t.Fatalf("left %+v", got)
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Now()

	at, allDay, rest, err := parseWhen([]string{"明日", "14:00", "定例会"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if allDay || at.Hour() != 14 || len(rest) != 1 || rest[0] != "定例会" {
		t.Fatalf("at=%v allDay=%v rest=%v", at, allDay, rest)
	}

	_, allDay, rest, err = parseWhen([]string{"2099-12-31", "大晦日"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !allDay || len(rest) != 1 || rest[0] != "大晦日" {
		t.Fatalf("allDay=%v rest=%v", allDay, rest)
	}

	if _, _, _, err := parseWhen([]string{"garbage"}, now); err == nil {
		t.Fatal("want error for unparseable date")
	}
}
