package adapter

import (
	"strings"
	"testing"
	"time"

	kit "tomobot/internal/transport"
)

func TestRecentTrackerNewestFirst(t *testing.T) {
	t.Parallel()

	tr := newRecentTracker()
	to := kit.ChatTarget{ChatID: 1, ThreadID: 7}
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []int64{10, 20, 30} {
		tr.note(to, kit.Participant{UserID: id, LastSeen: base.Add(time.Duration(i) * time.Minute)})
	}

	got := tr.list(to, 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].UserID != 30 || got[2].UserID != 10 {
		t.Fatalf("order = %v, want newest first", got)
	}
}

func TestRecentTrackerDedupesByUser(t *testing.T) {
	t.Parallel()

	tr := newRecentTracker()
	to := kit.ChatTarget{ChatID: 1}
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	tr.note(to, kit.Participant{UserID: 10, Username: "old", LastSeen: base})
	tr.note(to, kit.Participant{UserID: 20, LastSeen: base.Add(time.Minute)})
	tr.note(to, kit.Participant{UserID: 10, Username: "new", LastSeen: base.Add(2 * time.Minute)})

	got := tr.list(to, 0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].UserID != 10 || got[0].Username != "new" {
		t.Fatalf("got[0] = %+v, want refreshed user 10", got[0])
	}
}

func TestRecentTrackerCapsSlot(t *testing.T) {
	t.Parallel()

	tr := newRecentTracker()
	to := kit.ChatTarget{ChatID: 1}
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < maxParticipantsPerSlot+10; i++ {
		tr.note(to, kit.Participant{UserID: int64(i + 1), LastSeen: base.Add(time.Duration(i) * time.Second)})
	}

	got := tr.list(to, 0)
	if len(got) != maxParticipantsPerSlot {
		t.Fatalf("len = %d, want %d", len(got), maxParticipantsPerSlot)
	}
	if got[0].UserID != int64(maxParticipantsPerSlot+10) {
		t.Fatalf("newest = %d, want %d", got[0].UserID, maxParticipantsPerSlot+10)
	}
}

func TestRecentTrackerLimit(t *testing.T) {
	t.Parallel()

	tr := newRecentTracker()
	to := kit.ChatTarget{ChatID: 5}
	for i := 0; i < 10; i++ {
		tr.note(to, kit.Participant{UserID: int64(i + 1)})
	}
	if got := tr.list(to, 3); len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got := tr.list(kit.ChatTarget{ChatID: 99}, 3); got != nil {
		t.Fatalf("unknown target = %v, want nil", got)
	}
}

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("hello", 4000, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTelegramTextPrefersNewline(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 40)
	got := splitTelegramText(text, 60, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if !strings.HasPrefix(got[1], "b") {
		t.Fatalf("second chunk should start after the newline: %q", got[1])
	}
}

func TestSplitTelegramTextAvoidsHTMLTagSplit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("x", 55) + "<code>bold</code>"
	got := splitTelegramText(text, 58, "HTML")
	for _, c := range got {
		open := strings.Count(c, "<")
		closeN := strings.Count(c, ">")
		if open != closeN {
			t.Fatalf("chunk splits inside a tag: %q", c)
		}
	}
}
