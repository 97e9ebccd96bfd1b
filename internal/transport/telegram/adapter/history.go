package adapter

import (
	"sync"

	kit "tomobot/internal/transport"
)

const (
	maxTrackedTargets      = 256
	maxParticipantsPerSlot = 64
)

// recentTracker remembers the most recent senders per chat/thread, fed
// by the update stream. The Bot API exposes no message history, so this
// cache is the only source for History().
type recentTracker struct {
	mu    sync.Mutex
	slots map[kit.ChatTarget][]kit.Participant
}

func newRecentTracker() *recentTracker {
	return &recentTracker{slots: make(map[kit.ChatTarget][]kit.Participant)}
}

// note records a sender for the target; the newest entry per user wins.
func (t *recentTracker) note(to kit.ChatTarget, p kit.Participant) {
	if p.UserID == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slots[to]
	for i := range slot {
		if slot[i].UserID == p.UserID {
			slot = append(slot[:i], slot[i+1:]...)
			break
		}
	}
	slot = append(slot, p)
	if len(slot) > maxParticipantsPerSlot {
		slot = slot[len(slot)-maxParticipantsPerSlot:]
	}

	if _, ok := t.slots[to]; !ok && len(t.slots) >= maxTrackedTargets {
		t.evictOldestLocked()
	}
	t.slots[to] = slot
}

// evictOldestLocked drops the target whose newest entry is the stalest.
func (t *recentTracker) evictOldestLocked() {
	var victim kit.ChatTarget
	found := false
	for to, slot := range t.slots {
		if len(slot) == 0 {
			victim = to
			found = true
			break
		}
		if !found || slot[len(slot)-1].LastSeen.Before(t.slots[victim][len(t.slots[victim])-1].LastSeen) {
			victim = to
			found = true
		}
	}
	if found {
		delete(t.slots, victim)
	}
}

// list returns participants for the target, newest first.
func (t *recentTracker) list(to kit.ChatTarget, limit int) []kit.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot := t.slots[to]
	if len(slot) == 0 {
		return nil
	}
	if limit <= 0 || limit > len(slot) {
		limit = len(slot)
	}
	out := make([]kit.Participant, 0, limit)
	for i := len(slot) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, slot[i])
	}
	return out
}
