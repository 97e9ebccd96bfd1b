package translateplugin

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimits enforces per-user quotas: a token bucket for the
// per-minute rate plus rolling counters for the hourly and daily caps.
// Everything is process local.
type userLimits struct {
	mu sync.Mutex

	perMinute int
	perHour   int
	perDay    int

	users map[int64]*userQuota
}

type userQuota struct {
	bucket   *rate.Limiter
	hour     window
	day      window
	lastSeen time.Time
}

// window is a fixed-window counter.
type window struct {
	start time.Time
	count int
}

func (w *window) hit(now time.Time, span time.Duration, max int) bool {
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
	if w.count >= max {
		return false
	}
	w.count++
	return true
}

func newUserLimits(perMinute, perHour, perDay int) *userLimits {
	return &userLimits{
		perMinute: perMinute,
		perHour:   perHour,
		perDay:    perDay,
		users:     map[int64]*userQuota{},
	}
}

// Allow consumes one translation from the user's quota. The denial
// reason names the first exhausted limit.
func (l *userLimits) Allow(userID int64, now time.Time) (ok bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.users[userID]
	if q == nil {
		q = &userQuota{
			bucket: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute),
		}
		l.users[userID] = q
	}
	q.lastSeen = now

	if len(l.users) > 1024 {
		l.evictIdleLocked(now)
	}

	if !q.bucket.AllowN(now, 1) {
		return false, "分あたりの上限"
	}
	if !q.hour.hit(now, time.Hour, l.perHour) {
		return false, "1時間あたりの上限"
	}
	if !q.day.hit(now, 24*time.Hour, l.perDay) {
		return false, "1日あたりの上限"
	}
	return true, ""
}

func (l *userLimits) evictIdleLocked(now time.Time) {
	for id, q := range l.users {
		if now.Sub(q.lastSeen) > 25*time.Hour {
			delete(l.users, id)
		}
	}
}
