package reminder

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	kit "tomobot/internal/transport"
)

const (
	// DefaultMessage is used when a reminder is created without text.
	DefaultMessage = "リマインダー！"

	// MaxLead caps how far in the future a reminder may be scheduled.
	MaxLead = 30 * 24 * time.Hour

	// Retention is how long delivered-or-stale records may stay on disk
	// before the daily purge drops them.
	Retention = 7 * 24 * time.Hour

	// ShortIDLen is the id prefix length shown to users.
	ShortIDLen = 8
)

// Reminder is a one-shot scheduled notification. Records are immutable
// after creation: there is no update-in-place, a reminder is either
// pending or gone.
type Reminder struct {
	ID         string         `json:"id"`
	OwnerID    int64          `json:"owner_id"`
	Dest       kit.ChatTarget `json:"dest"`
	Message    string         `json:"message"`
	At         time.Time      `json:"at"`
	Notify     bool           `json:"notify"`
	Recipients []int64        `json:"recipients,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New builds a reminder with a fresh id and the default message when
// text is empty. Recipients are a snapshot taken by the caller; they are
// never re-resolved later.
func New(owner int64, dest kit.ChatTarget, message string, at time.Time, notify bool, recipients []int64, now time.Time) Reminder {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = DefaultMessage
	}
	return Reminder{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		Dest:       dest,
		Message:    msg,
		At:         at,
		Notify:     notify,
		Recipients: recipients,
		CreatedAt:  now,
	}
}

// ShortID returns the display prefix of the id.
func (r Reminder) ShortID() string {
	if len(r.ID) <= ShortIDLen {
		return r.ID
	}
	return r.ID[:ShortIDLen]
}

// CheckTarget validates a target instant at creation time: strictly in
// the future and at most MaxLead ahead.
func CheckTarget(at, now time.Time) error {
	if !at.After(now) {
		return Validationf("指定時刻が過去です: %s", at.Format("2006-01-02 15:04"))
	}
	if at.Sub(now) > MaxLead {
		return Validationf("リマインダーは%d日先までしか設定できません", int(MaxLead.Hours()/24))
	}
	return nil
}

// DeliveryText renders the message sent when a reminder fires. The owner
// is always mentioned; recipients (minus the owner) are added only when
// the reminder was created with notify.
func DeliveryText(r Reminder) string {
	var b strings.Builder
	b.WriteString(mention(r.OwnerID))
	if r.Notify {
		for _, id := range r.Recipients {
			if id == r.OwnerID {
				continue
			}
			b.WriteString(" ")
			b.WriteString(mention(id))
		}
	}
	b.WriteString("\n⏰ ")
	b.WriteString(r.Message)
	return b.String()
}

func mention(userID int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%d</a>`, userID, userID)
}

// FindByPrefix matches a full id or an id prefix against items in store
// order. A prefix hitting more than one reminder is rejected with
// ErrAmbiguous; full ids are unique by construction.
func FindByPrefix(items []Reminder, idOrPrefix string) (Reminder, error) {
	q := strings.TrimSpace(idOrPrefix)
	if q == "" {
		return Reminder{}, ErrNotFound
	}
	for _, r := range items {
		if r.ID == q {
			return r, nil
		}
	}
	var found []Reminder
	for _, r := range items {
		if strings.HasPrefix(r.ID, q) {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return Reminder{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return Reminder{}, ErrAmbiguous
	}
}
