package calendarplugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "tomobot/pkg/logx"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrEventAmbiguous = errors.New("event id prefix is ambiguous")
)

const shortIDLen = 8

type Event struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	CreatedBy int64     `json:"created_by"`
	Title     string    `json:"title"`
	At        time.Time `json:"at"`
	AllDay    bool      `json:"all_day,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Event) ShortID() string {
	if len(e.ID) <= shortIDLen {
		return e.ID
	}
	return e.ID[:shortIDLen]
}

func newEvent(chatID, createdBy int64, title string, at time.Time, allDay bool, now time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		CreatedBy: createdBy,
		Title:     title,
		At:        at,
		AllDay:    allDay,
		CreatedAt: now,
	}
}

// eventStore keeps events in one JSON document, rewritten whole on
// every mutation.
type eventStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

type eventDoc struct {
	Events []Event `json:"events"`
}

func newEventStore(path string, log logx.Logger) *eventStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &eventStore{path: path, log: log.With(logx.String("comp", "calendar.store"))}
}

func (s *eventStore) Add(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	doc.Events = append(doc.Events, e)
	return s.saveLocked(doc)
}

// List returns the chat's events from the given instant on, soonest
// first.
func (s *eventStore) List(chatID int64, from time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range doc.Events {
		if e.ChatID == chatID && !e.At.Before(from) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// On returns the chat's events inside [dayStart, dayEnd).
func (s *eventStore) On(chatID int64, dayStart, dayEnd time.Time) ([]Event, error) {
	all, err := s.List(chatID, dayStart)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, e := range all {
		if e.At.Before(dayEnd) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ChatsWithEvents returns the distinct chats having events within
// [from, to).
func (s *eventStore) ChatsWithEvents(from, to time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var out []int64
	for _, e := range doc.Events {
		if !e.At.Before(from) && e.At.Before(to) && !seen[e.ChatID] {
			seen[e.ChatID] = true
			out = append(out, e.ChatID)
		}
	}
	return out, nil
}

// Remove deletes an event by full id or unique short prefix, scoped to
// the chat.
func (s *eventStore) Remove(chatID int64, idOrPrefix string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return Event{}, err
	}

	var found []int
	for i, e := range doc.Events {
		if e.ChatID != chatID {
			continue
		}
		if e.ID == idOrPrefix {
			found = []int{i}
			break
		}
		if strings.HasPrefix(e.ID, idOrPrefix) {
			found = append(found, i)
		}
	}
	switch len(found) {
	case 0:
		return Event{}, ErrEventNotFound
	case 1:
	default:
		return Event{}, ErrEventAmbiguous
	}

	i := found[0]
	removed := doc.Events[i]
	doc.Events = append(doc.Events[:i], doc.Events[i+1:]...)
	if err := s.saveLocked(doc); err != nil {
		return Event{}, err
	}
	return removed, nil
}

// PurgePast drops events older than the cutoff across all chats.
func (s *eventStore) PurgePast(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	kept := doc.Events[:0]
	removed := 0
	for _, e := range doc.Events {
		if e.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Events = kept
	if err := s.saveLocked(doc); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *eventStore) loadLocked() (eventDoc, error) {
	var doc eventDoc
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (s *eventStore) saveLocked(doc eventDoc) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
