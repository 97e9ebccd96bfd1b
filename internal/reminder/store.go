package reminder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "tomobot/pkg/logx"
)

// Store is the persistence surface of the subsystem. Every mutation is a
// full read-modify-write of the backing document, serialized by the
// implementation; callers never see partial state.
type Store interface {
	Add(r Reminder) error
	ListAll() ([]Reminder, error)
	ListDue(now time.Time) ([]Reminder, error)
	// Remove is idempotent: removing an absent id is not an error.
	Remove(id string) error
	RemoveWhere(pred func(Reminder) bool) (int, error)
	PurgeOlderThan(cutoff time.Time) (int, error)
}

// document is the on-disk shape: a single JSON object holding the
// ordered reminder list. Timestamps marshal as RFC 3339.
type document struct {
	Reminders []Reminder `json:"reminders"`
}

// FileStore keeps reminders in one JSON file with atomic tmp+rename
// writes. A missing file reads as an empty collection.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

func NewFileStore(path string, log logx.Logger) *FileStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FileStore{path: path, log: log.With(logx.String("comp", "reminder.store"))}
}

func (s *FileStore) Add(r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	doc.Reminders = append(doc.Reminders, r)
	return s.saveLocked(doc)
}

func (s *FileStore) ListAll() ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return doc.Reminders, nil
}

func (s *FileStore) ListDue(now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	var due []Reminder
	for _, r := range doc.Reminders {
		if !r.At.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *FileStore) Remove(id string) error {
	_, err := s.RemoveWhere(func(r Reminder) bool { return r.ID == id })
	return err
}

func (s *FileStore) RemoveWhere(pred func(Reminder) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	kept := doc.Reminders[:0]
	removed := 0
	for _, r := range doc.Reminders {
		if pred(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	doc.Reminders = kept
	if err := s.saveLocked(doc); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *FileStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	return s.RemoveWhere(func(r Reminder) bool { return r.CreatedAt.Before(cutoff) })
}

func (s *FileStore) loadLocked() (document, error) {
	var doc document
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, persistErr("read", err)
	}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return document{}, persistErr("decode", err)
	}
	return doc, nil
}

func (s *FileStore) saveLocked(doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return persistErr("encode", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return persistErr("tmp", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return persistErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return persistErr("close", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return persistErr("rename", err)
	}
	return nil
}

// MemStore is the in-memory Store used by tests and by handler wiring
// that has no data directory configured.
type MemStore struct {
	mu    sync.Mutex
	items []Reminder
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Add(r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, r)
	return nil
}

func (s *MemStore) ListAll() ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reminder, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemStore) ListDue(now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Reminder
	for _, r := range s.items {
		if !r.At.After(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *MemStore) Remove(id string) error {
	_, err := s.RemoveWhere(func(r Reminder) bool { return r.ID == id })
	return err
}

func (s *MemStore) RemoveWhere(pred func(Reminder) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	removed := 0
	for _, r := range s.items {
		if pred(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.items = kept
	return removed, nil
}

func (s *MemStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	return s.RemoveWhere(func(r Reminder) bool { return r.CreatedAt.Before(cutoff) })
}
