package privacyplugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "tomobot/pkg/logx"
)

// flagStore keeps visibility flags in one JSON file keyed by
// "chat:user:feature". Presence of a key means private; shared is the
// default and is stored as absence.
type flagStore struct {
	mu   sync.Mutex
	path string
	log  logx.Logger
}

type flagDoc struct {
	Private map[string]bool `json:"private"`
}

func newFlagStore(path string, log logx.Logger) *flagStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &flagStore{path: path, log: log.With(logx.String("comp", "privacy.store"))}
}

func flagKey(chatID, userID int64, feature string) string {
	return fmt.Sprintf("%d:%d:%s", chatID, userID, feature)
}

func (s *flagStore) isPrivate(chatID, userID int64, feature string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		s.log.Warn("privacy flags unreadable, treating as shared", logx.Err(err))
		return false
	}
	return doc.Private[flagKey(chatID, userID, feature)]
}

func (s *flagStore) setPrivate(chatID, userID int64, feature string, private bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	key := flagKey(chatID, userID, feature)
	if private {
		if doc.Private == nil {
			doc.Private = map[string]bool{}
		}
		doc.Private[key] = true
	} else {
		delete(doc.Private, key)
	}
	return s.saveLocked(doc)
}

// userFlags returns the user's private features in the chat.
func (s *flagStore) userFlags(chatID, userID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return nil
	}
	var out []string
	for f := range knownFeatures {
		if doc.Private[flagKey(chatID, userID, f)] {
			out = append(out, f)
		}
	}
	return out
}

func (s *flagStore) loadLocked() (flagDoc, error) {
	var doc flagDoc
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

func (s *flagStore) saveLocked(doc flagDoc) error {
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
