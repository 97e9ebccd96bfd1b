package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// TokenStore keeps pending-action payloads server-side and hands out
// short opaque tokens for callback_data (Telegram caps it at 64 bytes).
// Tokens never contain ':'.
//
// Entries expire after the TTL; an expired sweep runs at most once per
// cleanupInterval so Get/Put stay cheap.
type TokenStore struct {
	mu sync.RWMutex

	max int
	ttl time.Duration

	cleanupInterval time.Duration
	nextCleanup     time.Time

	m map[string]tokenEntry
}

type tokenEntry struct {
	b   []byte
	exp time.Time
}

// NewTokenStore creates a store with ttl=15m, cleanup every minute,
// and a 5000-entry cap.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		ttl:             15 * time.Minute,
		max:             5000,
		cleanupInterval: time.Minute,
		m:               map[string]tokenEntry{},
	}
}

// WithTTL sets the token TTL.
func (s *TokenStore) WithTTL(ttl time.Duration) *TokenStore {
	if s == nil {
		return s
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
	return s
}

// WithCleanupInterval sets how often expired tokens are swept.
func (s *TokenStore) WithCleanupInterval(d time.Duration) *TokenStore {
	if s == nil {
		return s
	}
	if d <= 0 {
		d = time.Minute
	}
	s.mu.Lock()
	s.cleanupInterval = d
	s.mu.Unlock()
	return s
}

// PutBytes stores b and returns a fresh token ("~" + 8 base64url chars).
func (s *TokenStore) PutBytes(b []byte) string {
	if s == nil {
		return ""
	}

	var buf [6]byte
	now := time.Now()
	s.maybeCleanup(now)

	for i := 0; i < 8; i++ {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])

		s.mu.Lock()
		if _, exists := s.m[tok]; exists {
			s.mu.Unlock()
			continue
		}
		s.m[tok] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
		s.enforceMaxLocked()
		s.mu.Unlock()
		return tok
	}

	// Collision fallback, widened with a time byte.
	_, _ = rand.Read(buf[:])
	tok := "~" + base64.RawURLEncoding.EncodeToString(append(buf[:], byte(now.UnixNano())))
	s.mu.Lock()
	s.m[tok] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
	s.enforceMaxLocked()
	s.mu.Unlock()
	return tok
}

func (s *TokenStore) PutString(v string) string {
	return s.PutBytes([]byte(v))
}

// PutJSON stores JSON-marshaled v and returns a token.
func (s *TokenStore) PutJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.PutBytes(b), nil
}

// GetBytes returns the stored bytes for tok. Expired tokens miss.
func (s *TokenStore) GetBytes(tok string) ([]byte, bool) {
	if s == nil || tok == "" {
		return nil, false
	}

	now := time.Now()
	s.maybeCleanup(now)

	s.mu.RLock()
	e, ok := s.m[tok]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && now.After(e.exp) {
		s.mu.Lock()
		if e2, ok2 := s.m[tok]; ok2 && !e2.exp.IsZero() && now.After(e2.exp) {
			delete(s.m, tok)
		}
		s.mu.Unlock()
		return nil, false
	}
	return append([]byte(nil), e.b...), true
}

// Delete removes tok immediately. One-shot confirmation tokens call
// this on first use.
func (s *TokenStore) Delete(tok string) {
	if s == nil || tok == "" {
		return
	}
	s.mu.Lock()
	delete(s.m, tok)
	s.mu.Unlock()
}

func (s *TokenStore) GetString(tok string) (string, bool) {
	b, ok := s.GetBytes(tok)
	return string(b), ok
}

// GetJSON unmarshals the stored bytes for tok into out.
func (s *TokenStore) GetJSON(tok string, out any) error {
	b, ok := s.GetBytes(tok)
	if !ok {
		return errors.New("tgui: token not found")
	}
	return json.Unmarshal(b, out)
}

func (s *TokenStore) cleanupLocked(now time.Time) {
	for k, e := range s.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(s.m, k)
		}
	}
}

func (s *TokenStore) maybeCleanup(now time.Time) {
	s.mu.RLock()
	interval := s.cleanupInterval
	next := s.nextCleanup
	s.mu.RUnlock()

	if interval <= 0 {
		interval = time.Minute
	}
	if next.IsZero() {
		s.mu.Lock()
		if s.nextCleanup.IsZero() {
			s.nextCleanup = now.Add(interval)
		}
		s.mu.Unlock()
		return
	}
	if now.Before(next) {
		return
	}

	s.mu.Lock()
	if !now.Before(s.nextCleanup) {
		s.cleanupLocked(now)
		s.nextCleanup = now.Add(interval)
	}
	s.mu.Unlock()
}

func (s *TokenStore) enforceMaxLocked() {
	if s.max <= 0 || len(s.m) <= s.max {
		return
	}
	over := len(s.m) - s.max
	for k := range s.m {
		delete(s.m, k)
		over--
		if over <= 0 {
			break
		}
	}
}
