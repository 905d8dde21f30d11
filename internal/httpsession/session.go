package httpsession

import (
	"context"
	"maps"
	"sync"
	"time"
)

type sessionContextKey struct{}

// FromContext returns the session attached by the middleware. It returns nil
// outside a request served through New.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey{}).(*Session)
	return s
}

// Session is the per request view of a stored record. Mutations are kept in
// memory and persisted once, when the response is committed.
type Session struct {
	mu sync.Mutex

	id          string
	createdAt   time.Time
	isNew       bool
	values      map[string]any
	changed     bool
	invalidated bool
	maxAge      *time.Duration
}

func newSession(id string, values map[string]any, createdAt time.Time, isNew bool) *Session {
	if values == nil {
		values = map[string]any{}
	}
	return &Session{
		id:        id,
		createdAt: createdAt,
		isNew:     isNew,
		values:    values,
	}
}

// ID returns the identifier the client presented and the store accepted.
// It is empty for new sessions until the response is committed.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// CreatedAt reports when the record was first saved. It is the zero time for
// new sessions.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// IsNew reports whether no stored record backed the request. Missing,
// expired, and unreadable records all yield a new session.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores v under key and marks the session changed.
func (s *Session) Set(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
	s.changed = true
}

// Delete removes key and marks the session changed if it was present.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.changed = true
	}
}

// Values returns a copy of the session values.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Changed marks the session for saving. Use it after mutating a value in
// place, such as a nested map returned by Get.
func (s *Session) Changed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = true
}

// Invalidate clears the session and removes its record on commit. Values set
// afterwards are saved under a new identifier.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	s.invalidated = true
	s.changed = true
}

// SetMaxAge overrides the lifetime for this session's next save. Zero or
// less stores the record without expiry and issues a browser session cookie.
func (s *Session) SetMaxAge(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = &d
	s.changed = true
}
