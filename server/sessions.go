package server

import (
	"sort"
	"sync"
	"time"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/google/uuid"
)

// Session is a workspace session. Its compilation context keeps imported
// modules parsed and validated between checks.
type Session struct {
	ID      string
	Name    string
	Created time.Time

	// Owned by the worker goroutine.
	ctx   *compiler.Context
	valid map[string]bool // root modules whose last check succeeded
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	results  *ResultStore
}

// NewSessionStore creates a new session store.
func NewSessionStore(results *ResultStore) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		results:  results,
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	session := &Session{
		ID:      uuid.NewString(),
		Name:    name,
		Created: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Debugf("session %s created (%q)", session.ID, name)
	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// List returns every session, oldest first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Destroy removes a session and releases all its results.
func (s *SessionStore) Destroy(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.results.ReleaseSession(id)
}

// reset drops the session's compilation state.
func (s *Session) reset() {
	s.ctx = nil
	s.valid = nil
}
