package server

import (
	"sync"
	"time"

	"github.com/diekev/delsace-sub011/compiler/wire"
	"github.com/google/uuid"
)

// result is a server-side record of one successful check.
type result struct {
	id        string
	iface     *wire.Interface
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// ResultStore maps opaque compilation ids to the module interfaces they
// produced, so clients can fetch an interface after a check without
// sending the source again.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]*result
}

// NewResultStore creates a new result store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]*result)}
}

// Create registers an interface and returns its compilation id.
func (s *ResultStore) Create(iface *wire.Interface, sessionID string) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.results[id] = &result{
		id:        id,
		iface:     iface,
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}
	return id
}

// Lookup retrieves the interface for a compilation id.
func (s *ResultStore) Lookup(id string) (*wire.Interface, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return nil, false
	}
	r.lastUsed = time.Now()
	return r.iface, true
}

// Release removes a result.
func (s *ResultStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, id)
}

// Len returns the number of stored results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// ReleaseSession releases all results owned by a session.
func (s *ResultStore) ReleaseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.results {
		if r.sessionID == sessionID {
			delete(s.results, id)
		}
	}
}

// Sweep removes results that haven't been accessed within the TTL.
func (s *ResultStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, r := range s.results {
		if r.lastUsed.Before(cutoff) {
			delete(s.results, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *ResultStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Debugf("swept %d compilation results", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
