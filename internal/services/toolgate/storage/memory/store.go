// Package memory provides a volatile, process-local session store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

// Store keeps session records in a map for the lifetime of the process.
//
// GetSession and PutSession are independent map operations and are not
// serialized against each other; UpdateSession holds a per-session lock across
// its read and write so concurrent transitions observe each other.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]storage.Session

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	writes atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]storage.Session),
		locks:    make(map[string]*sessionLock),
	}
}

// GetSession returns the stored session or the locked default.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Session{}, storage.ErrEmptyID
	}
	session, _ := s.load(id)
	return session, nil
}

// PutSession replaces the record for session.ID.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session.ID = strings.TrimSpace(session.ID)
	if session.ID == "" {
		return storage.ErrEmptyID
	}
	s.store(session)
	return nil
}

// UpdateSession applies mutate while holding the session's lock.
func (s *Store) UpdateSession(ctx context.Context, id string, mutate storage.MutateFunc) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Session{}, storage.ErrEmptyID
	}

	lock := s.lockSession(id)
	defer s.unlockSession(id, lock)

	current, found := s.load(id)
	next, write, err := mutate(current, found)
	if err != nil {
		return current, err
	}
	if !write {
		return current, nil
	}
	next.ID = id
	s.store(next)
	return next, nil
}

// ListSessions returns every recorded session ordered by id.
func (s *Store) ListSessions(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	sessions := make([]storage.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// Close is a no-op; it exists so the store satisfies the same lifecycle as
// durable backends.
func (s *Store) Close() error {
	return nil
}

func (s *Store) load(id string) (storage.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return storage.DefaultSession(id), false
	}
	return session, true
}

func (s *Store) store(session storage.Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	s.writes.Add(1)
}

// sessionLock is a per-session mutex shared by the UpdateSession calls that
// hold a reference to it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (s *Store) lockSession(id string) *sessionLock {
	s.locksMu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sessionLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return lock
}

// unlockSession releases lock and drops it once no caller references it.
func (s *Store) unlockSession(id string, lock *sessionLock) {
	lock.mu.Unlock()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, id)
	}
}

func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}
