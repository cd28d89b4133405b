// Package storage defines persistence contracts for toolgate session state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested session record is missing.
	ErrNotFound = errors.New("session not found")
	// ErrEmptyID indicates a session operation was attempted without an id.
	ErrEmptyID = errors.New("session id is required")
)

// Session is the persisted state of one caller session.
//
// Unlocked is monotonic: once true it is never written back to false.
type Session struct {
	ID        string
	Unlocked  bool
	UpdatedAt time.Time
}

// MutateFunc computes the next state of a session from its current state.
//
// found reports whether the session already existed in the store; when it did
// not, current is the locked default. Returning write=false leaves the store
// untouched. A non-nil error aborts the update and is returned to the caller.
type MutateFunc func(current Session, found bool) (next Session, write bool, err error)

// SessionStore persists session records.
//
// GetSession never fails for an unknown id; it returns the locked default.
// PutSession replaces the full record. UpdateSession runs mutate at the
// session's serialization point so a read-modify-write cannot interleave with
// another UpdateSession for the same id.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (Session, error)
	PutSession(ctx context.Context, session Session) error
	UpdateSession(ctx context.Context, id string, mutate MutateFunc) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
}

// DefaultSession returns the state of a session that has never been written.
func DefaultSession(id string) Session {
	return Session{ID: id}
}

// RegisterSession is a MutateFunc that records a session on first reference
// and leaves existing records untouched.
func RegisterSession(now func() time.Time) MutateFunc {
	return func(current Session, found bool) (Session, bool, error) {
		if found {
			return current, false, nil
		}
		current.UpdatedAt = now().UTC()
		return current, true, nil
	}
}

// ForceUnlock is a MutateFunc that marks an existing session unlocked.
// It returns ErrNotFound for sessions the store has never recorded.
func ForceUnlock(now func() time.Time) MutateFunc {
	return func(current Session, found bool) (Session, bool, error) {
		if !found {
			return current, false, ErrNotFound
		}
		if current.Unlocked {
			return current, false, nil
		}
		current.Unlocked = true
		current.UpdatedAt = now().UTC()
		return current, true, nil
	}
}

// ExistingSession is a MutateFunc that reads a session without writing and
// returns ErrNotFound for sessions the store has never recorded.
func ExistingSession() MutateFunc {
	return func(current Session, found bool) (Session, bool, error) {
		if !found {
			return current, false, ErrNotFound
		}
		return current, false, nil
	}
}
