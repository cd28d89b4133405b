// Package sqlite provides a durable SQLite-backed session store.
//
// Every read and write for one session is executed by that session's actor, a
// goroutine that owns a mailbox and runs calls one at a time. Callers reach an
// actor through the store's registry (session id -> actor handle), so
// read-modify-write sequences for the same session are linearizable within
// the process while different sessions proceed in parallel. Actors exist only
// while calls for their session are in flight.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sqlitemigrate "github.com/louisbranch/toolgate/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned for calls made after Close.
var ErrClosed = errors.New("session store is closed")

// mailboxSize bounds how many calls may queue for one session actor.
const mailboxSize = 16

// Store persists session state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time

	actorsMu sync.Mutex
	actors   map[string]*sessionActor
	closed   bool
	stop     chan struct{}
	wg       sync.WaitGroup

	writes atomic.Int64
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{
		sqlDB:  sqlDB,
		now:    time.Now,
		actors: make(map[string]*sessionActor),
		stop:   make(chan struct{}),
	}, nil
}

// Close stops every session actor and closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.actorsMu.Lock()
	if s.closed {
		s.actorsMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.actorsMu.Unlock()

	s.wg.Wait()
	return s.sqlDB.Close()
}

// GetSession returns the stored session or the locked default.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	id = strings.TrimSpace(id)
	var session storage.Session
	err := s.call(ctx, id, func(ctx context.Context) error {
		loaded, _, err := s.load(ctx, id)
		session = loaded
		return err
	})
	if err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// PutSession replaces the record for session.ID.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	session.ID = strings.TrimSpace(session.ID)
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = s.now()
	}
	return s.call(ctx, session.ID, func(ctx context.Context) error {
		return s.save(ctx, session)
	})
}

// UpdateSession runs mutate inside the session's actor.
func (s *Store) UpdateSession(ctx context.Context, id string, mutate storage.MutateFunc) (storage.Session, error) {
	if mutate == nil {
		return storage.Session{}, fmt.Errorf("mutate function is required")
	}
	id = strings.TrimSpace(id)
	var result storage.Session
	err := s.call(ctx, id, func(ctx context.Context) error {
		current, found, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		result = current
		next, write, err := mutate(current, found)
		if err != nil || !write {
			return err
		}
		next.ID = id
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = s.now()
		}
		if err := s.save(ctx, next); err != nil {
			return err
		}
		result = next
		return nil
	})
	return result, err
}

// ListSessions returns every recorded session ordered by id.
//
// The listing reads the table directly and is not ordered against in-flight
// actor calls.
func (s *Store) ListSessions(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, unlocked, updated_at FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.Session
	for rows.Next() {
		var (
			session   storage.Session
			unlocked  int64
			updatedAt int64
		)
		if err := rows.Scan(&session.ID, &unlocked, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Unlocked = unlocked != 0
		session.UpdatedAt = fromMillis(updatedAt)
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) load(ctx context.Context, id string) (storage.Session, bool, error) {
	var (
		unlocked  int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `SELECT unlocked, updated_at FROM sessions WHERE id = ?`, id).Scan(&unlocked, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DefaultSession(id), false, nil
	}
	if err != nil {
		return storage.Session{}, false, fmt.Errorf("get session: %w", err)
	}
	return storage.Session{
		ID:        id,
		Unlocked:  unlocked != 0,
		UpdatedAt: fromMillis(updatedAt),
	}, true, nil
}

func (s *Store) save(ctx context.Context, session storage.Session) error {
	unlocked := 0
	if session.Unlocked {
		unlocked = 1
	}
	updatedAt := toMillis(session.UpdatedAt)
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (id, unlocked, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   unlocked = excluded.unlocked,
		   updated_at = excluded.updated_at`,
		session.ID,
		unlocked,
		updatedAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	s.writes.Add(1)
	return nil
}
