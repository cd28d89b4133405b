package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

var fixedNow = func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }

func TestGetSessionReturnsLockedDefaultForUnknownID(t *testing.T) {
	t.Parallel()

	store := New()
	got, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != "sess-1" || got.Unlocked {
		t.Fatalf("session = %+v, want locked default", got)
	}
	if store.writes.Load() != 0 {
		t.Fatalf("expected no writes, got %d", store.writes.Load())
	}
}

func TestGetSessionRequiresID(t *testing.T) {
	t.Parallel()

	if _, err := New().GetSession(context.Background(), "  "); !errors.Is(err, storage.ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
}

func TestPutSessionReplacesRecord(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	if err := store.PutSession(ctx, storage.Session{ID: "sess-1", Unlocked: true}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Unlocked {
		t.Fatal("expected unlocked session")
	}
}

func TestPutSessionHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New().PutSession(ctx, storage.Session{ID: "sess-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUpdateSessionRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := store.UpdateSession(ctx, "sess-1", storage.RegisterSession(fixedNow)); err != nil {
			t.Fatalf("register session: %v", err)
		}
	}
	if got := store.writes.Load(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "sess-1" {
		t.Fatalf("sessions = %+v, want [sess-1]", sessions)
	}
}

func TestForceUnlockRequiresExistingSession(t *testing.T) {
	t.Parallel()

	store := New()
	_, err := store.UpdateSession(context.Background(), "missing", storage.ForceUnlock(fixedNow))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.writes.Load() != 0 {
		t.Fatalf("expected no writes, got %d", store.writes.Load())
	}
}

func TestListSessionsOrdersByID(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := store.PutSession(ctx, storage.Session{ID: id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	var ids []string
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("ids = %v, want [a b c]", ids)
	}
}

// TestConcurrentUpdateWritesOnce checks that the per-session lock turns two
// racing unlock transitions into a single write.
func TestConcurrentUpdateWritesOnce(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	unlock := func(current storage.Session, _ bool) (storage.Session, bool, error) {
		if current.Unlocked {
			return current, false, nil
		}
		time.Sleep(5 * time.Millisecond)
		current.Unlocked = true
		return current, true, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateSession(ctx, "sess-1", unlock); err != nil {
				t.Errorf("update session: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.writes.Load(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
}

// TestRawGetPutRaceWritesTwice documents that composing GetSession and
// PutSession by hand gives no isolation: both callers observe a locked
// session and both write.
func TestRawGetPutRaceWritesTwice(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	var read sync.WaitGroup
	read.Add(2)
	var done sync.WaitGroup
	transitions := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			session, err := store.GetSession(ctx, "sess-1")
			read.Done()
			if err != nil {
				t.Errorf("get session: %v", err)
				return
			}
			read.Wait()
			if session.Unlocked {
				transitions <- false
				return
			}
			session.Unlocked = true
			if err := store.PutSession(ctx, session); err != nil {
				t.Errorf("put session: %v", err)
			}
			transitions <- true
		}()
	}
	done.Wait()
	close(transitions)

	count := 0
	for transitioned := range transitions {
		if transitioned {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("transitions = %d, want 2", count)
	}
	if got := store.writes.Load(); got != 2 {
		t.Fatalf("writes = %d, want 2", got)
	}
}

func TestExistingSession(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	if _, err := store.UpdateSession(ctx, "sess-1", storage.ExistingSession()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.PutSession(ctx, storage.Session{ID: "sess-1", Unlocked: true}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, err := store.UpdateSession(ctx, "sess-1", storage.ExistingSession())
	if err != nil {
		t.Fatalf("existing session: %v", err)
	}
	if !got.Unlocked {
		t.Fatal("expected unlocked session")
	}
	if store.writes.Load() != 1 {
		t.Fatalf("writes = %d, want 1", store.writes.Load())
	}
}

func TestSessionLocksAreDroppedAfterUpdates(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("missing-%d", i)
		if _, err := store.UpdateSession(ctx, id, storage.ExistingSession()); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("lookup %s: expected ErrNotFound, got %v", id, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.UpdateSession(ctx, "sess-1", storage.RegisterSession(fixedNow)); err != nil {
				t.Errorf("register session: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := store.lockCount(); got != 0 {
		t.Fatalf("session locks = %d, want 0", got)
	}
	if got := store.writes.Load(); got != 1 {
		t.Fatalf("writes = %d, want 1", got)
	}
}
