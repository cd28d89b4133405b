package sqlite

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

// Call states. A queued call is either picked up by the actor or withdrawn
// by its caller, never both.
const (
	callQueued int32 = iota
	callRunning
	callWithdrawn
)

// actorCall is one request delivered to a session actor's mailbox.
type actorCall struct {
	ctx   context.Context
	run   func(context.Context) error
	done  chan error
	state atomic.Int32
}

// sessionActor serializes all storage calls for one session id.
//
// An actor lives while at least one caller holds a reference to it and is
// retired when the last one releases it.
type sessionActor struct {
	id      string
	mailbox chan *actorCall
	quit    chan struct{}
	refs    int
}

// loop executes mailbox calls in arrival order until retired or the store stops.
func (a *sessionActor) loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-a.quit:
			return
		case call := <-a.mailbox:
			if !call.state.CompareAndSwap(callQueued, callRunning) {
				continue
			}
			call.done <- call.run(call.ctx)
		}
	}
}

// acquire returns the actor for id with a reference held, starting the actor
// on first use.
func (s *Store) acquire(id string) (*sessionActor, error) {
	s.actorsMu.Lock()
	defer s.actorsMu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	actor, ok := s.actors[id]
	if !ok {
		actor = &sessionActor{
			id:      id,
			mailbox: make(chan *actorCall, mailboxSize),
			quit:    make(chan struct{}),
		}
		s.actors[id] = actor
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			actor.loop(s.stop)
		}()
	}
	actor.refs++
	return actor, nil
}

// release drops a reference and retires the actor when none remain.
func (s *Store) release(actor *sessionActor) {
	s.actorsMu.Lock()
	defer s.actorsMu.Unlock()
	actor.refs--
	if actor.refs > 0 {
		return
	}
	if s.actors[actor.id] == actor {
		delete(s.actors, actor.id)
	}
	close(actor.quit)
}

// actorCount reports how many session actors are live.
func (s *Store) actorCount() int {
	s.actorsMu.Lock()
	defer s.actorsMu.Unlock()
	return len(s.actors)
}

// call sends run to the actor that owns id and waits for its result.
//
// A caller whose ctx ends while run is queued withdraws it. Once run has
// started, the caller waits for its result so a committed write is never
// reported as a failure.
func (s *Store) call(ctx context.Context, id string, run func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if id == "" {
		return storage.ErrEmptyID
	}

	actor, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer s.release(actor)

	call := &actorCall{ctx: ctx, run: run, done: make(chan error, 1)}
	select {
	case actor.mailbox <- call:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrClosed
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		if call.state.CompareAndSwap(callQueued, callWithdrawn) {
			return ctx.Err()
		}
	case <-s.stop:
		if call.state.CompareAndSwap(callQueued, callWithdrawn) {
			return ErrClosed
		}
	}
	return <-call.done
}
