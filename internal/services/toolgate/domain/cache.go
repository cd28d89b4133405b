package domain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

// HandlerCache maps session ids to their dispatchers.
//
// It holds no session data; a dispatcher is only a binding of an id to the
// shared store and notifier.
type HandlerCache struct {
	store    storage.SessionStore
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	handlers map[string]*Dispatcher
}

// NewHandlerCache builds an empty cache. notifier may be nil.
func NewHandlerCache(store storage.SessionStore, notifier Notifier) *HandlerCache {
	return &HandlerCache{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		handlers: make(map[string]*Dispatcher),
	}
}

// Get returns the dispatcher for id, creating it and registering the session
// in the store on first reference.
func (c *HandlerCache) Get(ctx context.Context, id string) (*Dispatcher, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, storage.ErrEmptyID
	}

	c.mu.Lock()
	dispatcher, ok := c.handlers[id]
	c.mu.Unlock()
	if ok {
		return dispatcher, nil
	}

	if _, err := c.store.UpdateSession(ctx, id, storage.RegisterSession(c.now)); err != nil {
		return nil, fmt.Errorf("register session %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if dispatcher, ok := c.handlers[id]; ok {
		return dispatcher, nil
	}
	dispatcher = NewDispatcher(id, c.store, c.notifier)
	dispatcher.now = c.now
	c.handlers[id] = dispatcher
	log.Printf("created handler for session %s", id)
	return dispatcher, nil
}

// Len reports how many sessions have a live dispatcher.
func (c *HandlerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
