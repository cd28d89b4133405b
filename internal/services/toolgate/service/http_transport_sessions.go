package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// openSession creates a session bound to id, replacing any previous
// connection for the same id.
func (t *HTTPTransport) openSession(id string) *httpSession {
	conn := &httpConnection{
		sessionID:   id,
		reqChan:     make(chan jsonrpc.Message, defaultChannelBufferSize),
		notifyChan:  make(chan jsonrpc.Message, defaultChannelBufferSize),
		closed:      make(chan struct{}),
		ready:       make(chan struct{}),
		pendingReqs: make(map[jsonrpc.ID]chan jsonrpc.Message),
	}
	now := t.now()
	session := &httpSession{
		id:        id,
		conn:      conn,
		createdAt: now,
		lastUsed:  now,
	}

	t.sessionsMu.Lock()
	previous := t.sessions[id]
	t.sessions[id] = session
	t.sessionsMu.Unlock()

	t.serverOnceMu.Lock()
	t.serverOnce[id] = &sync.Once{}
	t.serverOnceMu.Unlock()

	if previous != nil {
		_ = previous.conn.Close()
	}
	return session
}

// lookupSession returns the live session for id.
func (t *HTTPTransport) lookupSession(id string) (*httpSession, bool) {
	if id == "" {
		return nil, false
	}
	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()
	session, ok := t.sessions[id]
	return session, ok && session != nil
}

// touch records activity on a session.
func (t *HTTPTransport) touch(id string) {
	t.sessionsMu.Lock()
	if session, ok := t.sessions[id]; ok && session != nil {
		session.lastUsed = t.now()
	}
	t.sessionsMu.Unlock()
}

// SessionCount reports how many HTTP sessions are live.
func (t *HTTPTransport) SessionCount() int {
	t.sessionsMu.RLock()
	defer t.sessionsMu.RUnlock()
	return len(t.sessions)
}

func (t *HTTPTransport) cleanupSessions(ctx context.Context) {
	interval := sessionCleanupInterval
	if t.sessionTTL < interval {
		interval = t.sessionTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.reapIdleSessions()
		}
	}
}

// reapIdleSessions closes sessions idle for longer than the session TTL.
// Session state in the store is untouched; a client may re-initialize with
// the same id and resume.
func (t *HTTPTransport) reapIdleSessions() int {
	expiration := t.now().Add(-t.sessionTTL)
	var expired []*httpSession

	t.sessionsMu.Lock()
	for id, session := range t.sessions {
		if session.lastUsed.Before(expiration) {
			expired = append(expired, session)
			delete(t.sessions, id)
		}
	}
	t.sessionsMu.Unlock()

	t.serverOnceMu.Lock()
	for _, session := range expired {
		delete(t.serverOnce, session.id)
	}
	t.serverOnceMu.Unlock()

	for _, session := range expired {
		_ = session.conn.Close()
		log.Printf("Reaped idle session %s", session.id)
	}
	return len(expired)
}

// closeSessions closes every live connection.
func (t *HTTPTransport) closeSessions() {
	t.sessionsMu.Lock()
	sessions := make([]*httpSession, 0, len(t.sessions))
	for _, session := range t.sessions {
		sessions = append(sessions, session)
	}
	t.sessionsMu.Unlock()

	for _, session := range sessions {
		_ = session.conn.Close()
	}
}

// ensureServerRunning starts the MCP server session for session once.
func (t *HTTPTransport) ensureServerRunning(session *httpSession) {
	if t.server == nil {
		return
	}

	t.serverOnceMu.Lock()
	once, exists := t.serverOnce[session.id]
	if !exists {
		once = &sync.Once{}
		t.serverOnce[session.id] = once
	}
	t.serverOnceMu.Unlock()

	transport := &sessionTransport{conn: session.conn}
	once.Do(func() {
		go func() {
			serverSession, err := t.server.Connect(t.serverCtx, transport, nil)
			if err != nil {
				log.Printf("Failed to connect MCP server session %s: %v", session.id, err)
				return
			}
			_ = serverSession.Wait()
		}()
	})

	select {
	case <-session.conn.ready:
	case <-time.After(t.serverReadyTimeout):
		// Readiness is signalled on the first Read; continue and let the
		// request channel buffer the message.
	case <-t.serverCtx.Done():
	}
}

// sessionTransport hands a pre-built connection to mcp.Server.Connect.
type sessionTransport struct {
	conn mcp.Connection
}

// Connect implements mcp.Transport.
func (st *sessionTransport) Connect(context.Context) (mcp.Connection, error) {
	return st.conn, nil
}

// newSessionID returns a time-ordered UUID, falling back to a random one.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
