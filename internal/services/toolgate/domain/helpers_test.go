package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	sessions      []string
	err           error
}

func (n *recordingNotifier) Notify(_ context.Context, sessionID string, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	n.sessions = append(n.sessions, sessionID)
	return nil
}

func (n *recordingNotifier) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	methods := make([]string, 0, len(n.notifications))
	for _, notification := range n.notifications {
		methods = append(methods, notification.Method)
	}
	return methods
}

// countingStore counts the writes UpdateSession commits.
type countingStore struct {
	storage.SessionStore
	writes atomic.Int64
}

func (s *countingStore) UpdateSession(ctx context.Context, id string, mutate storage.MutateFunc) (storage.Session, error) {
	return s.SessionStore.UpdateSession(ctx, id, func(current storage.Session, found bool) (storage.Session, bool, error) {
		next, write, err := mutate(current, found)
		if err == nil && write {
			s.writes.Add(1)
		}
		return next, write, err
	})
}

type failingStore struct {
	storage.SessionStore
}

var errStoreDown = errors.New("store down")

func (failingStore) GetSession(context.Context, string) (storage.Session, error) {
	return storage.Session{}, errStoreDown
}

func (failingStore) UpdateSession(context.Context, string, storage.MutateFunc) (storage.Session, error) {
	return storage.Session{}, errStoreDown
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("expected result")
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want *mcp.TextContent", result.Content[0])
	}
	return text.Text
}

func toolNamesOf(tools []*mcp.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
