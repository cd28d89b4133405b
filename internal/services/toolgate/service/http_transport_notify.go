package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/toolgate/internal/services/toolgate/domain"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Notify implements domain.Notifier by queueing a JSON-RPC notification on
// the session's SSE stream. It never blocks; a missing session or a full
// queue is reported as an error.
func (t *HTTPTransport) Notify(ctx context.Context, sessionID string, notification domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session, ok := t.lookupSession(sessionID)
	if !ok {
		return fmt.Errorf("session %s has no live connection", sessionID)
	}
	params, err := json.Marshal(notification.Params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", notification.Method, err)
	}
	msg := &jsonrpc.Request{
		Method: notification.Method,
		Params: params,
	}
	if err := session.conn.push(msg); err != nil {
		return fmt.Errorf("queue %s: %w", notification.Method, err)
	}
	return nil
}
