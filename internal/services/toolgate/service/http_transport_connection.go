package service

import (
	"context"
	"errors"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	errConnectionClosed = errors.New("connection closed")
	errNotifyQueueFull  = errors.New("notification queue is full")
)

// httpConnection implements mcp.Connection for one HTTP session.
//
// Requests posted by the client are queued on reqChan for the MCP server.
// Responses are routed to the waiting POST handler by request id; anything
// else the server writes, and every pushed notification, goes to notifyChan
// for the SSE stream. Data channels are never closed; closed signals shutdown
// and ready is closed on the server's first Read.
type httpConnection struct {
	sessionID   string
	reqChan     chan jsonrpc.Message
	notifyChan  chan jsonrpc.Message
	closed      chan struct{}
	ready       chan struct{}
	readyOnce   sync.Once
	mu          sync.Mutex
	closedFlag  bool
	pendingReqs map[jsonrpc.ID]chan jsonrpc.Message
}

// Read implements mcp.Connection.
func (c *httpConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	c.readyOnce.Do(func() { close(c.ready) })

	select {
	case msg := <-c.reqChan:
		return msg, nil
	case <-c.closed:
		return nil, errConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements mcp.Connection.
func (c *httpConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedFlag {
		return errConnectionClosed
	}

	if resp, ok := msg.(*jsonrpc.Response); ok && resp.ID != (jsonrpc.ID{}) {
		if respChan, exists := c.pendingReqs[resp.ID]; exists {
			delete(c.pendingReqs, resp.ID)
			select {
			case respChan <- msg:
			default:
			}
			return nil
		}
	}
	return c.pushLocked(msg)
}

// push queues a message for the SSE stream without blocking.
func (c *httpConnection) push(msg jsonrpc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedFlag {
		return errConnectionClosed
	}
	return c.pushLocked(msg)
}

func (c *httpConnection) pushLocked(msg jsonrpc.Message) error {
	select {
	case c.notifyChan <- msg:
		return nil
	default:
		return errNotifyQueueFull
	}
}

// await registers a pending request and returns the channel its response
// will be delivered on.
func (c *httpConnection) await(id jsonrpc.ID) (<-chan jsonrpc.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedFlag {
		return nil, errConnectionClosed
	}
	respChan := make(chan jsonrpc.Message, 1)
	c.pendingReqs[id] = respChan
	return respChan, nil
}

// forget drops a pending request that will no longer be waited on.
func (c *httpConnection) forget(id jsonrpc.ID) {
	c.mu.Lock()
	delete(c.pendingReqs, id)
	c.mu.Unlock()
}

// deliver queues a client message for the MCP server.
func (c *httpConnection) deliver(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case c.reqChan <- msg:
		return nil
	case <-c.closed:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements mcp.Connection.
func (c *httpConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedFlag {
		return nil
	}
	c.closedFlag = true
	close(c.closed)
	c.pendingReqs = make(map[jsonrpc.ID]chan jsonrpc.Message)
	return nil
}

// SessionID implements mcp.Connection.
func (c *httpConnection) SessionID() string {
	return c.sessionID
}
