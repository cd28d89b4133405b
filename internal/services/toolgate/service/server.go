package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/domain"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "toolgate"
	// serverVersion identifies the MCP server version.
	serverVersion = "1.0.0"
	// defaultSessionID is used for transports that carry no session id.
	defaultSessionID = "stdio"
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP runs MCP over HTTP with an SSE notification stream.
	TransportHTTP TransportKind = "http"
)

// Config configures the toolgate server.
type Config struct {
	Transport TransportKind
	// HTTPAddr is the listen address for the HTTP transport. Defaults to localhost:8787.
	HTTPAddr string
	// DefaultSessionID names the session used when the transport has no ids.
	DefaultSessionID string
	// DebugEndpoints mounts POST /debug/unlock/{sessionID}.
	DebugEndpoints bool
	// AllowedHosts extends the loopback hosts accepted in Host and Origin headers.
	AllowedHosts []string
	// SessionTTL is how long an idle HTTP session is kept. Defaults to one hour.
	SessionTTL time.Duration
	// MetricsHandler, when set, is served at GET /metrics on the HTTP transport.
	MetricsHandler http.Handler
}

// Server routes MCP tool requests to per-session dispatchers.
type Server struct {
	mcpServer        *mcp.Server
	handlers         *domain.HandlerCache
	store            storage.SessionStore
	defaultSessionID string
	startedAt        time.Time
}

// New builds an MCP server whose tool surface is decided per session.
// notifier may be nil when the transport cannot push notifications.
func New(store storage.SessionStore, notifier domain.Notifier, sessionID string) *Server {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = defaultSessionID
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	server := &Server{
		mcpServer:        mcpServer,
		handlers:         domain.NewHandlerCache(store, notifier),
		store:            store,
		defaultSessionID: sessionID,
		startedAt:        time.Now(),
	}

	// Registering the catalogue advertises the tools capability. Visibility and
	// permission are decided per session by the middleware below.
	for _, tool := range domain.AllTools() {
		mcpServer.AddTool(tool, server.handleToolCall)
	}
	mcpServer.AddReceivingMiddleware(server.sessionMiddleware)
	return server
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// sessionMiddleware answers tools/list and tools/call from the session's
// dispatcher. Every other method falls through to the MCP server.
func (s *Server) sessionMiddleware(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		switch method {
		case "tools/list":
			listReq, ok := req.(*mcp.ListToolsRequest)
			if !ok {
				return next(ctx, method, req)
			}
			dispatcher, err := s.handlers.Get(ctx, s.sessionID(listReq.Session))
			if err != nil {
				return nil, err
			}
			return &mcp.ListToolsResult{Tools: dispatcher.ListTools(ctx)}, nil
		case "tools/call":
			callReq, ok := req.(*mcp.CallToolRequest)
			if !ok {
				return next(ctx, method, req)
			}
			return s.handleToolCall(ctx, callReq)
		default:
			return next(ctx, method, req)
		}
	}
}

// handleToolCall dispatches a tools/call request to the caller's session.
func (s *Server) handleToolCall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Params == nil {
		return nil, fmt.Errorf("tool call params are required")
	}
	dispatcher, err := s.handlers.Get(ctx, s.sessionID(req.Session))
	if err != nil {
		return nil, err
	}
	return dispatcher.CallTool(ctx, domain.ToolCallRequest{
		Name:      req.Params.Name,
		Arguments: domain.DecodeArguments(req.Params.Arguments),
	})
}

// sessionID resolves the store key for an MCP session.
func (s *Server) sessionID(session *mcp.ServerSession) string {
	if session != nil {
		if id := strings.TrimSpace(session.ID()); id != "" {
			return id
		}
	}
	return s.defaultSessionID
}

// Serve runs the MCP server over transport until the peer disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Run is the service entrypoint and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, store storage.SessionStore) error {
	if store == nil {
		return fmt.Errorf("session store is required")
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportHTTP
	}

	switch cfg.Transport {
	case TransportStdio:
		return New(store, nil, cfg.DefaultSessionID).Serve(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		return runWithHTTPTransport(ctx, cfg, store)
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}
}

// runWithHTTPTransport serves MCP plus the inspection routes over HTTP.
func runWithHTTPTransport(ctx context.Context, cfg Config, store storage.SessionStore) error {
	transport := NewHTTPTransport(HTTPConfig{
		Addr:         cfg.HTTPAddr,
		AllowedHosts: cfg.AllowedHosts,
		SessionTTL:   cfg.SessionTTL,
	})
	server := New(store, transport, cfg.DefaultSessionID)
	transport.Bind(server.mcpServer)
	server.mountAdmin(transport, cfg.DebugEndpoints)
	stopMetrics := mountMetrics(transport, cfg.MetricsHandler)
	defer stopMetrics()
	return transport.Start(ctx)
}
