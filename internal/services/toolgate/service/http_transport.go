package service

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/toolgate/internal/platform/timeouts"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var listenTCP = net.Listen

const (
	// defaultHTTPAddr keeps the default binding local.
	defaultHTTPAddr = "localhost:8787"

	// defaultChannelBufferSize is the buffer size for request and notification channels.
	defaultChannelBufferSize = 10

	// sessionCleanupInterval is how often idle sessions are reaped.
	sessionCleanupInterval = 5 * time.Minute

	// defaultSessionTTL is how long a session can be inactive before being reaped.
	defaultSessionTTL = 1 * time.Hour

	// sseHeartbeatInterval is how often an open SSE stream refreshes lastUsed.
	sseHeartbeatInterval = 30 * time.Second

	// defaultSessionReadyTimeout bounds how long we wait for a session
	// connection to start reading before request handling continues.
	defaultSessionReadyTimeout = 100 * time.Millisecond

	// sessionHeader carries the session id on MCP requests and responses.
	sessionHeader = "Mcp-Session-Id"
	// sessionCookie is the cookie fallback for the session id.
	sessionCookie = "mcp_session"
)

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr         string
	AllowedHosts []string
	SessionTTL   time.Duration
}

// HTTPTransport serves MCP over HTTP.
//
// JSON-RPC messages arrive on POST and responses are written back on the same
// request. Notifications for a session are streamed on GET as Server-Sent
// Events. Each HTTP session owns one MCP server session bound to its id.
type HTTPTransport struct {
	addr         string
	allowedHosts map[string]struct{}
	sessionTTL   time.Duration
	server       *mcp.Server
	mux          *http.ServeMux
	sessions     map[string]*httpSession
	sessionsMu   sync.RWMutex
	httpServer   *http.Server
	serverCtx    context.Context
	serverCancel context.CancelFunc
	serverOnceMu sync.Mutex
	serverOnce   map[string]*sync.Once

	serverReadyTimeout time.Duration
	newSessionID       func() string
	now                func() time.Time
}

// httpSession tracks liveness and the active connection for one session.
type httpSession struct {
	id        string
	conn      *httpConnection
	createdAt time.Time
	lastUsed  time.Time
}

// NewHTTPTransport creates an HTTP transport. Bind must be called before Start.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &HTTPTransport{
		addr:               addr,
		allowedHosts:       parseAllowedHosts(cfg.AllowedHosts),
		sessionTTL:         ttl,
		mux:                http.NewServeMux(),
		sessions:           make(map[string]*httpSession),
		serverCtx:          ctx,
		serverCancel:       cancel,
		serverOnce:         make(map[string]*sync.Once),
		serverReadyTimeout: defaultSessionReadyTimeout,
		newSessionID:       newSessionID,
		now:                time.Now,
	}
	t.routes()
	return t
}

// Bind attaches the MCP server that answers this transport's sessions.
func (t *HTTPTransport) Bind(server *mcp.Server) {
	t.server = server
}

// Handle mounts an additional route on the transport's mux.
// Routes share the transport's host validation.
func (t *HTTPTransport) Handle(pattern string, handler http.HandlerFunc) {
	t.mux.HandleFunc(pattern, handler)
}

// Handler returns the transport's HTTP handler.
func (t *HTTPTransport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.validateLocalRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		t.mux.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) routes() {
	mcpHandler := func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			t.handleSSE(w, r)
		case http.MethodPost:
			t.handleMessages(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
	t.mux.HandleFunc("/mcp", mcpHandler)
	t.mux.HandleFunc("/mcp/{sessionID}", mcpHandler)
	t.mux.HandleFunc("/mcp/health", t.handleHealth)
}

// Start serves HTTP until ctx is cancelled.
func (t *HTTPTransport) Start(ctx context.Context) error {
	if t.server == nil {
		return fmt.Errorf("MCP server is not bound")
	}
	t.serverCtx, t.serverCancel = context.WithCancel(ctx)

	go t.cleanupSessions(ctx)

	t.httpServer = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	log.Printf("Starting toolgate HTTP server on %s", t.addr)

	errChan := make(chan error, 1)
	go func() {
		listener, err := listenTCP("tcp", t.addr)
		if err != nil {
			errChan <- err
			return
		}
		if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down toolgate HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		t.closeSessions()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		if t.serverCancel != nil {
			t.serverCancel()
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("HTTP server error: %w", err)
	}
}

// handleHealth handles GET /mcp/health.
func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("Failed to write health response: %v", err)
	}
}
