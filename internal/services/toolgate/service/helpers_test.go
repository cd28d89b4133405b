package service

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage/memory"
)

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolListResult struct {
	Tools []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"tools"`
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type httpFixture struct {
	transport *HTTPTransport
	server    *Server
	store     storage.SessionStore
	ts        *httptest.Server
}

func newHTTPFixture(t *testing.T, debug bool) *httpFixture {
	t.Helper()

	store := memory.New()
	transport := NewHTTPTransport(HTTPConfig{})
	server := New(store, transport, "")
	transport.Bind(server.MCPServer())
	server.mountAdmin(transport, debug)

	ts := httptest.NewServer(transport.Handler())
	t.Cleanup(func() {
		transport.closeSessions()
		ts.Close()
		transport.serverCancel()
	})
	return &httpFixture{transport: transport, server: server, store: store, ts: ts}
}

const initializeBody = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"toolgate-test","version":"1.0.0"}}}`

func (f *httpFixture) post(t *testing.T, path, sessionID, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func (f *httpFixture) rpc(t *testing.T, path, sessionID, body string) rpcResponse {
	t.Helper()

	resp := f.post(t, path, sessionID, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, data)
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded
}

// initialize opens a session and completes the MCP handshake.
func (f *httpFixture) initialize(t *testing.T, path string) string {
	t.Helper()

	resp := f.post(t, path, "", initializeBody)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status = %d", resp.StatusCode)
	}
	sessionID := resp.Header.Get(sessionHeader)
	if sessionID == "" {
		t.Fatal("expected session id header")
	}
	initialized := f.post(t, "/mcp", sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`)
	initialized.Body.Close()
	if initialized.StatusCode != http.StatusNoContent {
		t.Fatalf("initialized status = %d", initialized.StatusCode)
	}
	return sessionID
}

func (f *httpFixture) listTools(t *testing.T, sessionID string) []string {
	t.Helper()

	resp := f.rpc(t, "/mcp", sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`)
	if resp.Error != nil {
		t.Fatalf("tools/list error: %+v", resp.Error)
	}
	var result toolListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func (f *httpFixture) callTool(t *testing.T, sessionID, name, args string) rpcResponse {
	t.Helper()

	body := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
	return f.rpc(t, "/mcp", sessionID, body)
}

func callText(t *testing.T, resp rpcResponse) string {
	t.Helper()

	if resp.Error != nil {
		t.Fatalf("tools/call error: %+v", resp.Error)
	}
	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode call result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("content = %+v, want one text item", result.Content)
	}
	return result.Content[0].Text
}

// readSSEEvents reads n JSON-RPC events from the session's SSE stream.
func (f *httpFixture) readSSEEvents(t *testing.T, sessionID string, n int) []json.RawMessage {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL+"/mcp/"+sessionID, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("open SSE: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var events []json.RawMessage
	scanner := bufio.NewScanner(resp.Body)
	for len(events) < n && scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			events = append(events, json.RawMessage(data))
		}
	}
	if len(events) < n {
		t.Fatalf("read %d SSE events, want %d (err=%v)", len(events), n, scanner.Err())
	}
	return events
}
