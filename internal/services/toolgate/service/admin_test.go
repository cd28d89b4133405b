package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

func serveAdmin(t *testing.T, f *httpFixture, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	req.Host = "localhost"
	w := httptest.NewRecorder()
	f.transport.Handler().ServeHTTP(w, req)
	return w
}

func seedSessions(t *testing.T, f *httpFixture) {
	t.Helper()

	ctx := context.Background()
	if _, err := f.server.handlers.Get(ctx, "0190a6c8-locked-session"); err != nil {
		t.Fatalf("register locked session: %v", err)
	}
	if err := f.store.PutSession(ctx, storage.Session{ID: "0190a6c9-unlocked-session", Unlocked: true}); err != nil {
		t.Fatalf("put unlocked session: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newHTTPFixture(t, false)
	seedSessions(t, f)

	w := serveAdmin(t, f, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Server is running" || resp.Version != serverVersion {
		t.Fatalf("response = %+v", resp)
	}
	if resp.ActiveSessions != 2 {
		t.Fatalf("active sessions = %d, want 2", resp.ActiveSessions)
	}
	if len(resp.Sessions) != 2 || resp.Sessions[0].ID != "0190a6c8..." || resp.Sessions[1].ID != "0190a6c9..." {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}
	if resp.Sessions[0].Unlocked || !resp.Sessions[1].Unlocked {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}
}

func TestStatusCountsStoredSessions(t *testing.T) {
	f := newHTTPFixture(t, false)
	ctx := context.Background()
	// Sessions persisted by an earlier process have no live handler here.
	for _, id := range []string{"0190a6c8-stored-a", "0190a6c9-stored-b", "0190a6ca-stored-c"} {
		if err := f.store.PutSession(ctx, storage.Session{ID: id}); err != nil {
			t.Fatalf("put session %s: %v", id, err)
		}
	}

	w := serveAdmin(t, f, http.MethodGet, "/")
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveSessions != 3 || len(resp.Sessions) != 3 {
		t.Fatalf("active sessions = %d, sessions = %d, want 3", resp.ActiveSessions, len(resp.Sessions))
	}
}

func TestSessionsEndpoint(t *testing.T) {
	f := newHTTPFixture(t, false)
	seedSessions(t, f)

	w := serveAdmin(t, f, http.MethodGet, "/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp sessionsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalSessions != 2 {
		t.Fatalf("total = %d, want 2", resp.TotalSessions)
	}
	if len(resp.Sessions[0].AvailableTools) != 1 || len(resp.Sessions[1].AvailableTools) != 3 {
		t.Fatalf("sessions = %+v", resp.Sessions)
	}
	if resp.Sessions[0].ID != "0190a6c8..." || resp.Sessions[1].ID != "0190a6c9..." {
		t.Fatalf("session ids = %q, %q, want shortened ids", resp.Sessions[0].ID, resp.Sessions[1].ID)
	}
}

func TestSessionEndpoint(t *testing.T) {
	f := newHTTPFixture(t, false)
	seedSessions(t, f)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantTools  int
		wantID     string
	}{
		{name: "locked", path: "/session/0190a6c8-locked-session", wantStatus: http.StatusOK, wantTools: 1, wantID: "0190a6c8..."},
		{name: "unlocked", path: "/session/0190a6c9-unlocked-session", wantStatus: http.StatusOK, wantTools: 3, wantID: "0190a6c9..."},
		{name: "missing", path: "/session/nope", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveAdmin(t, f, http.MethodGet, tt.path)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				var resp errorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if resp.Error != "Session not found" {
					t.Fatalf("error = %q", resp.Error)
				}
				return
			}
			var resp sessionResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.AvailableTools) != tt.wantTools {
				t.Fatalf("tools = %v, want %d", resp.AvailableTools, tt.wantTools)
			}
			if resp.SessionID != tt.wantID {
				t.Fatalf("session id = %q, want %q", resp.SessionID, tt.wantID)
			}
		})
	}
}

func TestDebugUnlockDisabledByDefault(t *testing.T) {
	f := newHTTPFixture(t, false)
	seedSessions(t, f)

	w := serveAdmin(t, f, http.MethodPost, "/debug/unlock/0190a6c8-locked-session")
	if w.Code == http.StatusOK {
		t.Fatal("expected debug route to be unmounted")
	}
}

func TestDebugUnlock(t *testing.T) {
	f := newHTTPFixture(t, true)
	seedSessions(t, f)

	w := serveAdmin(t, f, http.MethodPost, "/debug/unlock/0190a6c8-locked-session")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp unlockResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Session 0190a6c8... unlocked" || !resp.Unlocked {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.AvailableTools) != 3 || resp.AvailableTools[0] != "unlock_more_tools" {
		t.Fatalf("available tools = %v", resp.AvailableTools)
	}
	got, err := f.store.GetSession(context.Background(), "0190a6c8-locked-session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.Unlocked {
		t.Fatal("expected session to be unlocked")
	}

	if w := serveAdmin(t, f, http.MethodPost, "/debug/unlock/unknown"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d, want 404", w.Code)
	}
}

func TestShortSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{id: "0190a6c8-1234", want: "0190a6c8..."},
		{id: "short", want: "short..."},
	}
	for _, tt := range tests {
		if got := shortSessionID(tt.id); got != tt.want {
			t.Fatalf("shortSessionID(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
