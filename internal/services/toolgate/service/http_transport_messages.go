package service

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/toolgate/internal/platform/timeouts"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// requestSessionID resolves the session id of a request from the path, the
// Mcp-Session-Id header, or the session cookie, in that order.
func requestSessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.PathValue("sessionID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(sessionHeader)); id != "" {
		return id
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie != nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

// handleMessages handles POST /mcp and POST /mcp/{sessionID}.
//
// An initialize request opens a session: under the caller's id when one is
// given, so state persisted for that id resumes, or under a new id otherwise.
// Any other message must name a live session.
func (t *HTTPTransport) handleMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read request body: %v", err)
		http.Error(w, "Failed to read request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		log.Printf("Invalid JSON-RPC message: %v", err)
		http.Error(w, "Invalid JSON-RPC message", http.StatusBadRequest)
		return
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		http.Error(w, "Invalid message type: response", http.StatusBadRequest)
		return
	}
	isInitialize := req.Method == "initialize"

	sessionID := requestSessionID(r)
	session, exists := t.lookupSession(sessionID)
	if isInitialize {
		if sessionID == "" {
			sessionID = t.newSessionID()
		}
		session = t.openSession(sessionID)
		log.Printf("Opened session %s", sessionID)
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	} else if !exists {
		writeSessionError(w, "Invalid or missing session ID")
		return
	}
	w.Header().Set(sessionHeader, session.id)

	t.touch(session.id)
	t.ensureServerRunning(session)

	var zeroID jsonrpc.ID
	if req.ID == zeroID {
		if err := session.conn.deliver(r.Context(), msg); err != nil {
			http.Error(w, "Request cancelled", http.StatusRequestTimeout)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	respChan, err := session.conn.await(req.ID)
	if err != nil {
		writeSessionError(w, "Session closed")
		return
	}
	if err := session.conn.deliver(r.Context(), msg); err != nil {
		session.conn.forget(req.ID)
		http.Error(w, "Request cancelled", http.StatusRequestTimeout)
		return
	}

	timer := time.NewTimer(timeouts.Request)
	defer timer.Stop()
	select {
	case resp := <-respChan:
		data, err := jsonrpc.EncodeMessage(resp)
		if err != nil {
			log.Printf("Failed to encode response: %v", err)
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			log.Printf("Failed to write response: %v", err)
		}
	case <-session.conn.closed:
		writeSessionError(w, "Session closed")
	case <-r.Context().Done():
		session.conn.forget(req.ID)
		http.Error(w, "Request cancelled", http.StatusRequestTimeout)
	case <-timer.C:
		session.conn.forget(req.ID)
		http.Error(w, "Request timeout", http.StatusRequestTimeout)
	}
}

func writeSessionError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	payload := map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    -32000,
			"message": message,
		},
		"id": nil,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32000,"message":"Session error"},"id":null}`))
		return
	}
	_, _ = w.Write(data)
}
