package service

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// handleSSE handles GET /mcp and GET /mcp/{sessionID}, streaming the
// session's notifications as Server-Sent Events.
func (t *HTTPTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := requestSessionID(r)
	session, exists := t.lookupSession(sessionID)
	if !exists {
		http.Error(w, "Invalid or missing session ID", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, session.id)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	t.touch(sessionID)
	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.conn.closed:
			return
		case <-ticker.C:
			t.touch(sessionID)
		case msg := <-session.conn.notifyChan:
			t.touch(sessionID)
			data, err := jsonrpc.EncodeMessage(msg)
			if err != nil {
				log.Printf("Failed to encode SSE message: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				log.Printf("Failed to write SSE message for session %s: %v", sessionID, err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
