package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/domain"
	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
)

// routeMounter is the subset of HTTPTransport the inspection routes need.
type routeMounter interface {
	Handle(pattern string, handler http.HandlerFunc)
}

type sessionBrief struct {
	ID       string `json:"id"`
	Unlocked bool   `json:"unlocked"`
}

type statusResponse struct {
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	Version        string         `json:"version"`
	ActiveSessions int            `json:"activeSessions"`
	Sessions       []sessionBrief `json:"sessions"`
}

type sessionDetail struct {
	ID             string   `json:"id"`
	Unlocked       bool     `json:"unlocked"`
	AvailableTools []string `json:"availableTools"`
}

type sessionsResponse struct {
	TotalSessions int             `json:"totalSessions"`
	Sessions      []sessionDetail `json:"sessions"`
}

type sessionResponse struct {
	SessionID      string   `json:"sessionId"`
	Unlocked       bool     `json:"unlocked"`
	AvailableTools []string `json:"availableTools"`
}

type unlockResponse struct {
	Message        string   `json:"message"`
	Unlocked       bool     `json:"unlocked"`
	AvailableTools []string `json:"availableTools"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// mountAdmin registers the inspection routes and, when debug is set, the
// forced-unlock route.
func (s *Server) mountAdmin(mux routeMounter, debug bool) {
	mux.Handle("GET /{$}", s.handleStatus)
	mux.Handle("GET /sessions", s.handleSessions)
	mux.Handle("GET /session/{sessionID}", s.handleSession)
	if debug {
		mux.Handle("POST /debug/unlock/{sessionID}", s.handleDebugUnlock)
	}
}

// handleStatus handles GET /.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		log.Printf("list sessions: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to list sessions"})
		return
	}
	briefs := make([]sessionBrief, 0, len(sessions))
	for _, session := range sessions {
		briefs = append(briefs, sessionBrief{ID: shortSessionID(session.ID), Unlocked: session.Unlocked})
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Message:        "Server is running",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Version:        serverVersion,
		ActiveSessions: len(sessions),
		Sessions:       briefs,
	})
}

// handleSessions handles GET /sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		log.Printf("list sessions: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to list sessions"})
		return
	}
	details := make([]sessionDetail, 0, len(sessions))
	for _, session := range sessions {
		details = append(details, sessionDetail{
			ID:             shortSessionID(session.ID),
			Unlocked:       session.Unlocked,
			AvailableTools: domain.VisibleToolNames(session),
		})
	}
	writeJSON(w, http.StatusOK, sessionsResponse{TotalSessions: len(details), Sessions: details})
}

// handleSession handles GET /session/{sessionID}.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := s.store.UpdateSession(r.Context(), id, storage.ExistingSession())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:      shortSessionID(session.ID),
		Unlocked:       session.Unlocked,
		AvailableTools: domain.VisibleToolNames(session),
	})
}

// handleDebugUnlock handles POST /debug/unlock/{sessionID}.
func (s *Server) handleDebugUnlock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("sessionID"))
	session, err := s.store.UpdateSession(r.Context(), id, storage.ForceUnlock(time.Now))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	log.Printf("Debug unlock for session %s", session.ID)
	writeJSON(w, http.StatusOK, unlockResponse{
		Message:        fmt.Sprintf("Session %s unlocked", shortSessionID(session.ID)),
		Unlocked:       session.Unlocked,
		AvailableTools: domain.VisibleToolNames(session),
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrEmptyID):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Session not found"})
	default:
		log.Printf("session store: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Session store unavailable"})
	}
}

// shortSessionID abbreviates a session id for listings.
func shortSessionID(id string) string {
	if len(id) <= 8 {
		return id + "..."
	}
	return id[:8] + "..."
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}
