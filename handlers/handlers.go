// Package handlers is the HTTP surface: a message endpoint that streams the
// agent's lifecycle events over SSE, a plan progress endpoint, an
// interactive terminal over websocket, and health.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"stepwise/agent"
	"stepwise/plan"
	"stepwise/sandbox"
	"stepwise/sse"
)

// Server bundles the HTTP handlers around one agent.
type Server struct {
	agent    *agent.Agent
	terminal *sandbox.Local // nil when the sandbox is remote
}

// New creates the handler set. local may be nil; the terminal endpoint then
// reports 503.
func New(a *agent.Agent, local *sandbox.Local) *Server {
	return &Server{agent: a, terminal: local}
}

// Register installs all routes on the mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/message", s.handleMessage)
	mux.HandleFunc("/sessions/", s.handleSessions)
	mux.HandleFunc("/terminal", s.handleTerminal)
	mux.HandleFunc("/health", s.handleHealth)
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleMessage runs one agent turn, streaming lifecycle events as SSE.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message must not be empty")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	// Validate before SSE headers are sent (NewWriter commits 200).
	writer := sse.NewWriter(w)
	if writer == nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	startTime := time.Now()
	eventCh := make(chan agent.StreamEvent, 64)
	go s.agent.RunTurn(r.Context(), req.SessionID, req.Message, eventCh)

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case evt, ok := <-eventCh:
			if !ok {
				writer.Send("done", map[string]any{
					"session_id":        req.SessionID,
					"total_duration_ms": time.Since(startTime).Milliseconds(),
				})
				return
			}
			writer.Send(evt.Event, map[string]any{
				"event":      evt.Event,
				"name":       evt.Name,
				"run_id":     evt.RunID,
				"session_id": req.SessionID,
				"data":       evt.Data,
			})
		case <-keepAlive.C:
			writer.Comment("keep-alive")
		}
	}
}

// handleSessions serves GET /sessions/{id}/plan with the tracker's progress
// summary.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "plan" {
		http.NotFound(w, r)
		return
	}
	sessionID := parts[0]

	sess := s.agent.Sessions.Get(sessionID)
	if sess == nil {
		writeJSONError(w, http.StatusNotFound, "unknown session: "+sessionID)
		return
	}

	summary, err := sess.Tracker.GetProgressSummary()
	if err != nil {
		if errors.Is(err, plan.ErrNoPlan) {
			writeJSONError(w, http.StatusNotFound, "session has no plan")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	p := sess.Tracker.Plan()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"plan":          p.ToMap(),
		"progress":      summary.Progress,
		"current_step":  summary.CurrentStep,
		"anomaly_count": sess.Tracker.AnomalyCount(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agent":  s.agent.ID,
		"model":  s.agent.Model,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
