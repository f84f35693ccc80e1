// Package api implements the HTTP surface of the ordering desk.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfdesk/shelfdesk/internal/agent"
	"github.com/shelfdesk/shelfdesk/internal/audit"
	"github.com/shelfdesk/shelfdesk/internal/buildinfo"
	"github.com/shelfdesk/shelfdesk/internal/chatlog"
	"github.com/shelfdesk/shelfdesk/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	loop     *agent.Loop
	history  *chatlog.Store
	audit    *audit.Store
	registry *tools.Registry
	logger   *slog.Logger
	server   *http.Server

	// Requests within one session are serialized so that concurrent
	// posts cannot interleave their turns or their tool effects.
	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewServer creates a new API server.
func NewServer(address string, port int, loop *agent.Loop, history *chatlog.Store, auditStore *audit.Store, registry *tools.Registry, logger *slog.Logger) *Server {
	return &Server{
		address:  address,
		port:     port,
		loop:     loop,
		history:  history,
		audit:    auditStore,
		registry: registry,
		logger:   logger,
		sessions: make(map[string]*sync.Mutex),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat", s.handleChat)

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	// Observability: read-only views over the stores.
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /v1/sessions/{id}/tools", s.handleSessionTools)
	mux.HandleFunc("GET /v1/tools", s.handleTools)

	return mux
}

// Start runs the HTTP server. It blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.withLogging(withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // a chat request can span many oracle rounds
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withCORS allows browser front-ends on any origin to talk to the
// desk. The API carries no cookies or ambient credentials.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[sessionID] = lock
	}
	return lock
}

// ChatRequest is a single user utterance. SessionID may be empty; the
// server then opens a fresh session and returns its ID.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse carries the assistant's reply. Failures are encoded in
// the reply text, never in the HTTP status: the chat endpoint answers
// 200 to everything it can parse a session for.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, ChatResponse{Reply: "Error processing request: invalid JSON body"}, s.logger)
		return
	}
	if req.Message == "" {
		writeJSON(w, ChatResponse{SessionID: req.SessionID, Reply: "Error processing request: message is required"}, s.logger)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			writeJSON(w, ChatResponse{Reply: "Error processing request: " + err.Error()}, s.logger)
			return
		}
		sessionID = id.String()
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	reply := s.loop.Run(r.Context(), sessionID, req.Message)
	lock.Unlock()

	writeJSON(w, ChatResponse{SessionID: sessionID, Reply: reply}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Shelfdesk",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	limit := 100
	turns, err := s.history.Recent(r.Context(), sessionID, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	}, s.logger)
}

func (s *Server) handleSessionTools(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	invocations, err := s.audit.BySession(r.Context(), sessionID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id":  sessionID,
		"invocations": invocations,
	}, s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tools": s.registry.Definitions(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}
