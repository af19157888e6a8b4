package companion

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

// ──────────────────────────────────────────────
// HTTP API — synchronous chat endpoint
// ──────────────────────────────────────────────

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	Addr           string        // listen address, e.g. ":8099"
	APIKey         string        // empty key fails every request closed
	RequestTimeout time.Duration // default 30s
}

// DefaultAPIConfig returns production defaults. The key is intentionally
// empty; the server refuses to serve until one is configured.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Addr:           ":8099",
		RequestTimeout: 30 * time.Second,
	}
}

type chatRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type apiError struct {
	Error string `json:"error"`
}

// APIServer exposes the companion over HTTP for sidecar integrations
// (voice frontends, ops tools). Replies are returned whole; the paced
// bubble pipeline only applies to push transports.
type APIServer struct {
	config       APIConfig
	orchestrator *Orchestrator
	server       *http.Server
}

// NewAPIServer creates the server. Call Start to begin listening.
func NewAPIServer(config APIConfig, orchestrator *Orchestrator) *APIServer {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	return &APIServer{config: config, orchestrator: orchestrator}
}

// Handler returns the route table, exported so tests can drive it with
// httptest without a listener.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens in the calling goroutine until the server stops.
func (s *APIServer) Start() error {
	s.server = &http.Server{Addr: s.config.Addr, Handler: s.Handler()}
	log.Printf("[API] listening | addr=%s", s.config.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleChat is the synchronous turn endpoint. Auth fails closed: a server
// deployed without an API key serves 503 to everyone rather than serving
// everyone.
func (s *APIServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	if s.config.APIKey == "" {
		writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "api key not configured"})
		return
	}
	got := r.Header.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.APIKey)) != 1 {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid api key"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: "invalid json body"})
		return
	}
	if req.UserID == "" || req.Text == "" {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: "user_id and text are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	reply, err := s.orchestrator.Respond(ctx, req.UserID, req.Text)
	if err != nil {
		if errors.Is(err, errUserBusy) {
			writeJSON(w, http.StatusTooManyRequests, apiError{Error: "turn already in flight"})
			return
		}
		log.Printf("[API] turn failed | user=%s err=%v", req.UserID, err)
		writeJSON(w, http.StatusBadGateway, apiError{Error: "generation failed"})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}
