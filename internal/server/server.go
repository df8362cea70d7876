// Package server exposes the orchestrator over HTTP and WebSocket. Streaming
// turns emit one frame (or SSE data line) per event and terminate with a
// [DONE] marker after the final event, so clients can tell a completed stream
// from a dropped connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tyrz939/dehum-assistant/internal/log"
	"github.com/tyrz939/dehum-assistant/internal/orchestrator"
	"github.com/tyrz939/dehum-assistant/internal/session"
)

// endMarker terminates every event stream after the final event.
const endMarker = "[DONE]"

// ChatRequest is the inbound message shape shared by all transports.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Server is the HTTP + WebSocket gateway.
type Server struct {
	orch   *orchestrator.Orchestrator
	store  session.Store
	apiKey string

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway. apiKey is optional; when empty, requests are not
// authenticated.
func New(orch *orchestrator.Orchestrator, store session.Store, apiKey string) *Server {
	return &Server{
		orch:   orch,
		store:  store,
		apiKey: apiKey,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler, exported for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /chat", s.auth(s.handleChat))
	mux.HandleFunc("POST /chat/stream", s.auth(s.handleChatStream))
	mux.HandleFunc("GET /ws", s.auth(s.handleWebSocket))
	mux.HandleFunc("GET /session/{id}", s.auth(s.handleSessionInfo))
	mux.HandleFunc("POST /session/{id}/clear", s.auth(s.handleSessionClear))
	mux.HandleFunc("POST /session/{id}/recover", s.auth(s.handleSessionRecover))
	return mux
}

// Start listens on addr and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if log.IsEnabled() {
		log.Logger().Info("gateway listening", zap.String("addr", ln.Addr().String()))
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// auth enforces Bearer auth only when an API key is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := r.Header.Get("Authorization")
			if got != "Bearer "+s.apiKey {
				httpError(w, http.StatusForbidden, "invalid API key")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service":   "dehum-assistant",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range s.orch.Health() {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	resp, err := s.orch.ProcessChat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChatStream emits the turn as server-sent events, one data line per
// event, then the end marker.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range s.orch.RunTurn(r.Context(), req.SessionID, req.Message) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprintf(w, "data: %s\n\n", endMarker)
	flusher.Flush()
}

// handleWebSocket runs a chat loop over one connection: each inbound JSON
// message starts a turn, each event goes out as one text frame, and the end
// marker frame closes the turn.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		for ev := range s.orch.RunTurn(r.Context(), req.SessionID, req.Message) {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(endMarker)); err != nil {
			return
		}
	}
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Load(r.Context(), r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sess.ID,
		"message_count": sess.MessageCount,
		"created_at":    sess.CreatedAt,
		"last_activity": sess.LastActivity,
		"history":       sess.History,
	})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil && !errors.Is(err, session.ErrNotFound) {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "Session cleared"})
}

func (s *Server) handleSessionRecover(w http.ResponseWriter, r *http.Request) {
	msg := s.orch.Recover(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": msg})
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"detail": msg})
}
