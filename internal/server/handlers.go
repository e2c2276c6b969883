// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the roster statistics endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is what the HTTP layer needs from the chat hub.
type Hub interface {
	Submitter
	Roster(ctx context.Context) ([]string, error)
}

// Server holds the state shared by every connection: the hub, the upgrader
// and the pumps it has started.
type Server struct {
	log      *slog.Logger
	hub      Hub
	cfg      Config
	upgrader websocket.Upgrader
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Server that attaches every upgraded connection to h.
func New(log *slog.Logger, h Hub, cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	origins := newOriginPolicy(log, cfg.Origins())
	return &Server{
		log: log,
		hub: h,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection, and starts the
// client's read and write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.log, s.cfg)
	if !s.startPumps(client) {
		client.closeConnection()
		return
	}
	s.log.Info("Client connected", "conn", client.ID(), "addr", r.RemoteAddr)
}

// startPumps launches the client's goroutines unless shutdown has begun.
func (s *Server) startPumps(client *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		client.readPump(s.ctx)
	}()
	return true
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chathub server is running!")
}

type statsResponse struct {
	Chatters []string `json:"chatters"`
	Count    int      `json:"count"`
}

// StatsHandler reports the current roster as JSON.
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names, err := s.hub.Roster(ctx)
	if err != nil {
		s.log.Warn("Roster unavailable", "error", err)
		http.Error(w, "Roster unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statsResponse{Chatters: names, Count: len(names)}); err != nil {
		s.log.Warn("Error writing stats response", "error", err)
	}
}

// Shutdown closes every connection and waits for their pumps to return,
// or for the timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Closing client connections...")
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All client connections closed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Connection shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}
