// Package status implements the optional live status endpoint from
// spec.md §2.12: an HTTP+WebSocket server exposing the Sync
// Orchestrator's admission/download/upload counters, routed with
// github.com/gorilla/mux the way internal/handlers/server.go routes
// the teacher's API, and broadcast over
// github.com/gorilla/websocket connections.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/torrents3/torrents3/internal/logging"
)

// Snapshot mirrors internal/sync.Snapshot's shape without importing
// that package, so status has no dependency on the orchestrator.
type Snapshot struct {
	Requested int `json:"requested"`
	InFlight  int `json:"in_flight"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server broadcasts Snapshot values pushed onto its Publish channel to
// every connected WebSocket client, and serves the latest one as plain
// JSON over GET /status for clients that don't want a socket.
type Server struct {
	addr       string
	logger     *logging.Logger
	httpServer *http.Server

	mu      sync.Mutex
	latest  Snapshot
	clients map[*websocket.Conn]struct{}
	Publish chan Snapshot
}

func New(addr string, logger *logging.Logger) *Server {
	return &Server{
		addr:    addr,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		Publish: make(chan Snapshot, 16),
	}
}

// Start launches the HTTP server and the broadcast pump in background
// goroutines and returns immediately.
func (s *Server) Start() {
	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatusJSON).Methods("GET")
	router.HandleFunc("/status/ws", s.handleWebSocket).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go s.pump()
	go func() {
		s.logger.Info("status server listening on", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped:", err)
		}
	}()
}

// Stop shuts down the HTTP server and closes every connected socket.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	close(s.Publish)
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pump() {
	for snap := range s.Publish {
		s.mu.Lock()
		s.latest = snap
		for c := range s.clients {
			if err := c.WriteJSON(snap); err != nil {
				c.Close()
				delete(s.clients, c)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap := s.latest
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("status server: websocket upgrade failed:", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	// Write the initial snapshot while still holding mu, so it can't
	// race with pump's broadcast writes to this same connection
	// (gorilla/websocket forbids concurrent writers per connection).
	err = conn.WriteJSON(s.latest)
	if err != nil {
		delete(s.clients, conn)
	}
	s.mu.Unlock()

	if err != nil {
		conn.Close()
		return
	}

	// Drain and discard any client reads; this is a push-only feed,
	// but ReadMessage detects client-initiated close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				delete(s.clients, conn)
				s.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}
