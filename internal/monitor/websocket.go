// SPDX-License-Identifier: MIT
// Package monitor exposes live analysis results and pipeline statistics
// over a WebSocket endpoint for external dashboards.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mandersson1024/intonation-toy-sub002/internal/analysis"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ingest"
	applog "github.com/mandersson1024/intonation-toy-sub002/internal/log"
	"github.com/mandersson1024/intonation-toy-sub002/internal/pool"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ring"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
)

// BroadcastInterval is the cadence producers should push frames at. It
// sits above minSendInterval so ticker jitter on the producer side never
// lands a frame inside the rate-limit window.
const BroadcastInterval = 50 * time.Millisecond

// minSendInterval is the hard floor between sends, protecting slow
// clients from callers that push faster than BroadcastInterval.
const minSendInterval = 33 * time.Millisecond

// Frame is the JSON payload broadcast to every connected client.
// Volume updates arrive per quantum; pitch updates arrive per analysis
// window, so Pitch may repeat across consecutive frames.
type Frame struct {
	Timestamp int64                      `json:"timestamp"`
	Volume    analysis.VolumeMeasurement `json:"volume"`
	Pitch     analysis.PitchResult       `json:"pitch"`
	Pool      pool.Stats                 `json:"pool"`
	Channel   wire.ChannelStats          `json:"channel"`
	Ring      ring.Stats                 `json:"ring"`
	Ingest    ingest.Stats               `json:"ingest"`
}

// Server broadcasts analysis frames to WebSocket clients on /monitor.
//
// Thread Safety:
//   - Uses a mutex for client map access
//   - Rate limits broadcasts to avoid flooding slow clients
//   - Safe for concurrent Broadcast calls
type Server struct {
	clients         map[*websocket.Conn]bool
	clientsMutex    sync.Mutex
	upgrader        websocket.Upgrader
	server          *http.Server
	sendRateLimiter time.Time
	minSendInterval time.Duration
}

// NewServer creates the monitor server and starts listening on the given
// port. Clients connect to ws://host:port/monitor.
func NewServer(port string) *Server {
	s := &Server{
		clients:         make(map[*websocket.Conn]bool),
		minSendInterval: minSendInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tooling; no origin restriction.
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/monitor", s.handleWebSocket)
	s.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		applog.Infof("Monitor: WebSocket server listening on port %s", port)
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			applog.Errorf("Monitor: server error: %v", err)
		}
	}()

	return s
}

// handleWebSocket upgrades HTTP connections and registers the client.
// A per-connection goroutine drains reads so close frames are noticed
// and dead clients are removed from the broadcast set.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Monitor: WebSocket upgrade error: %v", err)
		return
	}

	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.clientsMutex.Lock()
				delete(s.clients, conn)
				s.clientsMutex.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// Broadcast serializes the frame and sends it to every connected client.
// Frames arriving faster than the rate limit are dropped; clients that
// fail a write are disconnected and removed.
func (s *Server) Broadcast(f Frame) {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()

	if len(s.clients) == 0 {
		return
	}

	now := time.Now()
	if now.Sub(s.sendRateLimiter) < s.minSendInterval {
		return
	}
	s.sendRateLimiter = now

	payload, err := json.Marshal(f)
	if err != nil {
		applog.Errorf("Monitor: frame marshal error: %v", err)
		return
	}

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			applog.Debugf("Monitor: dropping client %s: %v", conn.RemoteAddr(), err)
			delete(s.clients, conn)
			conn.Close()
		}
	}
}

// ClientCount reports the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	return len(s.clients)
}

// Close disconnects all clients and shuts down the HTTP server.
func (s *Server) Close() error {
	s.clientsMutex.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
