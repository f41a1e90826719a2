// Package monitoring broadcasts server counters to websocket subscribers.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"farecast/server"
)

// broadcastInterval is how often the stats frame goes out.
const broadcastInterval = 5 * time.Second

type statsFrame struct {
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Stats     server.Stats `json:"stats"`
}

// Hub pushes periodic stats frames to every connected websocket client.
type Hub struct {
	stats    func() server.Stats
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	httpServer *http.Server
}

// NewHub builds a hub over a stats provider.
func NewHub(stats func() server.Stats, log *zap.Logger) *Hub {
	return &Hub{
		stats: stats,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start serves the websocket endpoint on /ws and begins broadcasting.
func (h *Hub) Start(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)
	h.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		h.log.Info("monitor listening", zap.String("addr", h.httpServer.Addr))
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.log.Error("monitor server failed", zap.Error(err))
		}
	}()
	go h.broadcastLoop(ctx)
}

// Stop shuts the endpoint down and disconnects all clients.
func (h *Hub) Stop(ctx context.Context) {
	if h.httpServer != nil {
		_ = h.httpServer.Shutdown(ctx)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("monitor client connected", zap.Int("total", total))

	// Drain control frames; drop the client on read error.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := json.Marshal(statsFrame{
				Type:      "server_stats",
				Timestamp: time.Now(),
				Stats:     h.stats(),
			})
			if err != nil {
				continue
			}
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
	}
}
