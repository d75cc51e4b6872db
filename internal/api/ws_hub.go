package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/hedge-engine/internal/metrics"
	"github.com/atmx/hedge-engine/internal/model"
	"github.com/atmx/hedge-engine/internal/operation"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type        string           `json:"type"`
	OperationID string           `json:"operation_id"`
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Operation   *model.Operation `json:"operation,omitempty"`
}

// WSHub manages WebSocket connections and broadcasts operation lifecycle
// events to all connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *WSHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return nil

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.drop(conn)
			}
		}
	}
}

func (h *WSHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Set(float64(total))
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements operation.Notifier.
func (h *WSHub) Publish(ev operation.Event) {
	op := ev.Operation
	h.Broadcast(WSMessage{
		Type:        ev.Type,
		OperationID: op.ID,
		Status:      op.Status.String(),
		Timestamp:   ev.Timestamp,
		Operation:   &op,
	})
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws marshal failed", "type", msg.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if the buffer is full so lifecycle calls never block.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // single-user local deployment
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}()
}

var _ operation.Notifier = (*WSHub)(nil)
