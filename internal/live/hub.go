// Package live pushes screen updates to connected viewers over websockets.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the envelope every viewer receives.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub fans messages out to every registered viewer. Only the latest message
// of each type is kept while the hub is busy, so a slow hub skips
// intermediate views but always delivers the newest one.
type Hub struct {
	clients    map[*websocket.Conn]bool
	closed     bool
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex

	pendingMu sync.Mutex
	pending   map[string][]byte
	order     []string
	wake      chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		pending:    make(map[string][]byte),
		wake:       make(chan struct{}, 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("live_hub"),
	}
}

// Run serves broadcasts and disconnects until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			h.closed = true
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("viewer disconnected", zap.Int("viewers", count))

		case <-h.wake:
			for _, message := range h.drain() {
				h.writeAll(websocket.TextMessage, message)
			}

		case <-ticker.C:
			h.writeAll(websocket.PingMessage, nil)
		}
	}
}

func (h *Hub) drain() [][]byte {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	messages := make([][]byte, 0, len(h.order))
	for _, messageType := range h.order {
		messages = append(messages, h.pending[messageType])
		delete(h.pending, messageType)
	}
	h.order = h.order[:0]
	return messages
}

func (h *Hub) writeAll(messageType int, data []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(messageType, data); err != nil {
			h.logger.Warn("dropping viewer", zap.Error(err))
			delete(h.clients, client)
			client.Close()
		}
	}
}

// Publish queues a message for all viewers. It never blocks. A message that
// has not been sent yet is replaced by a newer one of the same type.
func (h *Hub) Publish(messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode live message", zap.Error(err), zap.String("type", messageType))
		return
	}

	h.pendingMu.Lock()
	if _, queued := h.pending[messageType]; !queued {
		h.order = append(h.order, messageType)
	}
	h.pending[messageType] = data
	h.pendingMu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// ViewerCount returns the number of connected viewers.
func (h *Hub) ViewerCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and keeps the viewer registered until it goes
// away. initial, when non-nil, is evaluated and sent as the viewer joins, so
// no broadcast can fall between the two.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial func() *Message) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if !h.join(conn, initial) {
		conn.Close()
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- conn:
	case <-h.done:
		conn.Close()
	}
}

// join registers conn and writes the initial message under the hub lock.
func (h *Hub) join(conn *websocket.Conn, initial func() *Message) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return false
	}

	if initial != nil {
		if msg := initial(); msg != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("failed to send initial view", zap.Error(err))
				return false
			}
		}
	}
	h.clients[conn] = true
	h.logger.Info("viewer connected", zap.Int("viewers", len(h.clients)))
	return true
}
