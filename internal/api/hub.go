package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"papertradingv1/internal/model"
)

// StreamMessage is the envelope sent to snapshot-stream clients after
// every applied mutation.
type StreamMessage struct {
	Type      string               `json:"type"` // "portfolio"
	Portfolio model.PaperPortfolio `json:"portfolio"`
	Equity    string               `json:"equity"`
	TotalPnL  string               `json:"total_pnl"`
	TS        string               `json:"ts"`
}

// Hub fans portfolio snapshots out to connected WebSocket clients. A
// freshly connected client immediately receives the latest snapshot.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	latest  []byte

	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	// OnClientChange receives the client count after every
	// register/unregister (optional, set externally).
	OnClientChange func(n int)
}

// NewHub creates a snapshot hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			latest := h.latest
			n := len(h.clients)
			h.mu.Unlock()
			if latest != nil {
				conn.WriteMessage(websocket.TextMessage, latest)
			}
			log.Printf("[stream] client connected, total=%d", n)
			h.clientChange(n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.clientChange(n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.latest = msg
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) clientChange(n int) {
	if h.OnClientChange != nil {
		h.OnClientChange(n)
	}
}

// BroadcastPortfolio queues a snapshot for all connected clients. Drops
// the message when the buffer is full so mutation paths never block on
// slow readers.
func (h *Hub) BroadcastPortfolio(p model.PaperPortfolio) {
	msg := StreamMessage{
		Type:      "portfolio",
		Portfolio: p,
		Equity:    p.Equity().String(),
		TotalPnL:  p.TotalPnL().String(),
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // dashboards connect cross-origin
	},
}

// HandleWS upgrades GET /api/v1/stream connections.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[stream] upgrade failed: %v", err)
		return
	}

	h.register <- conn

	// Read pump: keep the connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
