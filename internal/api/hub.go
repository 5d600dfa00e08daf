package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/betedge/edgelake/internal/bus"
)

const (
	hubChannelBuffer = 16
	hubWriteDeadline = 10 * time.Second
	hubReadDeadline  = 60 * time.Second
	hubPingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// Hub fans job progress events out to every connected websocket client.
// Slow clients drop messages rather than stall the broadcast loop.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, hubChannelBuffer),
		unregister: make(chan *websocket.Conn, hubChannelBuffer),
		broadcast:  make(chan []byte, 4*hubChannelBuffer),
	}
}

// Run owns the client set until the context ends, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-sys.Shutdown():
			h.closeAll()
			return
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()

			logs.Infof("job stream client connected, total: %d", count)
		case conn := <-h.unregister:
			h.drop(conn)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(hubWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Broadcast queues one job event for every client. A full queue drops the
// event; the poll endpoint remains the authoritative view.
func (h *Hub) Broadcast(ev bus.Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		logs.Errorf("marshal job event, err: %+v", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
	}
}

// HasClients reports whether anyone is listening, so broadcasters can skip
// the marshal when nobody is.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients) > 0
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for conn := range h.clients {
		_ = conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()
}

// handleStream upgrades the request and parks it on the hub until the
// client goes away.
func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Errorf("websocket upgrade, err: %+v", err)
		return
	}

	h.register <- conn

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		ticker := time.NewTicker(hubPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(hubWriteDeadline))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		h.unregister <- conn
	}()

	_ = conn.SetReadDeadline(time.Now().Add(hubReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubReadDeadline))
	})

	// The read loop only services control frames; clients never send data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
