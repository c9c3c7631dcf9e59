package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"adhan/internal/events"
)

const (
	wsReadDeadline = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 16
)

// Frame is the wire format pushed to UI clients.
type Frame struct {
	Type    string `json:"type"` // notification, event
	Payload any    `json:"payload"`
}

// Hub pushes notifications and bus events to connected UI clients over
// WebSocket. It is a Channel.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu    sync.Mutex
	conns map[string]*wsConn
}

type wsConn struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.With().Str("component", "notify").Str("channel", "websocket").Logger(),
		conns:  make(map[string]*wsConn),
	}
}

// Name implements Channel.
func (h *Hub) Name() string { return "websocket" }

// Send implements Channel. Having no clients is not an error.
func (h *Hub) Send(ctx context.Context, msg Message) error {
	return h.Broadcast(Frame{Type: "notification", Payload: msg})
}

// Attach forwards every bus event to the clients.
func (h *Hub) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(func(e events.Event) {
		h.Broadcast(Frame{Type: "event", Payload: e})
	})
}

// Broadcast queues f for every client. Slow clients drop frames rather
// than stall the sender.
func (h *Hub) Broadcast(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		select {
		case c.send <- data:
		default:
			h.logger.Warn().Str("client", c.id).Msg("client too slow, dropping frame")
		}
	}
	return nil
}

// HandleConnection is the HTTP handler that upgrades to WebSocket.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	wc := &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.conns[wc.id] = wc
	h.mu.Unlock()
	h.logger.Debug().Str("client", wc.id).Str("remote", r.RemoteAddr).Msg("client connected")

	go h.writeLoop(wc)
	// Blocks until the connection closes.
	h.readLoop(wc)

	h.mu.Lock()
	delete(h.conns, wc.id)
	h.mu.Unlock()
	h.logger.Debug().Str("client", wc.id).Msg("client disconnected")
}

// readLoop discards client frames; it exists to process control frames
// and notice disconnects.
func (h *Hub) readLoop(wc *wsConn) {
	defer wc.close()

	wc.conn.SetReadLimit(4 * 1024)
	wc.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		if _, _, err := wc.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", wc.id).Msg("read error")
			}
			return
		}
		wc.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	}
}

// writeLoop is the only writer of data frames for wc and also sends the
// keepalive pings.
func (h *Hub) writeLoop(wc *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer wc.close()

	for {
		select {
		case <-wc.done:
			return
		case data := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// ActiveConnections returns the number of connected clients.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll terminates every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, wc := range h.conns {
		wc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second),
		)
		wc.close()
		delete(h.conns, id)
	}
}
