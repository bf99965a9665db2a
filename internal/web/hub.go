package web

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

const (
	writeTimeout = 5 * time.Second
	// clientQueue is how many snapshots a client may fall behind before it is dropped.
	clientQueue = 8
)

type client struct {
	conn *websocket.Conn
	send chan *websocket.PreparedMessage
}

// Hub pushes every snapshot to connected websocket clients. A new client
// receives the latest snapshot immediately. Each client has its own writer,
// so PublishSnapshot only queues and never waits on the network.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]bool
	last    *websocket.PreparedMessage
}

var _ port.SnapshotSink = (*Hub)(nil)

// NewHub creates a hub accepting same-host and non-browser clients.
func NewHub() *Hub {
	h := &Hub{clients: make(map[*client]bool)}
	h.upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}
	return h
}

// checkOrigin allows clients without an Origin header (scripts, curl) and
// browsers on the same host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.Contains(origin, "localhost") || strings.Contains(origin, r.Host)
}

// PublishSnapshot queues snap for every client. A client whose queue is full
// is dropped.
func (h *Hub) PublishSnapshot(snap state.Snapshot) error {
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, state.FormatEvent(snap))
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = pm
	for c := range h.clients {
		select {
		case c.send <- pm:
		default:
			log.Debug().Int("queue", clientQueue).Msg("websocket client too slow, dropping")
			h.removeLocked(c)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
// Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: ws, send: make(chan *websocket.PreparedMessage, clientQueue)}
	h.mu.Lock()
	h.clients[c] = true
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	go h.writeLoop(c)
	defer h.remove(c)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
	}
}

// writeLoop is the only writer of c.conn. It ends, closing the connection,
// when the client is removed or a write fails.
func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for pm := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WritePreparedMessage(pm); err != nil {
			log.Debug().Err(err).Str("remote", c.conn.RemoteAddr().String()).Msg("dropping websocket client")
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(time.Second))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
