package stub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"milestone-client/internal/ws"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// pushClient is one subscriber socket on one channel.
type pushClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with pings.
func (c *pushClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; these channels are push-only. It
// exists to detect the peer going away.
func (c *pushClient) readPump(h *Hub, ch ws.Channel, email string) {
	defer func() {
		h.unregister(ch, email, c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub tracks subscriber sockets per channel per member and the
// offline queue of notices generated while a member had no live
// notification socket.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	conns   map[ws.Channel]map[string][]*pushClient
	offline map[string][]string
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		conns:   make(map[ws.Channel]map[string][]*pushClient),
		offline: make(map[string][]string),
	}
}

func (h *Hub) register(ch ws.Channel, email string, c *pushClient) {
	h.mu.Lock()
	if h.conns[ch] == nil {
		h.conns[ch] = make(map[string][]*pushClient)
	}
	h.conns[ch][email] = append(h.conns[ch][email], c)
	h.mu.Unlock()
}

func (h *Hub) unregister(ch ws.Channel, email string, c *pushClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.conns[ch][email]
	for i, cur := range list {
		if cur == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.conns[ch], email)
	} else {
		h.conns[ch][email] = list
	}
	close(c.send)
}

// attach upgrades bookkeeping for a fresh socket and starts its pumps.
func (h *Hub) attach(ch ws.Channel, email string, conn *websocket.Conn) *pushClient {
	c := &pushClient{conn: conn, send: make(chan []byte, 64)}
	h.register(ch, email, c)
	go c.writePump()
	go c.readPump(h, ch, email)
	return c
}

// sendTo queues the frame on every socket the member holds on the
// channel. It reports whether at least one socket got it.
func (h *Hub) sendTo(ch ws.Channel, email string, frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := false
	for _, c := range h.conns[ch][email] {
		select {
		case c.send <- frame:
			delivered = true
		default:
			// Slow consumer; drop the frame rather than block the push path.
		}
	}
	return delivered
}

// broadcast queues the frame on every socket on the channel.
func (h *Hub) broadcast(ch ws.Channel, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, list := range h.conns[ch] {
		for _, c := range list {
			select {
			case c.send <- frame:
			default:
			}
		}
	}
}

// queueOffline stores a notice for delivery on the member's next
// offline-channel connect.
func (h *Hub) queueOffline(email, text string) {
	h.mu.Lock()
	h.offline[email] = append(h.offline[email], text)
	h.mu.Unlock()
}

// flushOffline drains the member's queued notices onto the socket.
func (h *Hub) flushOffline(email string, c *pushClient) {
	h.mu.Lock()
	queued := h.offline[email]
	delete(h.offline, email)
	h.mu.Unlock()

	for _, text := range queued {
		frame, err := json.Marshal(map[string]string{"message": text})
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
		}
	}
}
