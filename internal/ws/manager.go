// Package ws owns the client side of every websocket channel. Each
// logical channel holds at most one live connection; all open and
// close traffic goes through the Manager so re-opening never leaks a
// prior socket.
package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"milestone-client/internal/session"
)

// Channel identifies one logical websocket stream.
type Channel string

const (
	ChannelRoleNotifications Channel = "role-notifications"
	ChannelOrderStatus       Channel = "order-status"
	ChannelCommentNotice     Channel = "comment-notice"
	ChannelOffline           Channel = "offline"
	ChannelChat              Channel = "chat"
)

var channelPaths = map[Channel]string{
	ChannelRoleNotifications: "/ws/chat/notifications",
	ChannelOrderStatus:       "/ws/order-status",
	ChannelCommentNotice:     "/ws/comment-notice",
	ChannelOffline:           "/ws/offline",
	ChannelChat:              "/ws/chat",
}

var (
	ErrUnknownChannel = errors.New("unknown channel")
	ErrNotLoggedIn    = errors.New("viewer is not logged in")
	ErrAgentOnly      = errors.New("channel requires the agent role")
)

// MessageHandler receives raw inbound frames in network-arrival order.
type MessageHandler func(frame []byte)

type conn struct {
	ws     *websocket.Conn
	closed atomic.Bool
}

// Manager supervises one connection per channel. Connection errors are
// reported and the channel is left closed; reconnecting is the
// caller's decision.
type Manager struct {
	baseURL string
	sess    *session.Session
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[Channel]*conn
}

// NewManager wires the manager to the session: a logout transition
// closes every open channel.
func NewManager(baseURL string, sess *session.Session, jar http.CookieJar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		baseURL: strings.TrimRight(baseURL, "/"),
		sess:    sess,
		dialer:  &websocket.Dialer{Jar: jar},
		logger:  logger,
		conns:   make(map[Channel]*conn),
	}
	sess.Subscribe(func(st session.State) {
		if !st.LoggedIn {
			m.CloseAll()
		}
	})
	return m
}

// Open dials the channel and starts delivering frames to onMessage.
// It is idempotent: a live handle on the same channel is left alone.
// Role-restricted channels refuse viewers without the agent role.
func (m *Manager) Open(ch Channel, onMessage MessageHandler) error {
	path, ok := channelPaths[ch]
	if !ok {
		return ErrUnknownChannel
	}

	st := m.sess.State()
	if !st.LoggedIn {
		return ErrNotLoggedIn
	}
	if ch == ChannelRoleNotifications && !st.Admin {
		return ErrAgentOnly
	}

	m.mu.Lock()
	if _, live := m.conns[ch]; live {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	wsConn, _, err := m.dialer.Dial(m.baseURL+path, nil)
	if err != nil {
		m.logger.Error("channel dial failed", "channel", ch, "err", err)
		return err
	}

	c := &conn{ws: wsConn}

	m.mu.Lock()
	if _, live := m.conns[ch]; live {
		// Lost the race against a concurrent Open; keep the first socket.
		m.mu.Unlock()
		wsConn.Close()
		return nil
	}
	m.conns[ch] = c
	m.mu.Unlock()

	m.logger.Info("channel open", "channel", ch)
	go m.readLoop(ch, c, onMessage)
	return nil
}

// readLoop pumps frames from the socket to the handler, one goroutine
// per connection. Frames on a single channel are delivered in arrival
// order because this is the only reader.
func (m *Manager) readLoop(ch Channel, c *conn, onMessage MessageHandler) {
	defer m.drop(ch, c)
	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Error("channel read error", "channel", ch, "err", err)
			}
			return
		}
		if c.closed.Load() {
			return
		}
		onMessage(frame)
	}
}

// Close tears down the channel's connection. Closing an absent or
// already-closed channel is a no-op. No frames are delivered after
// Close returns observable effect on the handle.
func (m *Manager) Close(ch Channel) {
	m.mu.Lock()
	c, ok := m.conns[ch]
	if ok {
		delete(m.conns, ch)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	c.closed.Store(true)
	c.ws.Close()
	m.logger.Info("channel closed", "channel", ch)
}

// CloseAll closes every open channel, used on logout.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[Channel]*conn)
	m.mu.Unlock()

	for ch, c := range conns {
		c.closed.Store(true)
		c.ws.Close()
		m.logger.Info("channel closed", "channel", ch)
	}
}

// IsOpen reports whether the channel currently holds a live handle.
func (m *Manager) IsOpen(ch Channel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[ch]
	return ok
}

// drop clears the handle after the read loop exits, unless Close
// already swapped it out.
func (m *Manager) drop(ch Channel, c *conn) {
	m.mu.Lock()
	if cur, ok := m.conns[ch]; ok && cur == c {
		delete(m.conns, ch)
	}
	m.mu.Unlock()
	c.ws.Close()
}
