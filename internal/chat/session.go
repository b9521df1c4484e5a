// Package chat owns the lifecycle of the viewer's support
// conversation: Idle until a consultation is requested, Requesting
// until an agent takes it, Active until someone ends it. Agents drive
// the same machine from the other side through the room list.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"milestone-client/internal/api"
	"milestone-client/internal/route"
	"milestone-client/internal/session"
	"milestone-client/internal/ws"
)

// State is the client-side lifecycle of the support conversation.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	}
	return "unknown"
}

var (
	// ErrConsultationPending rejects a second request while one is
	// outstanding; the client holds at most one.
	ErrConsultationPending = errors.New("a consultation is already in progress")
	// ErrNoActiveRoom rejects sends outside an active conversation.
	ErrNoActiveRoom = errors.New("no active chat room")
	// ErrRoomInactive is the server rejecting a send because the room
	// is no longer active.
	ErrRoomInactive = errors.New("chat room inactive")
	// ErrNotRequesting rejects a cancel with nothing to cancel.
	ErrNotRequesting = errors.New("no consultation request to cancel")
)

// Snapshot is the state the UI layer renders from.
type Snapshot struct {
	State      State
	RoomID     int64
	Transcript []api.ChatMessage
	Rooms      []api.Room
}

// Session mediates the chat lifecycle between the REST control plane
// and the push channel. All REST calls surface their failure to the
// caller and leave state unchanged; there is no retry.
type Session struct {
	api    *api.Client
	mgr    *ws.Manager
	auth   *session.Session
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	roomID     int64
	transcript []api.ChatMessage
	rooms      []api.Room
	onChange   func(Snapshot)
}

func NewSession(client *api.Client, mgr *ws.Manager, auth *session.Session, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{api: client, mgr: mgr, auth: auth, logger: logger}
}

// SetOnChange installs a hook fired after every observable mutation.
func (s *Session) SetOnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state, RoomID: s.roomID}
	snap.Transcript = make([]api.ChatMessage, len(s.transcript))
	copy(snap.Transcript, s.transcript)
	snap.Rooms = make([]api.Room, len(s.rooms))
	copy(snap.Rooms, s.rooms)
	return snap
}

func (s *Session) notifyChange() {
	s.mu.Lock()
	fn := s.onChange
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// handleFrame classifies chat-channel frames and feeds them back into
// the machine. It is the callback handed to the connection manager.
func (s *Session) handleFrame(frame []byte) {
	for _, ev := range route.Classify(ws.ChannelChat, frame) {
		s.HandleEvent(ev)
	}
}

// openChatChannel is idempotent through the manager; a live socket is
// never duplicated.
func (s *Session) openChatChannel() {
	if err := s.mgr.Open(ws.ChannelChat, s.handleFrame); err != nil {
		s.logger.Error("chat channel open failed", "err", err)
	}
}

// Request applies for a consultation: Idle → Requesting. The returned
// room id is held until an agent accepts or the viewer cancels.
func (s *Session) Request(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return 0, ErrConsultationPending
	}
	s.mu.Unlock()

	roomID, err := s.api.RequestChat(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.state = StateRequesting
	s.roomID = roomID
	s.mu.Unlock()

	s.openChatChannel()
	s.notifyChange()
	return roomID, nil
}

// CancelRequest withdraws a pending consultation: Requesting → Idle.
// The room id is cleared so a late accept for it cannot resurrect an
// Active state.
func (s *Session) CancelRequest(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRequesting {
		s.mu.Unlock()
		return ErrNotRequesting
	}
	roomID := s.roomID
	s.mu.Unlock()

	if err := s.api.CancelRequest(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateRequesting && s.roomID == roomID {
		s.state = StateIdle
		s.roomID = 0
	}
	s.mu.Unlock()

	s.mgr.Close(ws.ChannelChat)
	s.notifyChange()
	return nil
}

// Accept takes a pending room from the agent side: the room becomes
// the active conversation with a fresh transcript.
func (s *Session) Accept(ctx context.Context, roomID int64) error {
	if err := s.api.AcceptRequest(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StateActive
	s.roomID = roomID
	s.transcript = nil
	s.mu.Unlock()

	s.openChatChannel()
	s.refreshRooms(ctx)
	s.notifyChange()
	return nil
}

// End closes the conversation: Active → Idle, chat channel closed.
func (s *Session) End(ctx context.Context, roomID int64) error {
	if err := s.api.EndChat(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.roomID == roomID {
		s.state = StateIdle
		s.roomID = 0
	}
	s.mu.Unlock()

	s.mgr.Close(ws.ChannelChat)
	s.refreshRooms(ctx)
	s.notifyChange()
	return nil
}

// Delete removes a room regardless of its status and drops it from
// the list; the selection is cleared when it pointed at the room.
func (s *Session) Delete(ctx context.Context, roomID int64) error {
	if err := s.api.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	selected := s.roomID == roomID
	if selected {
		s.state = StateIdle
		s.roomID = 0
		s.transcript = nil
	}
	s.mu.Unlock()

	if selected {
		s.mgr.Close(ws.ChannelChat)
	}
	s.refreshRooms(ctx)
	s.notifyChange()
	return nil
}

// Send posts a message to the active room. The echoed message is
// appended optimistically; the push channel may deliver the same
// message again and no dedup is attempted.
func (s *Session) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.state != StateActive || s.roomID == 0 {
		s.mu.Unlock()
		return ErrNoActiveRoom
	}
	roomID := s.roomID
	s.mu.Unlock()

	echo, err := s.api.SendMessage(ctx, roomID, content)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return ErrRoomInactive
		}
		return err
	}

	s.mu.Lock()
	if s.roomID == roomID {
		s.transcript = append(s.transcript, *echo)
	}
	s.mu.Unlock()

	s.notifyChange()
	return nil
}

// SelectRoom picks a room from the list, resets the transcript, and
// loads its history. A failed history fetch leaves the room selected
// with an empty transcript.
func (s *Session) SelectRoom(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	s.state = StateActive
	s.roomID = roomID
	s.transcript = nil
	s.mu.Unlock()

	s.openChatChannel()

	history, err := s.api.History(ctx, roomID)
	if err != nil {
		s.logger.Error("history fetch failed", "room", roomID, "err", err)
		s.notifyChange()
		return err
	}

	s.mu.Lock()
	if s.roomID == roomID {
		s.transcript = history
	}
	s.mu.Unlock()

	s.notifyChange()
	return nil
}

// HandleEvent applies a push event from the chat or notification
// channels. Events for rooms the client no longer holds are ignored.
func (s *Session) HandleEvent(ev route.Event) {
	switch ev.Kind {
	case route.KindChatAssigned:
		s.mu.Lock()
		if s.state != StateRequesting {
			// A cancelled request's accept must not resurrect the room.
			s.mu.Unlock()
			return
		}
		if ev.RoomID != 0 {
			s.roomID = ev.RoomID
		}
		s.state = StateActive
		s.transcript = nil
		s.mu.Unlock()
		s.notifyChange()

	case route.KindChatEnded:
		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			return
		}
		s.state = StateIdle
		s.roomID = 0
		s.transcript = nil
		s.mu.Unlock()
		s.mgr.Close(ws.ChannelChat)
		s.RefreshRooms()
		s.notifyChange()

	case route.KindMessage:
		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			return
		}
		s.transcript = append(s.transcript, ev.Message)
		s.mu.Unlock()
		s.notifyChange()
	}
}

// RefreshRooms re-fetches the room list for the viewer's role.
func (s *Session) RefreshRooms() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.refreshRooms(ctx)
	s.notifyChange()
}

func (s *Session) refreshRooms(ctx context.Context) {
	var (
		rooms []api.Room
		err   error
	)
	if s.auth.State().Admin {
		rooms, err = s.api.AdminRooms(ctx)
	} else {
		rooms, err = s.api.UserRooms(ctx)
	}
	if err != nil {
		s.logger.Error("room list fetch failed", "err", err)
		return
	}

	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()
}
