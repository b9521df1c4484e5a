package stub

import (
	"errors"
	"sort"
	"sync"
	"time"

	"milestone-client/internal/api"
)

type RoomStatus string

const (
	RoomRequested RoomStatus = "requested"
	RoomActive    RoomStatus = "active"
	RoomEnded     RoomStatus = "ended"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomInactive       = errors.New("chat room is inactive")
	ErrAlreadyRequested   = errors.New("a consultation is already in progress")
	ErrNotRoomOwner       = errors.New("room belongs to another member")
	ErrRoomNotRequestable = errors.New("room is not awaiting an agent")
)

type Room struct {
	ID         int64
	UserEmail  string
	AgentEmail string
	Status     RoomStatus
	CreatedAt  time.Time
}

// RoomStore holds rooms and their transcripts in memory.
type RoomStore struct {
	mu       sync.Mutex
	rooms    map[int64]*Room
	messages map[int64][]api.ChatMessage
	nextID   int64
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:    make(map[int64]*Room),
		messages: make(map[int64][]api.ChatMessage),
	}
}

// CreateRequest opens a requested room for the member. A member holds
// at most one room that is not ended.
func (s *RoomStore) CreateRequest(email string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.UserEmail == email && r.Status != RoomEnded {
			return nil, ErrAlreadyRequested
		}
	}

	s.nextID++
	room := &Room{
		ID:        s.nextID,
		UserEmail: email,
		Status:    RoomRequested,
		CreatedAt: time.Now(),
	}
	s.rooms[room.ID] = room
	return room, nil
}

// Cancel withdraws a pending request. Only the requester may cancel,
// and only while no agent has taken the room.
func (s *RoomStore) Cancel(id int64, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if room.UserEmail != email {
		return ErrNotRoomOwner
	}
	if room.Status != RoomRequested {
		return ErrRoomNotRequestable
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return nil
}

// Accept assigns the agent and activates the room.
func (s *RoomStore) Accept(id int64, agentEmail string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Status != RoomRequested {
		return nil, ErrRoomNotRequestable
	}
	room.Status = RoomActive
	room.AgentEmail = agentEmail
	snapshot := *room
	return &snapshot, nil
}

// End deactivates an active room, keeping it listed.
func (s *RoomStore) End(id int64) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room.Status = RoomEnded
	snapshot := *room
	return &snapshot, nil
}

// Delete removes the room and its transcript regardless of status.
func (s *RoomStore) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return ErrRoomNotFound
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return nil
}

// Get returns a copy of the room.
func (s *RoomStore) Get(id int64) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	snapshot := *room
	return &snapshot, nil
}

// Append persists a message on an active room and returns the echo.
func (s *RoomStore) Append(id int64, sender, content string) (api.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return api.ChatMessage{}, ErrRoomNotFound
	}
	if room.Status != RoomActive {
		return api.ChatMessage{}, ErrRoomInactive
	}
	msg := api.ChatMessage{RoomID: id, SenderEmail: sender, Content: content}
	s.messages[id] = append(s.messages[id], msg)
	return msg, nil
}

// History returns the room's messages in append order.
func (s *RoomStore) History(id int64) ([]api.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return nil, ErrRoomNotFound
	}
	out := make([]api.ChatMessage, len(s.messages[id]))
	copy(out, s.messages[id])
	return out, nil
}

// ListAll returns every room ordered by id, the agent view.
func (s *RoomStore) ListAll() []api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, api.Room{
			RoomID:    r.ID,
			UserEmail: r.UserEmail,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// ListByEmail returns the member's own rooms ordered by id.
func (s *RoomStore) ListByEmail(email string) []api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.Room, 0)
	for _, r := range s.rooms {
		if r.UserEmail == email {
			out = append(out, api.Room{
				RoomID:    r.ID,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
