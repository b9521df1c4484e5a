package session

import (
	"context"
	"sync"

	"milestone-client/internal/api"
)

const adminStatus = "ADMIN"

// State is a snapshot of the viewer's session.
type State struct {
	LoggedIn bool
	Admin    bool
	Email    string
}

// Listener observes login-state transitions.
type Listener func(State)

// Session holds the shared auth state that drives channel lifecycle.
// The connection manager subscribes to it instead of reading ambient
// globals: on logout every listener fires before state is observable
// elsewhere, so sockets are torn down first.
type Session struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

func New() *Session {
	return &Session{listeners: make(map[int]Listener)}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a listener, fires it with the current state, and
// returns an unsubscribe func. Unsubscribing twice is a no-op.
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	st := s.state
	s.mu.Unlock()

	fn(st)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) set(st State) {
	s.mu.Lock()
	s.state = st
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Bootstrap probes GET /api/members/status and adopts the result. A
// failed probe clears the session, matching the expired-cookie path in
// the original client.
func (s *Session) Bootstrap(ctx context.Context, client *api.Client) error {
	status, err := client.Status(ctx)
	if err != nil {
		s.set(State{})
		return err
	}
	s.set(State{
		LoggedIn: true,
		Admin:    status.MemberStatus == adminStatus,
		Email:    status.UserEmail,
	})
	return nil
}

// Login authenticates and bootstraps in one step.
func (s *Session) Login(ctx context.Context, client *api.Client, email, password string) error {
	if err := client.Login(ctx, email, password); err != nil {
		return err
	}
	return s.Bootstrap(ctx, client)
}

// Logout clears local state first so subscribers close their channels,
// then tells the server. The server call failing does not resurrect
// the local session.
func (s *Session) Logout(ctx context.Context, client *api.Client) error {
	s.set(State{})
	return client.Logout(ctx)
}
