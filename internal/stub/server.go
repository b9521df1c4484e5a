// Package stub is an in-memory backend implementing the REST and
// websocket contract the client consumes. Integration tests run it
// under httptest; cmd/stubd serves it standalone for local dev. It is
// not a production chat server.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"milestone-client/internal/route"
	"milestone-client/internal/ws"
)

type contextKey string

const (
	emailKey contextKey = "email"
	roleKey  contextKey = "role"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the stores, the push hub, and the HTTP surface.
type Server struct {
	members *MemberStore
	rooms   *RoomStore
	hub     *Hub
	secret  []byte
	logger  *slog.Logger
	router  chi.Router
}

func NewServer(secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		members: NewMemberStore(),
		rooms:   NewRoomStore(),
		hub:     NewHub(logger),
		secret:  []byte(secret),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Members exposes the member store so callers can seed accounts.
func (s *Server) Members() *MemberStore { return s.members }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public
	r.Post("/api/members/register", s.handleRegister)
	r.Post("/api/members/login", s.handleLogin)

	// Session required
	r.Group(func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/api/members/status", s.handleStatus)
		r.Post("/api/members/logout", s.handleLogout)

		r.Post("/api/chat/request", s.handleChatRequest)
		r.Delete("/api/chat/request/cancel/{roomID}", s.handleCancelRequest)
		r.Patch("/api/chat/request/{roomID}/accept", s.handleAcceptRequest)
		r.Patch("/api/chat/end/{roomID}", s.handleEndChat)
		r.Delete("/api/chat/{roomID}", s.handleDeleteRoom)
		r.Get("/api/chat/admin/rooms", s.handleAdminRooms)
		r.Get("/api/chat/user/rooms", s.handleUserRooms)

		r.Post("/api/message/{roomID}/send", s.handleSendMessage)
		r.Get("/api/message/{roomID}/history", s.handleHistory)

		r.Post("/api/admin/push/order-status", s.handlePushOrderStatus)
		r.Post("/api/admin/push/comment-notice", s.handlePushCommentNotice)

		r.Get("/ws/chat/notifications", s.serveChannel(ws.ChannelRoleNotifications))
		r.Get("/ws/order-status", s.serveChannel(ws.ChannelOrderStatus))
		r.Get("/ws/comment-notice", s.serveChannel(ws.ChannelCommentNotice))
		r.Get("/ws/offline", s.serveChannel(ws.ChannelOffline))
		r.Get("/ws/chat", s.serveChannel(ws.ChannelChat))
	})

	s.router = r
}

// withSession validates the SESSIONID cookie and injects the member
// identity into the request context.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Error(w, "missing session", http.StatusUnauthorized)
			return
		}
		email, role, err := parseSession(s.secret, cookie.Value)
		if err != nil {
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), emailKey, email)
		ctx = context.WithValue(ctx, roleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(r *http.Request) (email, role string) {
	email, _ = r.Context().Value(emailKey).(string)
	role, _ = r.Context().Value(roleKey).(string)
	return email, role
}

func roomIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = RoleUser
	}
	if err := s.members.Register(req.Email, req.Password, req.Role); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, err := s.members.Authenticate(req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	value, err := mintSession(s.secret, m.Email, m.Role)
	if err != nil {
		http.Error(w, "session error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, sessionCookieFor(value))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	email, role := identity(r)
	writeJSON(w, map[string]string{"memberStatus": role, "userEmail": email})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, expiredSessionCookie())
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleChatRequest(w http.ResponseWriter, r *http.Request) {
	email, _ := identity(r)
	room, err := s.rooms.CreateRequest(email)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	// Tell every connected agent a request is waiting.
	frame, _ := json.Marshal(map[string]string{
		"message": fmt.Sprintf("%s sent a %s", email, route.MarkerConsultationRequest),
	})
	s.hub.broadcast(ws.ChannelRoleNotifications, frame)

	s.logger.Info("consultation requested", "room", room.ID, "member", email)
	writeJSON(w, room.ID)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	email, _ := identity(r)
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	if err := s.rooms.Cancel(id, email); err != nil {
		s.writeRoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	agent, role := identity(r)
	if role != RoleAdmin {
		http.Error(w, "agent role required", http.StatusForbidden)
		return
	}
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	room, err := s.rooms.Accept(id, agent)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}

	// The requester learns about the accept on the chat channel; the
	// broadcast channel carries the human-readable variant.
	accepted, _ := json.Marshal(map[string]any{
		"message": route.MarkerRequestAccepted,
		"roomId":  room.ID,
	})
	s.hub.sendTo(ws.ChannelChat, room.UserEmail, accepted)

	started, _ := json.Marshal(map[string]any{
		"message": fmt.Sprintf("%s %s", agent, route.MarkerConsultationStarted),
		"roomId":  room.ID,
	})
	s.hub.broadcast(ws.ChannelRoleNotifications, started)

	s.logger.Info("consultation accepted", "room", room.ID, "agent", agent)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleEndChat(w http.ResponseWriter, r *http.Request) {
	_, role := identity(r)
	if role != RoleAdmin {
		http.Error(w, "agent role required", http.StatusForbidden)
		return
	}
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	room, err := s.rooms.End(id)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}

	ended, _ := json.Marshal(map[string]string{"message": route.MarkerChatEnded})
	s.hub.sendTo(ws.ChannelChat, room.UserEmail, ended)

	s.logger.Info("consultation ended", "room", room.ID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	if err := s.rooms.Delete(id); err != nil {
		s.writeRoomError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAdminRooms(w http.ResponseWriter, r *http.Request) {
	_, role := identity(r)
	if role != RoleAdmin {
		http.Error(w, "agent role required", http.StatusForbidden)
		return
	}
	writeJSON(w, s.rooms.ListAll())
}

func (s *Server) handleUserRooms(w http.ResponseWriter, r *http.Request) {
	email, _ := identity(r)
	writeJSON(w, s.rooms.ListByEmail(email))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	email, _ := identity(r)
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := s.rooms.Append(id, email, req.Content)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}

	// Push the message to both ends of the room; the sender accepts a
	// possible duplicate against its own REST echo.
	room, err := s.rooms.Get(id)
	if err == nil {
		frame, _ := json.Marshal(msg)
		s.hub.sendTo(ws.ChannelChat, room.UserEmail, frame)
		if room.AgentEmail != "" && room.AgentEmail != room.UserEmail {
			s.hub.sendTo(ws.ChannelChat, room.AgentEmail, frame)
		}
	}

	writeJSON(w, msg)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := roomIDParam(r)
	if err != nil {
		http.Error(w, "bad room id", http.StatusBadRequest)
		return
	}
	history, err := s.rooms.History(id)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, history)
}

type pushRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (s *Server) handlePushOrderStatus(w http.ResponseWriter, r *http.Request) {
	_, role := identity(r)
	if role != RoleAdmin {
		http.Error(w, "agent role required", http.StatusForbidden)
		return
	}
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.PushOrderStatus(req.Email, req.Message)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePushCommentNotice(w http.ResponseWriter, r *http.Request) {
	_, role := identity(r)
	if role != RoleAdmin {
		http.Error(w, "agent role required", http.StatusForbidden)
		return
	}
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.PushCommentNotice(req.Email, req.Message)
	w.WriteHeader(http.StatusOK)
}

// PushOrderStatus delivers a raw-text order notice to the member, or
// queues it for the offline channel when no socket is live.
func (s *Server) PushOrderStatus(email, text string) {
	if !s.hub.sendTo(ws.ChannelOrderStatus, email, []byte(text)) {
		s.hub.queueOffline(email, text)
	}
}

// PushCommentNotice delivers a raw-text reply notice to the member,
// or queues it for the offline channel.
func (s *Server) PushCommentNotice(email, text string) {
	if !s.hub.sendTo(ws.ChannelCommentNotice, email, []byte(text)) {
		s.hub.queueOffline(email, text)
	}
}

// serveChannel upgrades the request and attaches the socket to the
// hub under the member's identity.
func (s *Server) serveChannel(ch ws.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, role := identity(r)
		if ch == ws.ChannelRoleNotifications && role != RoleAdmin {
			http.Error(w, "agent role required", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("upgrade failed", "channel", ch, "err", err)
			return
		}

		c := s.hub.attach(ch, email, conn)
		if ch == ws.ChannelOffline {
			s.hub.flushOffline(email, c)
		}
	}
}

func (s *Server) writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrRoomInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrAlreadyRequested):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotRoomOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrRoomNotRequestable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
