package api

// StatusResponse is the session probe returned by GET /api/members/status.
type StatusResponse struct {
	MemberStatus string `json:"memberStatus"`
	UserEmail    string `json:"userEmail"`
}

// Room is one support conversation as listed by the room endpoints.
// The admin listing carries the requester email, the user listing the
// creation timestamp; both share the same shape on the wire.
type Room struct {
	RoomID    int64  `json:"roomId"`
	UserEmail string `json:"userEmail,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// ChatMessage is a persisted chat message. The send endpoint echoes it
// back and the chat channel pushes the same shape.
type ChatMessage struct {
	RoomID      int64  `json:"roomId,omitempty"`
	SenderEmail string `json:"senderEmail"`
	Content     string `json:"content"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}
