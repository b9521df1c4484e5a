package route

import "milestone-client/internal/api"

// Kind is the semantic class of an inbound frame.
type Kind int

const (
	// KindNotice is a badge-worthy text for the notification list.
	KindNotice Kind = iota
	// KindRoomListChanged asks the room list to be re-fetched.
	KindRoomListChanged
	// KindChatAssigned means an agent took the consultation.
	KindChatAssigned
	// KindChatEnded means the agent closed the conversation.
	KindChatEnded
	// KindOrderStatusChanged reports an order moving state.
	KindOrderStatusChanged
	// KindNewReply reports a reply on the viewer's community post.
	KindNewReply
	// KindMessage is a chat message for the active transcript.
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindNotice:
		return "notice"
	case KindRoomListChanged:
		return "room-list-changed"
	case KindChatAssigned:
		return "chat-assigned"
	case KindChatEnded:
		return "chat-ended"
	case KindOrderStatusChanged:
		return "order-status-changed"
	case KindNewReply:
		return "new-reply"
	case KindMessage:
		return "message"
	}
	return "unknown"
}

// Event is one classified frame. Only the fields relevant to the Kind
// are set: RoomID for chat lifecycle, Text for notices, Message for
// transcript entries.
type Event struct {
	Kind    Kind
	RoomID  int64
	Text    string
	Message api.ChatMessage
}
