package route

// Server-chosen phrases used to classify hybrid text/JSON frames. The
// upstream protocol has no type tags, so classification matches on
// payload content. Keeping every phrase here means a wording change on
// the server is a one-line edit.
const (
	// Substring markers.
	MarkerConsultationRequest = "consultation request"
	MarkerConsultationStarted = "is now handling your consultation"
	MarkerOrderStatus         = "order status"
	MarkerNewReply            = "new reply"

	// Exact-match markers on the chat channel. These never reach the
	// transcript; they drive the room lifecycle instead.
	MarkerRequestAccepted = "The agent has accepted your consultation request"
	MarkerChatEnded       = "The agent has ended the chat"
)
