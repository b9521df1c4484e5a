package route

import (
	"log/slog"

	"milestone-client/internal/notify"
	"milestone-client/internal/ws"
)

// ChatSink receives chat-lifecycle and transcript events. The chat
// session state machine implements it.
type ChatSink interface {
	HandleEvent(Event)
	RefreshRooms()
}

// Dispatcher binds classified events to their consumers: notices go to
// the aggregator, chat lifecycle to the chat sink.
type Dispatcher struct {
	notices *notify.Center
	chat    ChatSink
	logger  *slog.Logger

	// Optional observers for the non-chat semantic events.
	OnOrderStatus func(text string)
	OnNewReply    func(text string)
}

func NewDispatcher(notices *notify.Center, chat ChatSink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{notices: notices, chat: chat, logger: logger}
}

// Handler returns the frame callback for one channel, suitable for
// ws.Manager.Open.
func (d *Dispatcher) Handler(ch ws.Channel) ws.MessageHandler {
	return func(frame []byte) {
		for _, ev := range Classify(ch, frame) {
			d.dispatch(ev)
		}
	}
}

func (d *Dispatcher) dispatch(ev Event) {
	switch ev.Kind {
	case KindNotice:
		d.notices.Push(ev.Text)
	case KindRoomListChanged:
		if d.chat != nil {
			d.chat.RefreshRooms()
		}
	case KindChatAssigned, KindChatEnded, KindMessage:
		if d.chat != nil {
			d.chat.HandleEvent(ev)
		}
	case KindOrderStatusChanged:
		d.logger.Info("order status changed", "text", ev.Text)
		if d.OnOrderStatus != nil {
			d.OnOrderStatus(ev.Text)
		}
	case KindNewReply:
		d.logger.Info("new reply", "text", ev.Text)
		if d.OnNewReply != nil {
			d.OnNewReply(ev.Text)
		}
	}
}
