// Package route classifies inbound channel frames into semantic
// events. The upstream protocol overloads plain text and JSON on the
// same sockets, so classification is a declarative table of
// {channel, predicate} rules evaluated top-down; the first match wins
// and frames matching nothing are dropped.
package route

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"milestone-client/internal/api"
	"milestone-client/internal/ws"
)

type rule struct {
	channel ws.Channel
	match   func(frame []byte) bool
	emit    func(frame []byte) []Event
}

var rules = []rule{
	// Agent broadcast channel: JSON payloads with a "message" phrase.
	{ws.ChannelRoleNotifications, jsonMessageContains(MarkerConsultationStarted), func(frame []byte) []Event {
		return []Event{
			{Kind: KindChatAssigned, RoomID: gjson.GetBytes(frame, "roomId").Int()},
			{Kind: KindNotice, Text: gjson.GetBytes(frame, "message").String()},
		}
	}},
	{ws.ChannelRoleNotifications, jsonMessageContains(MarkerConsultationRequest), func(frame []byte) []Event {
		return []Event{
			{Kind: KindRoomListChanged},
			{Kind: KindNotice, Text: gjson.GetBytes(frame, "message").String()},
		}
	}},
	{ws.ChannelRoleNotifications, hasJSONMessage, func(frame []byte) []Event {
		return []Event{{Kind: KindNotice, Text: gjson.GetBytes(frame, "message").String()}}
	}},

	// Order and reply channels carry raw text.
	{ws.ChannelOrderStatus, textContains(MarkerOrderStatus), func(frame []byte) []Event {
		return []Event{
			{Kind: KindOrderStatusChanged, Text: string(frame)},
			{Kind: KindNotice, Text: string(frame)},
		}
	}},
	{ws.ChannelCommentNotice, textContains(MarkerNewReply), func(frame []byte) []Event {
		return []Event{
			{Kind: KindNewReply, Text: string(frame)},
			{Kind: KindNotice, Text: string(frame)},
		}
	}},

	// Offline channel: notices queued while the live channels were
	// down, delivered as either {"message": …} or a JSON string.
	{ws.ChannelOffline, hasJSONMessage, func(frame []byte) []Event {
		return []Event{{Kind: KindNotice, Text: gjson.GetBytes(frame, "message").String()}}
	}},
	{ws.ChannelOffline, isJSONString, func(frame []byte) []Event {
		return []Event{{Kind: KindNotice, Text: gjson.ParseBytes(frame).String()}}
	}},

	// Chat channel: two exact lifecycle markers, everything else is a
	// transcript message. The markers never reach the transcript.
	{ws.ChannelChat, jsonMessageEquals(MarkerRequestAccepted), func(frame []byte) []Event {
		return []Event{{Kind: KindChatAssigned, RoomID: gjson.GetBytes(frame, "roomId").Int()}}
	}},
	{ws.ChannelChat, jsonMessageEquals(MarkerChatEnded), func(frame []byte) []Event {
		return []Event{{Kind: KindChatEnded}}
	}},
	{ws.ChannelChat, isJSONObject, func(frame []byte) []Event {
		var msg api.ChatMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			return nil
		}
		return []Event{{Kind: KindMessage, Message: msg}}
	}},
}

// Classify maps one raw frame to zero or more semantic events.
// Malformed frames matching no rule are dropped silently; lossy
// parsing is the accepted policy on these channels.
func Classify(ch ws.Channel, frame []byte) []Event {
	for _, r := range rules {
		if r.channel == ch && r.match(frame) {
			return r.emit(frame)
		}
	}
	return nil
}

func hasJSONMessage(frame []byte) bool {
	return gjson.ValidBytes(frame) && gjson.GetBytes(frame, "message").Exists()
}

func jsonMessageContains(marker string) func([]byte) bool {
	return func(frame []byte) bool {
		return hasJSONMessage(frame) && strings.Contains(gjson.GetBytes(frame, "message").String(), marker)
	}
}

func jsonMessageEquals(marker string) func([]byte) bool {
	return func(frame []byte) bool {
		return hasJSONMessage(frame) && gjson.GetBytes(frame, "message").String() == marker
	}
}

func textContains(marker string) func([]byte) bool {
	return func(frame []byte) bool {
		return strings.Contains(string(frame), marker)
	}
}

func isJSONString(frame []byte) bool {
	return gjson.ValidBytes(frame) && gjson.ParseBytes(frame).Type == gjson.String
}

func isJSONObject(frame []byte) bool {
	return gjson.ValidBytes(frame) && gjson.ParseBytes(frame).IsObject()
}
