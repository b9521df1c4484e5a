package chat

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"milestone-client/internal/api"
	"milestone-client/internal/notify"
	"milestone-client/internal/route"
	"milestone-client/internal/session"
	"milestone-client/internal/stub"
	"milestone-client/internal/ws"
)

const (
	viewerEmail = "user@example.com"
	agentEmail  = "agent@example.com"
	password    = "secret"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	server := stub.NewServer("test-secret", discard)
	require.NoError(t, server.Members().Register(viewerEmail, password, stub.RoleUser))
	require.NoError(t, server.Members().Register(agentEmail, password, stub.RoleAdmin))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// participant bundles one logged-in client with its channel plumbing.
type participant struct {
	client *api.Client
	sess   *session.Session
	mgr    *ws.Manager
	chat   *Session
	center *notify.Center
	disp   *route.Dispatcher
}

func newParticipant(t *testing.T, ts *httptest.Server, email string) *participant {
	t.Helper()
	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)

	sess := session.New()
	require.NoError(t, sess.Login(context.Background(), client, email, password))

	wsBase := "ws" + strings.TrimPrefix(ts.URL, "http")
	mgr := ws.NewManager(wsBase, sess, client.Jar(), discard)
	chatSess := NewSession(client, mgr, sess, discard)
	center := notify.NewCenter()
	disp := route.NewDispatcher(center, chatSess, discard)

	t.Cleanup(mgr.CloseAll)
	return &participant{client: client, sess: sess, mgr: mgr, chat: chatSess, center: center, disp: disp}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// TestConsultationLifecycle walks the full request → accept → message
// → end loop with a viewer and an agent on the same backend.
func TestConsultationLifecycle(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	viewer := newParticipant(t, ts, viewerEmail)
	agent := newParticipant(t, ts, agentEmail)

	// The agent listens on the broadcast channel; an incoming request
	// lands as a notification and refreshes the room list.
	require.NoError(t, agent.mgr.Open(ws.ChannelRoleNotifications,
		agent.disp.Handler(ws.ChannelRoleNotifications)))

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.Positive(t, roomID)
	require.Equal(t, StateRequesting, viewer.chat.Snapshot().State)

	waitFor(t, func() bool { return agent.center.HasNew() }, "request notification")
	waitFor(t, func() bool {
		for _, room := range agent.chat.Snapshot().Rooms {
			if room.RoomID == roomID {
				return true
			}
		}
		return false
	}, "room in agent list")

	require.NoError(t, agent.chat.Accept(ctx, roomID))
	require.Equal(t, StateActive, agent.chat.Snapshot().State)

	// The accept marker flips the viewer Active with a fresh transcript.
	waitFor(t, func() bool { return viewer.chat.Snapshot().State == StateActive }, "viewer active")
	require.Empty(t, viewer.chat.Snapshot().Transcript)

	require.NoError(t, agent.chat.Send(ctx, "hello"))
	waitFor(t, func() bool { return len(viewer.chat.Snapshot().Transcript) == 1 }, "pushed message")

	got := viewer.chat.Snapshot().Transcript[0]
	require.Equal(t, "hello", got.Content)
	require.Equal(t, agentEmail, got.SenderEmail)

	require.NoError(t, agent.chat.End(ctx, roomID))
	waitFor(t, func() bool { return viewer.chat.Snapshot().State == StateIdle }, "viewer idle")
	waitFor(t, func() bool { return !viewer.mgr.IsOpen(ws.ChannelChat) }, "chat channel closed")
}

func TestRequestCancelRequestCycle(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	viewer := newParticipant(t, ts, viewerEmail)

	first, err := viewer.chat.Request(ctx)
	require.NoError(t, err)

	// A second request while one is pending is refused locally.
	_, err = viewer.chat.Request(ctx)
	require.ErrorIs(t, err, ErrConsultationPending)

	require.NoError(t, viewer.chat.CancelRequest(ctx))
	snap := viewer.chat.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Zero(t, snap.RoomID, "cancel must clear the room id")

	second, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Cancelling with nothing pending afterwards.
	require.NoError(t, viewer.chat.CancelRequest(ctx))
	require.ErrorIs(t, viewer.chat.CancelRequest(ctx), ErrNotRequesting)
}

func TestStaleAcceptDoesNotResurrectRoom(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()
	viewer := newParticipant(t, ts, viewerEmail)

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, viewer.chat.CancelRequest(ctx))

	// An accept for the cancelled room arrives late.
	viewer.chat.HandleEvent(route.Event{Kind: route.KindChatAssigned, RoomID: roomID})

	snap := viewer.chat.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Zero(t, snap.RoomID)
}

func TestMarkerFramesNeverEnterTranscript(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	viewer := newParticipant(t, ts, viewerEmail)
	agent := newParticipant(t, ts, agentEmail)

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.chat.Accept(ctx, roomID))
	waitFor(t, func() bool { return viewer.chat.Snapshot().State == StateActive }, "viewer active")

	// A duplicate accept marker while already active is ignored.
	viewer.chat.handleFrame([]byte(`{"message":"The agent has accepted your consultation request","roomId":99}`))
	snap := viewer.chat.Snapshot()
	require.Equal(t, roomID, snap.RoomID)
	require.Empty(t, snap.Transcript)

	// A regular payload lands in the transcript.
	viewer.chat.handleFrame([]byte(`{"senderEmail":"agent@example.com","content":"with you shortly"}`))
	snap = viewer.chat.Snapshot()
	require.Len(t, snap.Transcript, 1)
	require.Equal(t, "with you shortly", snap.Transcript[0].Content)

	// Neither marker text ever shows up as a message.
	for _, msg := range snap.Transcript {
		require.NotEqual(t, route.MarkerRequestAccepted, msg.Content)
		require.NotEqual(t, route.MarkerChatEnded, msg.Content)
	}
}

func TestSendOutsideActiveRoom(t *testing.T) {
	ts := newBackend(t)
	viewer := newParticipant(t, ts, viewerEmail)

	err := viewer.chat.Send(context.Background(), "anyone there?")
	require.ErrorIs(t, err, ErrNoActiveRoom)
}

func TestSendToEndedRoomReportsInactive(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	viewer := newParticipant(t, ts, viewerEmail)
	agent := newParticipant(t, ts, agentEmail)

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.chat.Accept(ctx, roomID))
	require.NoError(t, agent.chat.Send(ctx, "hello"))
	require.NoError(t, agent.chat.End(ctx, roomID))

	// Re-selecting the ended room loads its history but sends are
	// rejected by the server with the distinct inactive error.
	require.NoError(t, agent.chat.SelectRoom(ctx, roomID))
	snap := agent.chat.Snapshot()
	require.Len(t, snap.Transcript, 1)
	require.Equal(t, "hello", snap.Transcript[0].Content)

	err = agent.chat.Send(ctx, "still there?")
	require.ErrorIs(t, err, ErrRoomInactive)
	require.Equal(t, StateActive, agent.chat.Snapshot().State, "failed send must not change state")
}

func TestDeleteClearsSelection(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	viewer := newParticipant(t, ts, viewerEmail)
	agent := newParticipant(t, ts, agentEmail)

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.chat.Accept(ctx, roomID))
	require.NoError(t, agent.chat.End(ctx, roomID))

	require.NoError(t, agent.chat.SelectRoom(ctx, roomID))
	require.Equal(t, roomID, agent.chat.Snapshot().RoomID)

	require.NoError(t, agent.chat.Delete(ctx, roomID))
	snap := agent.chat.Snapshot()
	require.Zero(t, snap.RoomID)
	require.Equal(t, StateIdle, snap.State)
	for _, room := range snap.Rooms {
		require.NotEqual(t, roomID, room.RoomID)
	}
}

func TestDuplicateEchoAccepted(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	viewer := newParticipant(t, ts, viewerEmail)
	agent := newParticipant(t, ts, agentEmail)

	roomID, err := viewer.chat.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, agent.chat.Accept(ctx, roomID))
	waitFor(t, func() bool { return viewer.chat.Snapshot().State == StateActive }, "viewer active")

	// The sender appends the REST echo and may also receive its own
	// message over the push channel; no dedup is attempted.
	require.NoError(t, viewer.chat.Send(ctx, "ping"))
	waitFor(t, func() bool { return len(viewer.chat.Snapshot().Transcript) >= 1 }, "echo")
	for _, msg := range viewer.chat.Snapshot().Transcript {
		require.Equal(t, "ping", msg.Content)
	}
}
