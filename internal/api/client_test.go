package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"milestone-client/internal/api"
	"milestone-client/internal/stub"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := stub.NewServer("test-secret", logger)
	require.NoError(t, server.Members().Register("user@example.com", "secret", stub.RoleUser))
	require.NoError(t, server.Members().Register("agent@example.com", "secret", stub.RoleAdmin))

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestLoginEstablishesSession(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)

	require.NoError(t, client.Login(ctx, "user@example.com", "secret"))

	status, err := client.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "USER", status.MemberStatus)
	require.Equal(t, "user@example.com", status.UserEmail)
}

func TestStatusWithoutSessionFails(t *testing.T) {
	ts := newBackend(t)

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)

	_, err = client.Status(context.Background())
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.StatusCode)
}

func TestServerMessageSurfacesInError(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)
	require.NoError(t, client.Login(ctx, "user@example.com", "secret"))

	_, err = client.RequestChat(ctx)
	require.NoError(t, err)

	// Second outstanding request is rejected with the server's text.
	_, err = client.RequestChat(ctx)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 409, apiErr.StatusCode)
	require.Equal(t, "a consultation is already in progress", apiErr.Message)
	require.Equal(t, "a consultation is already in progress", apiErr.Error())
}

func TestHistoryUnknownRoom(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)
	require.NoError(t, client.Login(ctx, "user@example.com", "secret"))

	_, err = client.History(ctx, 999)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 404, apiErr.StatusCode)
}

func TestRequestReturnsRoomID(t *testing.T) {
	ts := newBackend(t)
	ctx := context.Background()

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)
	require.NoError(t, client.Login(ctx, "user@example.com", "secret"))

	roomID, err := client.RequestChat(ctx)
	require.NoError(t, err)
	require.Positive(t, roomID)
}
