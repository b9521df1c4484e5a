package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// Error is a REST failure carrying the server-provided message when the
// response body had one. The UI shows Message verbatim.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Client wraps the control-plane REST API. It keeps the session cookie
// in a jar so every call after Login is authenticated.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
	}, nil
}

// Jar exposes the cookie jar so the websocket dialer can present the
// same session cookie during the handshake.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register creates an account. Registering an email that already
// exists fails; callers re-running against a live backend may ignore
// the conflict.
func (c *Client) Register(ctx context.Context, email, password, role string) error {
	body := map[string]string{"email": email, "password": password, "role": role}
	return c.do(ctx, http.MethodPost, "/api/members/register", body, nil)
}

// Login establishes the session cookie.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/api/members/login", LoginRequest{Email: email, Password: password}, nil)
}

// Status probes the current session. A non-2xx means the session is
// gone and the caller should treat the viewer as logged out.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/members/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/members/logout", nil, nil)
}

// RequestChat asks for a consultation and returns the new room id.
func (c *Client) RequestChat(ctx context.Context) (int64, error) {
	var roomID int64
	if err := c.do(ctx, http.MethodPost, "/api/chat/request", nil, &roomID); err != nil {
		return 0, err
	}
	return roomID, nil
}

func (c *Client) CancelRequest(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chat/request/cancel/%d", roomID), nil, nil)
}

func (c *Client) AcceptRequest(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/chat/request/%d/accept", roomID), nil, nil)
}

func (c *Client) EndChat(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/chat/end/%d", roomID), nil, nil)
}

func (c *Client) DeleteRoom(ctx context.Context, roomID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chat/%d", roomID), nil, nil)
}

func (c *Client) AdminRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, "/api/chat/admin/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) UserRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	if err := c.do(ctx, http.MethodGet, "/api/chat/user/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// SendMessage posts a chat message and returns the persisted echo.
func (c *Client) SendMessage(ctx context.Context, roomID int64, content string) (*ChatMessage, error) {
	var msg ChatMessage
	path := fmt.Sprintf("/api/message/%d/send", roomID)
	if err := c.do(ctx, http.MethodPost, path, SendMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) History(ctx context.Context, roomID int64) ([]ChatMessage, error) {
	var msgs []ChatMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/message/%d/history", roomID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
