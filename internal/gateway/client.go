// Package gateway is the thin authenticated REST client for the backend's
// /api surface. It normalizes every failure into one APIError shape and
// shields callers from transport details.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"

	"vibez-client/internal/auth"
	"vibez-client/internal/models"
	"vibez-client/internal/observability"
)

// ChatAPI is the slice of the gateway the chat session manager consumes.
type ChatAPI interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	PrivateChat(ctx context.Context, username string) (models.Room, error)
	GroupChat(ctx context.Context, usernames []string, name string) (models.Room, error)
	Messages(ctx context.Context, roomID uuid.UUID, page, size int) ([]models.Message, error)
	PostMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) (models.Message, error)
	EditMessage(ctx context.Context, messageID uuid.UUID, content string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error)
}

// NotificationAPI is the slice the notification client consumes.
type NotificationAPI interface {
	Notifications(ctx context.Context) ([]models.Notification, error)
	UnreadNotificationCount(ctx context.Context) (int64, error)
	MarkAllNotificationsRead(ctx context.Context) error
	MarkNotificationRead(ctx context.Context, id int64) error
}

// Client implements ChatAPI and NotificationAPI plus the remaining /api
// endpoints the daemon and load tools touch.
type Client struct {
	base    string
	http    *http.Client
	tokens  auth.TokenSource
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  zerolog.Logger
}

// NewClient builds a gateway client for an /api base URL such as
// https://host:8443/api.
func NewClient(baseURL string, tokens auth.TokenSource, logger zerolog.Logger) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		tokens: tokens,
		logger: logger.With().Str("component", "gateway").Logger(),
	}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:     "vibez-gateway",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport-level trouble trips the breaker; the caller's
			// validation mistakes are not the backend's health.
			if err == nil {
				return true
			}
			apiErr, ok := AsAPIError(err)
			return ok && !apiErr.Temporary()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return c
}

// ListRooms returns the caller's chat rooms with last-message snapshots.
func (c *Client) ListRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := c.do(ctx, http.MethodGet, "/chats", "/chats", nil, &rooms)
	return rooms, err
}

// PrivateChat returns the existing private room with the given user or has
// the backend create one. Idempotent by contract.
func (c *Client) PrivateChat(ctx context.Context, username string) (models.Room, error) {
	var room models.Room
	body := map[string]string{"participantUsername": username}
	err := c.do(ctx, http.MethodPost, "/chats/private", "/chats/private", body, &room)
	return room, err
}

// GroupChat creates a group room with the given members.
func (c *Client) GroupChat(ctx context.Context, usernames []string, name string) (models.Room, error) {
	var room models.Room
	body := map[string]any{"name": name, "participantUsernames": usernames}
	err := c.do(ctx, http.MethodPost, "/chats/group", "/chats/group", body, &room)
	return room, err
}

// messagePage mirrors the backend's paged message response.
type messagePage struct {
	Content []models.Message `json:"content"`
}

// Messages fetches one page of room history. The backend serves pages
// newest-first; the result here is reordered ascending by timestamp so
// callers can append.
func (c *Client) Messages(ctx context.Context, roomID uuid.UUID, page, size int) ([]models.Message, error) {
	path := fmt.Sprintf("/chats/%s/messages?page=%d&size=%d", roomID, page, size)
	var result messagePage
	if err := c.do(ctx, http.MethodGet, path, "/chats/{id}/messages", nil, &result); err != nil {
		return nil, err
	}
	msgs := result.Content
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PostMessage stores a message over REST. This is the fallback path for
// reel shares; plain text normally goes over the realtime transport.
func (c *Client) PostMessage(ctx context.Context, roomID uuid.UUID, content string, reelID *int64) (models.Message, error) {
	path := fmt.Sprintf("/chats/%s/messages", roomID)
	body := map[string]any{"content": content, "reelId": reelID}
	var msg models.Message
	err := c.do(ctx, http.MethodPost, path, "/chats/{id}/messages", body, &msg)
	return msg, err
}

// EditMessage replaces a message's content; the backend flips its edited
// flag and broadcasts the update.
func (c *Client) EditMessage(ctx context.Context, messageID uuid.UUID, content string) (models.Message, error) {
	path := fmt.Sprintf("/chats/messages/%s", messageID)
	var msg models.Message
	err := c.do(ctx, http.MethodPatch, path, "/chats/messages/{id}", map[string]string{"content": content}, &msg)
	return msg, err
}

// DeleteMessage tombstones a message; history position is preserved.
func (c *Client) DeleteMessage(ctx context.Context, messageID uuid.UUID) (models.Message, error) {
	path := fmt.Sprintf("/chats/messages/%s", messageID)
	var msg models.Message
	err := c.do(ctx, http.MethodDelete, path, "/chats/messages/{id}", nil, &msg)
	return msg, err
}

// Notifications lists the caller's in-app notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var list []models.Notification
	err := c.do(ctx, http.MethodGet, "/notifications", "/notifications", nil, &list)
	return list, err
}

// UnreadNotificationCount returns the persisted unread counter.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int64, error) {
	var count int64
	err := c.do(ctx, http.MethodGet, "/notifications/unread-count", "/notifications/unread-count", nil, &count)
	return count, err
}

// MarkAllNotificationsRead persists read-state for everything.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/notifications/read-all", "/notifications/read-all", nil, nil)
}

// MarkNotificationRead persists read-state for one notification.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/notifications/%d/read", id)
	return c.do(ctx, http.MethodPatch, path, "/notifications/{id}/read", nil, nil)
}

// Feed fetches the reel feed. feedType is FOR_YOU or FOLLOWING.
func (c *Client) Feed(ctx context.Context, feedType string) ([]models.Reel, error) {
	path := "/reels/feed"
	if feedType != "" {
		path += "?type=" + url.QueryEscape(feedType)
	}
	var reels []models.Reel
	err := c.do(ctx, http.MethodGet, path, "/reels/feed", nil, &reels)
	return reels, err
}

// SearchUsers queries the user search endpoint.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	path := "/search/users?q=" + url.QueryEscape(query)
	var users []models.User
	err := c.do(ctx, http.MethodGet, path, "/search/users", nil, &users)
	return users, err
}

// RegisterDeviceToken registers a push-notification device token.
func (c *Client) RegisterDeviceToken(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/device-tokens", "/device-tokens", map[string]string{"token": token}, nil)
}

// do runs one authenticated request and decodes the response into out.
// route is the templated path used for metric labels.
func (c *Client) do(ctx context.Context, method, path, route string, body, out any) error {
	ctx, span := otel.Tracer("vibez-client/gateway").Start(ctx, method+" "+route)
	defer span.End()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return &APIError{Status: 0, Kind: KindAuth, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, &APIError{Status: 0, Kind: KindTransient, Message: err.Error()}
		}
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return nil, normalizeError(resp)
		}
		return resp, nil
	})
	status := 0
	if resp != nil {
		status = resp.StatusCode
	} else if apiErr, ok := AsAPIError(err); ok {
		status = apiErr.Status
	}
	observability.ObserveGatewayRequest(method, route, status, time.Since(start))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: resp.StatusCode, Kind: KindTransient, Message: "decode response: " + err.Error()}
	}
	return nil
}

// normalizeError folds a non-2xx response into the one error shape.
func normalizeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Kind: kindForStatus(resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil || len(raw) == 0 {
		apiErr.Message = resp.Status
		return apiErr
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
