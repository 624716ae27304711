// Package api is a client for the chat and notification REST endpoints that
// accompany the realtime session.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trilex/auth"
	"trilex/logger"
	"trilex/model"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type PageParams struct {
	Page     int
	PageSize int
}

func (p PageParams) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return v
}

type ChatUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Participant struct {
	ID       string   `json:"id"`
	User     ChatUser `json:"user"`
	IsAdmin  bool     `json:"is_admin"`
	JoinedAt string   `json:"joined_at"`
}

type Room struct {
	ID           string             `json:"id"`
	BookingID    string             `json:"booking_id"`
	Participants []Participant      `json:"participants"`
	LastMessage  *model.LastMessage `json:"last_message"`
	UnreadCount  int                `json:"unread_count"`
	UpdatedAt    string             `json:"updated_at"`
}

type Message struct {
	ID        string       `json:"id"`
	Sender    model.Sender `json:"sender"`
	Message   string       `json:"message"`
	CreatedAt string       `json:"created_at"`
}

// NotificationFilter narrows a notification listing. A nil IsRead lists all.
type NotificationFilter struct {
	IsRead *bool
	PageParams
}

type Client struct {
	baseURL string
	creds   auth.TokenSource
	client  *http.Client
}

// NewClient creates a client for baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL string, creds auth.TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		client:  httpClient,
	}
}

// CreateRoom opens the chat room of a booking.
func (c *Client) CreateRoom(ctx context.Context, bookingID string) (Room, error) {
	var room Room
	err := c.do(ctx, http.MethodPost, "/api/chat/rooms/"+url.PathEscape(bookingID)+"/", nil, nil, &room)
	return room, err
}

func (c *Client) Rooms(ctx context.Context, page PageParams) (Page[Room], error) {
	var out Page[Room]
	err := c.do(ctx, http.MethodGet, "/api/chat/rooms/", page.values(), nil, &out)
	return out, err
}

func (c *Client) Messages(ctx context.Context, roomID string, page PageParams) (Page[Message], error) {
	var out Page[Message]
	err := c.do(ctx, http.MethodGet, "/api/chat/rooms/"+url.PathEscape(roomID)+"/messages/", page.values(), nil, &out)
	return out, err
}

// PostMessage stores a message through REST rather than the socket.
func (c *Client) PostMessage(ctx context.Context, roomID, text string) (Message, error) {
	var msg Message
	body := map[string]string{"message": text}
	err := c.do(ctx, http.MethodPost, "/api/chat/rooms/"+url.PathEscape(roomID)+"/messages/", nil, body, &msg)
	return msg, err
}

func (c *Client) Notifications(ctx context.Context, filter NotificationFilter) (Page[model.Notification], error) {
	q := filter.values()
	if filter.IsRead != nil {
		q.Set("is_read", strconv.FormatBool(*filter.IsRead))
	}
	var out Page[model.Notification]
	err := c.do(ctx, http.MethodGet, "/api/notifications/", q, nil, &out)
	return out, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) (model.Notification, error) {
	var n model.Notification
	err := c.do(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read/", nil, nil, &n)
	return n, err
}

// MarkAllNotificationsRead returns how many notifications changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/api/notifications/mark-all-read/", nil, nil, &out)
	return out.Count, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug("API request", "method", method, "path", path)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
