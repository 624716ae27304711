package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"trilex/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", auth.Static("tok-123"), srv.Client())
}

func TestRoomsSendsBearerAndPaging(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chat/rooms/", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("page_size"))
		_, _ = io.WriteString(w, `{"count":1,"next":null,"previous":null,"results":[
			{"id":"r1","booking_id":"b1","participants":[{"id":"p1","user":{"id":"u1","email":"a@x.io","role":"client"},"is_admin":true,"joined_at":"t"}],
			 "last_message":{"id":"m1","sender":"u1","message":"hi","created_at":"t"},"unread_count":3,"updated_at":"t"}]}`)
	})

	page, err := c.Rooms(context.Background(), PageParams{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	room := page.Results[0]
	assert.Equal(t, "b1", room.BookingID)
	assert.Equal(t, 3, room.UnreadCount)
	require.NotNil(t, room.LastMessage)
	assert.Equal(t, "u1", room.LastMessage.Sender.ID)
	assert.Nil(t, page.Next)
}

func TestCreateRoom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/rooms/b-7/", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"r9","booking_id":"b-7","participants":[],"last_message":null,"unread_count":0,"updated_at":"t"}`)
	})

	room, err := c.CreateRoom(context.Background(), "b-7")
	require.NoError(t, err)
	assert.Equal(t, "r9", room.ID)
	assert.Nil(t, room.LastMessage)
}

func TestPostMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/rooms/r1/messages/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])
		_, _ = io.WriteString(w, `{"id":"m1","sender":{"id":"u1","email":"a@x.io","role":"lawyer"},"message":"hello","created_at":"t"}`)
	})

	msg, err := c.PostMessage(context.Background(), "r1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "lawyer", msg.Sender.Role)
}

func TestNotificationsFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("is_read"))
		_, _ = io.WriteString(w, `{"count":1,"next":"https://x/api/notifications/?page=2","previous":null,"results":[
			{"id":"n1","type":"booking_accepted","title":"T","message":"M","entity_type":"booking","entity_id":"b1","metadata":"plain","is_read":false,"created_at":"t","actor":{"id":"a","email":"e","name":"n","role":"r"}}]}`)
	})

	unread := false
	page, err := c.Notifications(context.Background(), NotificationFilter{IsRead: &unread})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.JSONEq(t, `"plain"`, string(page.Results[0].Metadata))
	require.NotNil(t, page.Next)
}

func TestMarkNotificationsRead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/notifications/n1/read/":
			_, _ = io.WriteString(w, `{"id":"n1","is_read":true}`)
		case "/api/notifications/mark-all-read/":
			_, _ = io.WriteString(w, `{"count":4}`)
		default:
			http.NotFound(w, r)
		}
	})

	n, err := c.MarkNotificationRead(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, n.IsRead)

	count, err := c.MarkAllNotificationsRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Authentication credentials were not provided."}`, http.StatusUnauthorized)
	})

	_, err := c.Messages(context.Background(), "r1", PageParams{})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "/api/chat/rooms/r1/messages/", statusErr.Path)
	assert.Contains(t, statusErr.Body, "credentials")
}

func TestNoTokenOmitsAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"count":0,"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, auth.NewStore(""), nil)
	_, err := c.Rooms(context.Background(), PageParams{})
	require.NoError(t, err)
}
