package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trilex/api"
	"trilex/auth"
	"trilex/config"
	"trilex/metrics"
	"trilex/model"
	"trilex/server/handler"
	"trilex/server/room"
	"trilex/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()
	manager := room.NewManager()
	srv := httptest.NewServer(handler.NewRouter(manager))
	t.Cleanup(func() {
		srv.Close()
		manager.Close()
	})

	cfg := config.Default()
	cfg.Endpoint = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/socket/"
	cfg.APIBaseURL = srv.URL
	cfg.Token = "tester"
	cfg.HandshakeTimeout = 2 * time.Second
	return srv, cfg
}

func TestConsoleCommands(t *testing.T) {
	srv, cfg := startServer(t)
	ctx := context.Background()

	creds := auth.NewStore(cfg.Token)
	s := session.New(session.FromConfig(cfg), creds)
	creds.OnLogout(s.Disconnect)
	require.NoError(t, s.Connect(ctx, ""))

	var out bytes.Buffer
	c := &console{
		session: s,
		rest:    api.NewClient(srv.URL, creds, nil),
		creds:   creds,
		out:     &out,
	}

	assert.False(t, c.handle(ctx, "hello"))
	assert.Contains(t, out.String(), "join a room first")

	assert.False(t, c.handle(ctx, "/join lobby"))
	assert.Equal(t, "lobby", c.room)

	assert.False(t, c.handle(ctx, "hi all"))
	require.Eventually(t, func() bool {
		for _, rec := range s.Deliveries() {
			if rec.Status >= model.StatusSent {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	out.Reset()
	assert.False(t, c.handle(ctx, "/status"))
	assert.Contains(t, out.String(), "connected=true")

	out.Reset()
	assert.False(t, c.handle(ctx, "/bogus"))
	assert.Contains(t, out.String(), "unknown command /bogus")

	assert.False(t, c.handle(ctx, "/logout"))
	assert.False(t, s.Connected())
	assert.True(t, c.handle(ctx, "/quit"))
}

func TestRunLoad(t *testing.T) {
	_, cfg := startServer(t)

	collector, err := metrics.NewCollector("")
	require.NoError(t, err)
	collector.Start()

	res := runLoadWorker(context.Background(), cfg, collector, 1, "load", 5)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 5, res.Acked)
	assert.Zero(t, res.Failed)

	require.NoError(t, runLoad(context.Background(), cfg, collector, "load", 2, 3))

	collector.Close()
	<-collector.Done
	assert.Positive(t, collector.Stats.FramesOut)

	var summary bytes.Buffer
	collector.PrintSummary(&summary)
	assert.Contains(t, summary.String(), "send_message")
}

func TestRunLoadWithoutToken(t *testing.T) {
	_, cfg := startServer(t)
	cfg.Token = ""

	res := runLoadWorker(context.Background(), cfg, nil, 1, "load", 4)
	assert.Equal(t, 4, res.Failed)
}

func TestRestCommandsAgainstStub(t *testing.T) {
	rest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/rooms/":
			_, _ = io.WriteString(w, `{"count":1,"results":[{"id":"r1","booking_id":"b1","unread_count":2}]}`)
		case "/api/chat/rooms/r1/messages/":
			_, _ = io.WriteString(w, `{"count":1,"results":[{"id":"m1","sender":{"id":"u1"},"message":"old","created_at":"t"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer rest.Close()

	var out bytes.Buffer
	c := &console{
		session: session.New(session.Config{}, auth.Static("")),
		rest:    api.NewClient(rest.URL, auth.Static("tok"), nil),
		room:    "r1",
		out:     &out,
	}

	c.handle(context.Background(), "/rooms")
	assert.Contains(t, out.String(), "booking=b1 unread=2")

	c.handle(context.Background(), "/history")
	assert.Contains(t, out.String(), "u1: old")

	c.handle(context.Background(), "/read n1")
	assert.Contains(t, out.String(), `no notification "n1"`)
}
