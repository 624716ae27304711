// Package session keeps one authenticated realtime connection to the chat
// backend and the state derived from the frames it pushes: the message log,
// delivery receipts, room previews, typing users and notifications.
//
// A Session is created once per login and shared by pointer. It never
// reconnects on its own unless Config.Reconnect allows it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"trilex/archive"
	"trilex/auth"
	"trilex/config"
	"trilex/logger"
	"trilex/metrics"
	"trilex/model"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

var (
	ErrNoCredential         = errors.New("no access token")
	ErrCredentialExpired    = errors.New("access token expired")
	ErrNotConnected         = errors.New("realtime session is not connected")
	ErrMissingCorrelationID = errors.New("correlation id is required")
)

const (
	restoreLimit   = 200
	archiveTimeout = 5 * time.Second
)

type Session struct {
	cfg      Config
	creds    auth.TokenSource
	dial     DialFunc
	notifier Notifier
	recorder Recorder
	archive  archive.Archive

	// connectMu serializes Connect so concurrent callers share one socket.
	connectMu sync.Mutex
	writeMu   sync.Mutex

	mu            sync.RWMutex
	conn          Conn
	connected     bool
	generation    uint64
	room          string
	stopReconnect context.CancelFunc
	messages      []model.ChatMessage
	deliveries    map[string]model.DeliveryRecord
	roomUpdates   []model.RoomUpdate
	typing        []string
	unread        int
	notifications []model.Notification
	lastErr       error

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func New(cfg Config, creds auth.TokenSource, opts ...Option) *Session {
	if cfg.Endpoint == "" {
		cfg.Endpoint = config.DefaultEndpoint
	}
	if cfg.CredentialTransport == "" {
		cfg.CredentialTransport = config.TransportQuery
	}
	s := &Session{
		cfg:        cfg,
		creds:      creds,
		deliveries: make(map[string]model.DeliveryRecord),
		subs:       make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = gorillaDialer(cfg.HandshakeTimeout)
	}
	return s
}

// Connect opens the session and joins roomID when it is not empty. On an
// open session it only joins the room.
func (s *Session) Connect(ctx context.Context, roomID string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.RLock()
	open := s.conn != nil
	s.mu.RUnlock()
	if open {
		if roomID == "" {
			return nil
		}
		return s.JoinRoom(ctx, roomID)
	}

	token, err := s.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("read access token: %w", err)
	}
	if token == "" {
		logger.Warn("No access token, realtime session not started")
		return ErrNoCredential
	}
	if claims, err := auth.InspectToken(token); err == nil && claims.Expired(time.Now()) {
		logger.Warn("Access token expired, realtime session not started", "expired_at", claims.ExpiresAt)
		return ErrCredentialExpired
	}

	target, header, err := s.target(token)
	if err != nil {
		return err
	}

	s.mu.RLock()
	startGen := s.generation
	s.mu.RUnlock()

	logger.Info("Opening realtime session",
		"endpoint", s.cfg.Endpoint,
		"transport", s.cfg.CredentialTransport,
		"token", logger.RedactToken(token))

	conn, err := s.dial(ctx, target, header)
	if err != nil {
		// The dial error can echo the URL, which carries the token in query mode.
		err = fmt.Errorf("dial %s: %w", s.cfg.Endpoint, redactError(err, token))
		s.fail(err)
		return err
	}
	if ctx.Err() != nil {
		conn.Close()
		return ctx.Err()
	}

	s.mu.Lock()
	if s.generation != startGen {
		// Disconnect ran while dialing.
		s.mu.Unlock()
		conn.Close()
		logger.Info("Realtime session disconnected while dialing, dropping connection")
		return ErrNotConnected
	}
	s.conn = conn
	s.connected = true
	s.generation++
	gen := s.generation
	s.lastErr = nil
	s.mu.Unlock()

	s.record(metrics.Record{Kind: metrics.KindConnNew})
	logger.Info("Realtime session open", "endpoint", s.cfg.Endpoint)
	s.emit(Event{Kind: EventConnected})

	go s.readLoop(conn, gen)

	if s.cfg.CredentialTransport == config.TransportFrame {
		if err := s.write(ctx, model.AuthenticateAction{Token: token}); err != nil {
			return err
		}
	}
	if roomID != "" {
		return s.JoinRoom(ctx, roomID)
	}
	return nil
}

func (s *Session) target(token string) (string, http.Header, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	header := http.Header{}
	switch s.cfg.CredentialTransport {
	case config.TransportQuery:
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	case config.TransportHeader:
		header.Set("Authorization", "Bearer "+token)
	case config.TransportFrame:
	default:
		return "", nil, fmt.Errorf("unknown credential transport %q", s.cfg.CredentialTransport)
	}
	return u.String(), header, nil
}

// JoinRoom asks the server to route roomID's traffic to this session and
// remembers the room for reconnects. Nothing is queued while closed.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.write(ctx, model.JoinRoomAction{RoomID: roomID}); err != nil {
		if errors.Is(err, ErrNotConnected) {
			logger.Warn("Cannot join room, realtime session is not open", "room_id", roomID)
		}
		return err
	}
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
	return nil
}

// SendMessage records correlationID as sending and writes the message. The
// record advances as the server acknowledges it.
func (s *Session) SendMessage(ctx context.Context, message, roomID, correlationID string) error {
	if correlationID == "" {
		return ErrMissingCorrelationID
	}

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		logger.Warn("Cannot send message, realtime session is not open", "room_id", roomID)
		return ErrNotConnected
	}
	s.deliveries[correlationID] = model.DeliveryRecord{Status: model.StatusSending}
	s.mu.Unlock()

	return s.write(ctx, model.SendMessageAction{
		RoomID:       roomID,
		Message:      message,
		ClientTempID: correlationID,
	})
}

// SendTypingIndicator returns ErrNotConnected while closed; callers may
// ignore it.
func (s *Session) SendTypingIndicator(ctx context.Context, isTyping bool) error {
	return s.write(ctx, model.TypingAction{IsTyping: isTyping})
}

// Disconnect closes the connection. History is kept for the next Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.generation++
	if s.stopReconnect != nil {
		s.stopReconnect()
		s.stopReconnect = nil
	}
	s.mu.Unlock()

	if conn == nil {
		return
	}
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	conn.Close()

	logger.Info("Realtime session closed")
	s.emit(Event{Kind: EventDisconnected})
}

func (s *Session) write(ctx context.Context, out model.Outbound) error {
	s.mu.RLock()
	conn, connected := s.conn, s.connected
	s.mu.RUnlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode %s: %w", out.Name(), err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deadline := time.Time{}
	if s.cfg.WriteTimeout > 0 {
		deadline = time.Now().Add(s.cfg.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		err = fmt.Errorf("write %s: %w", out.Name(), err)
		s.fail(err)
		return err
	}
	s.record(metrics.Record{Kind: metrics.KindFrameOut, FrameType: out.Name(), Bytes: len(data)})
	return nil
}

func (s *Session) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.closed(conn, gen, err)
			return
		}
		s.handleFrame(data)
	}
}

// closed handles the end of the read loop. Connections already replaced
// or shut down by Disconnect are ignored.
func (s *Session) closed(conn Conn, gen uint64, cause error) {
	s.mu.Lock()
	if s.generation != gen || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.connected = false
	err := fmt.Errorf("connection closed: %w", cause)
	s.lastErr = err
	room := s.room
	var ctx context.Context
	if s.cfg.Reconnect.MaxAttempts > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		s.stopReconnect = cancel
	}
	s.mu.Unlock()

	conn.Close()
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info("Realtime session closed by server")
	} else {
		logger.Warn("Realtime session lost", "error", cause)
	}
	s.record(metrics.Record{Kind: metrics.KindError, FrameType: "close"})
	s.emit(Event{Kind: EventDisconnected, Err: err})

	if ctx != nil {
		go s.reconnect(ctx, room)
	}
}

// reconnect re-dials with exponential backoff until it succeeds, runs out
// of attempts or ctx is cancelled by Disconnect.
func (s *Session) reconnect(ctx context.Context, roomID string) {
	b := backoff.NewExponentialBackOff()
	if s.cfg.Reconnect.InitialInterval > 0 {
		b.InitialInterval = s.cfg.Reconnect.InitialInterval
	}
	if s.cfg.Reconnect.MaxInterval > 0 {
		b.MaxInterval = s.cfg.Reconnect.MaxInterval
	}
	b.Reset()

	for attempt := 1; attempt <= s.cfg.Reconnect.MaxAttempts; attempt++ {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.record(metrics.Record{Kind: metrics.KindReconnect, RoomId: roomID})
		logger.Info("Reconnecting realtime session", "attempt", attempt, "max", s.cfg.Reconnect.MaxAttempts)

		err := s.Connect(ctx, roomID)
		if err == nil {
			return
		}
		if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrCredentialExpired) || ctx.Err() != nil {
			return
		}
		logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
	}
	logger.Error("Giving up on realtime session", "attempts", s.cfg.Reconnect.MaxAttempts)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	logger.Error("Realtime session error", "error", err)
	s.record(metrics.Record{Kind: metrics.KindError})
	s.emit(Event{Kind: EventError, Err: err})
}

func (s *Session) record(r metrics.Record) {
	if s.recorder != nil {
		s.recorder.Record(r)
	}
}

// Restore loads archived history into an empty log. It is a no-op without
// an archive.
func (s *Session) Restore(ctx context.Context) error {
	if s.archive == nil {
		return nil
	}
	msgs, err := s.archive.RecentMessages(ctx, restoreLimit)
	if err != nil {
		return fmt.Errorf("restore messages: %w", err)
	}
	notes, err := s.archive.RecentNotifications(ctx, restoreLimit)
	if err != nil {
		return fmt.Errorf("restore notifications: %w", err)
	}

	s.mu.Lock()
	s.messages = append(msgs, s.messages...)
	s.notifications = append(s.notifications, notes...)
	s.mu.Unlock()

	logger.Info("Restored archived history", "messages", len(msgs), "notifications", len(notes))
	return nil
}

// MarkNotificationReadLocally flips is_read on the notification with id and
// archives the change. The unread counter is left to the server.
func (s *Session) MarkNotificationReadLocally(id string) bool {
	s.mu.Lock()
	idx := slices.IndexFunc(s.notifications, func(n model.Notification) bool { return n.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.notifications[idx].IsRead = true
	n := s.notifications[idx]
	s.mu.Unlock()

	s.archiveNotification(n)
	return true
}

func (s *Session) ClearNotifications() {
	s.mu.Lock()
	s.notifications = nil
	s.unread = 0
	s.mu.Unlock()
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Session) Messages() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

func (s *Session) Delivery(correlationID string) (model.DeliveryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.deliveries[correlationID]
	return rec, ok
}

func (s *Session) Deliveries() map[string]model.DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.DeliveryRecord, len(s.deliveries))
	for k, v := range s.deliveries {
		out[k] = v
	}
	return out
}

func (s *Session) RoomUpdates() []model.RoomUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roomUpdates)
}

func (s *Session) TypingUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.typing)
}

func (s *Session) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Notifications returns the received notifications, newest first.
func (s *Session) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Room returns the last room joined on this session.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Subscribe streams session events into a channel of the given buffer.
// Events that do not fit are dropped. cancel closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) emit(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// redactError hides token in err's message and keeps err in the chain.
func redactError(err error, token string) error {
	msg := err.Error()
	for _, form := range []string{token, url.QueryEscape(token)} {
		msg = strings.ReplaceAll(msg, form, logger.RedactToken(token))
	}
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func archiveContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), archiveTimeout)
}
