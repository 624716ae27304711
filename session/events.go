package session

import (
	"fmt"
	"time"

	"trilex/model"
)

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventFrame
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFrame:
		return "frame"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event reports a change of session state. Frame is set for EventFrame,
// Err for EventError and for disconnects caused by the transport.
type Event struct {
	Kind  EventKind
	Frame model.Inbound
	Err   error
}

// Toast is a transient user-facing alert raised for each notification.
type Toast struct {
	Title       string
	Description string
	ActionLabel string
	ActionPath  string
	Duration    time.Duration
}

type Notifier interface {
	Notify(t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }

const (
	defaultToastTitle = "New notification"
	toastDuration     = 5 * time.Second
	notificationsPath = "/notifications"
)

func toastFor(n model.Notification) Toast {
	title := n.Title
	if title == "" {
		title = defaultToastTitle
	}
	return Toast{
		Title:       title,
		Description: n.Message,
		ActionLabel: "View",
		ActionPath:  notificationsPath,
		Duration:    toastDuration,
	}
}

// HandshakeError is returned when the server rejects the upgrade.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }
