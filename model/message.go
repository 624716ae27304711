package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Sender identifies the author of a chat message. The backend sends either
// a bare user id or an inline user summary.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (s *Sender) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = Sender{}
		return nil
	}

	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		*s = Sender{ID: id}
		return nil
	}

	type plain Sender
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode sender: %w", err)
	}
	*s = Sender(p)
	return nil
}

func (s Sender) MarshalJSON() ([]byte, error) {
	if s.Name == "" && s.Email == "" && s.Role == "" {
		return json.Marshal(s.ID)
	}
	type plain Sender
	return json.Marshal(plain(s))
}

// ChatMessage is one entry of the inbound message log. CreatedAt is kept
// exactly as the server formatted it.
type ChatMessage struct {
	Type         string `json:"type"`
	RoomID       string `json:"room_id"`
	Message      string `json:"message"`
	Sender       Sender `json:"sender"`
	MessageID    string `json:"message_id,omitempty"`
	ID           string `json:"id,omitempty"`
	CreatedAt    string `json:"created_at"`
	ClientTempID string `json:"client_temp_id,omitempty"`
}

// DeliveryStatus is the acknowledged lifecycle of a sent message. Values are
// ordered; a record only ever moves to a greater status.
type DeliveryStatus int

const (
	StatusUnknown DeliveryStatus = iota
	StatusSending
	StatusSent
	StatusDelivered
	StatusRead
)

var statusNames = map[DeliveryStatus]string{
	StatusSending:   "sending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
}

func (s DeliveryStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s DeliveryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DeliveryStatus) UnmarshalText(b []byte) error {
	for status, name := range statusNames {
		if name == string(b) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown delivery status %q", b)
}

// DeliveryRecord tracks one optimistic send, keyed by its correlation id.
type DeliveryRecord struct {
	MessageID string         `json:"message_id"`
	CreatedAt string         `json:"created_at"`
	Status    DeliveryStatus `json:"status"`
}

// Advance moves the record to next and reports whether it changed. Earlier
// or equal statuses are ignored.
func (r *DeliveryRecord) Advance(next DeliveryStatus) bool {
	if next <= r.Status {
		return false
	}
	r.Status = next
	return true
}

type LastMessage struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	RoomID    string `json:"room_id"`
	Sender    Sender `json:"sender"`
}

// RoomUpdate carries the newest message preview of a room.
type RoomUpdate struct {
	RoomID      string      `json:"room_id"`
	LastMessage LastMessage `json:"last_message"`
}

// NewCorrelationID returns a fresh client_temp_id for SendMessage.
func NewCorrelationID() string {
	return uuid.NewString()
}
