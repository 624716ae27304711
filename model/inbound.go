package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound frame type tags.
const (
	TypeChatMessage      = "chat_message"
	TypeMessageSent      = "message_sent"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRead      = "message_read"
	TypeRoomUpdated      = "room_updated"
	TypeUnreadCount      = "unread_count"
	TypeNotification     = "notification"
	TypeTyping           = "typing"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Inbound is a frame pushed by the server. The set of implementations is
// closed; switch over them with a default case for UnknownFrame.
type Inbound interface {
	FrameType() string
	isInbound()
}

type ChatMessageFrame struct {
	ChatMessage
}

type MessageSentFrame struct {
	ClientTempID string `json:"client_temp_id,omitempty"`
	MessageID    string `json:"message_id"`
	CreatedAt    string `json:"created_at"`
	RoomID       string `json:"room_id,omitempty"`
}

type MessageDeliveredFrame struct {
	ClientTempID string `json:"client_temp_id,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
}

type MessageReadFrame struct {
	ClientTempID string `json:"client_temp_id,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
}

type RoomUpdatedFrame struct {
	RoomUpdate
}

type UnreadCountFrame struct {
	Count int `json:"count"`
}

type NotificationFrame struct {
	Notification Notification `json:"notification"`
}

type TypingFrame struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"room_id,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// UnmarshalJSON also accepts the snake_case user_id some servers send.
func (f *TypingFrame) UnmarshalJSON(data []byte) error {
	var wire struct {
		UserID      string `json:"userId"`
		SnakeUserID string `json:"user_id"`
		RoomID      string `json:"room_id"`
		IsTyping    bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.UserID = wire.UserID
	if f.UserID == "" {
		f.UserID = wire.SnakeUserID
	}
	f.RoomID = wire.RoomID
	f.IsTyping = wire.IsTyping
	return nil
}

// UnknownFrame keeps a frame whose tag this client does not understand.
type UnknownFrame struct {
	Type string
	Raw  json.RawMessage
}

func (ChatMessageFrame) FrameType() string      { return TypeChatMessage }
func (MessageSentFrame) FrameType() string      { return TypeMessageSent }
func (MessageDeliveredFrame) FrameType() string { return TypeMessageDelivered }
func (MessageReadFrame) FrameType() string      { return TypeMessageRead }
func (RoomUpdatedFrame) FrameType() string      { return TypeRoomUpdated }
func (UnreadCountFrame) FrameType() string      { return TypeUnreadCount }
func (NotificationFrame) FrameType() string     { return TypeNotification }
func (TypingFrame) FrameType() string           { return TypeTyping }
func (f UnknownFrame) FrameType() string        { return f.Type }

func (ChatMessageFrame) isInbound()      {}
func (MessageSentFrame) isInbound()      {}
func (MessageDeliveredFrame) isInbound() {}
func (MessageReadFrame) isInbound()      {}
func (RoomUpdatedFrame) isInbound()      {}
func (UnreadCountFrame) isInbound()      {}
func (NotificationFrame) isInbound()     {}
func (TypingFrame) isInbound()           {}
func (UnknownFrame) isInbound()          {}

// DecodeInbound parses one server frame. Invalid JSON and frames without a
// type tag fail with ErrMalformedFrame; unrecognized tags yield UnknownFrame.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch envelope.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	case TypeChatMessage:
		var f ChatMessageFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
		}
		f.Type = TypeChatMessage
		if f.MessageID == "" {
			f.MessageID = f.ID
		}
		return f, nil
	case TypeMessageSent:
		return decodeAs[MessageSentFrame](data)
	case TypeMessageDelivered:
		return decodeAs[MessageDeliveredFrame](data)
	case TypeMessageRead:
		return decodeAs[MessageReadFrame](data)
	case TypeRoomUpdated:
		return decodeAs[RoomUpdatedFrame](data)
	case TypeUnreadCount:
		return decodeAs[UnreadCountFrame](data)
	case TypeNotification:
		var wire struct {
			Notification *Notification `json:"notification"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
		}
		if wire.Notification == nil {
			return nil, fmt.Errorf("%w: notification frame without payload", ErrMalformedFrame)
		}
		return NotificationFrame{Notification: *wire.Notification}, nil
	case TypeTyping:
		return decodeAs[TypingFrame](data)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnknownFrame{Type: envelope.Type, Raw: raw}, nil
	}
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.FrameType(), err)
	}
	return f, nil
}

// EncodeInbound renders a server frame with its type tag.
func EncodeInbound(f Inbound) ([]byte, error) {
	if u, ok := f.(UnknownFrame); ok {
		return u.Raw, nil
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	fields["type"], _ = json.Marshal(f.FrameType())
	return json.Marshal(fields)
}
