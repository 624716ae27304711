package model

import (
	"encoding/json"
	"fmt"
)

// Outbound action names.
const (
	ActionSendMessage  = "send_message"
	ActionJoinRoom     = "join_room"
	ActionAuthenticate = "authenticate"
)

// Outbound is a frame sent by the client.
type Outbound interface {
	Name() string
	isOutbound()
}

type SendMessageAction struct {
	RoomID       string `json:"room_id"`
	Message      string `json:"message"`
	ClientTempID string `json:"client_temp_id"`
}

type JoinRoomAction struct {
	RoomID string `json:"room_id"`
}

// TypingAction is tagged with "type" rather than "action" on the wire.
type TypingAction struct {
	IsTyping bool `json:"isTyping"`
}

// AuthenticateAction carries the credential after the socket opens.
type AuthenticateAction struct {
	Token string `json:"token"`
}

func (SendMessageAction) Name() string  { return ActionSendMessage }
func (JoinRoomAction) Name() string     { return ActionJoinRoom }
func (TypingAction) Name() string       { return TypeTyping }
func (AuthenticateAction) Name() string { return ActionAuthenticate }

func (SendMessageAction) isOutbound()  {}
func (JoinRoomAction) isOutbound()     {}
func (TypingAction) isOutbound()       {}
func (AuthenticateAction) isOutbound() {}

func (a SendMessageAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action       string `json:"action"`
		RoomID       string `json:"room_id"`
		Message      string `json:"message"`
		ClientTempID string `json:"client_temp_id"`
	}{ActionSendMessage, a.RoomID, a.Message, a.ClientTempID})
}

func (a JoinRoomAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action string `json:"action"`
		RoomID string `json:"room_id"`
	}{ActionJoinRoom, a.RoomID})
}

func (a TypingAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		IsTyping bool   `json:"isTyping"`
	}{TypeTyping, a.IsTyping})
}

func (a AuthenticateAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action string `json:"action"`
		Token  string `json:"token"`
	}{ActionAuthenticate, a.Token})
}

// DecodeOutbound parses a client frame, as the server sees it.
func DecodeOutbound(data []byte) (Outbound, error) {
	var envelope struct {
		Action string `json:"action"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	name := envelope.Action
	if name == "" {
		name = envelope.Type
	}

	var (
		out Outbound
		err error
	)
	switch name {
	case ActionSendMessage:
		var a SendMessageAction
		err = json.Unmarshal(data, &a)
		out = a
	case ActionJoinRoom:
		var a JoinRoomAction
		err = json.Unmarshal(data, &a)
		out = a
	case TypeTyping:
		var a TypingAction
		err = json.Unmarshal(data, &a)
		out = a
	case ActionAuthenticate:
		var a AuthenticateAction
		err = json.Unmarshal(data, &a)
		out = a
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", ErrMalformedFrame, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, name, err)
	}
	return out, nil
}
