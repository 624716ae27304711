package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChatMessageNormalizesSenderAndID(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantSender Sender
		wantMsgID  string
	}{
		{
			name:       "string sender, id only",
			raw:        `{"type":"chat_message","room_id":"r1","message":"hi","sender":"u1","id":"m1","created_at":"2025-01-01T00:00:00Z"}`,
			wantSender: Sender{ID: "u1"},
			wantMsgID:  "m1",
		},
		{
			name:       "object sender, explicit message_id",
			raw:        `{"type":"chat_message","room_id":"r1","message":"hi","sender":{"id":"u2","name":"Ana","email":"ana@example.com"},"message_id":"m2","id":"x"}`,
			wantSender: Sender{ID: "u2", Name: "Ana", Email: "ana@example.com"},
			wantMsgID:  "m2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeInbound([]byte(tt.raw))
			require.NoError(t, err)

			msg, ok := f.(ChatMessageFrame)
			require.True(t, ok, "got %T", f)
			assert.Equal(t, TypeChatMessage, msg.Type)
			assert.Equal(t, "r1", msg.RoomID)
			assert.Equal(t, tt.wantSender, msg.Sender)
			assert.Equal(t, tt.wantMsgID, msg.MessageID)
		})
	}
}

func TestDecodeInboundVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want Inbound
	}{
		{`{"type":"message_sent","client_temp_id":"t1","message_id":"m1","created_at":"now"}`,
			MessageSentFrame{ClientTempID: "t1", MessageID: "m1", CreatedAt: "now"}},
		{`{"type":"message_delivered","client_temp_id":"t1"}`, MessageDeliveredFrame{ClientTempID: "t1"}},
		{`{"type":"message_read","client_temp_id":"t1"}`, MessageReadFrame{ClientTempID: "t1"}},
		{`{"type":"unread_count","count":4}`, UnreadCountFrame{Count: 4}},
		{`{"type":"typing","userId":"u9","isTyping":true}`, TypingFrame{UserID: "u9", IsTyping: true}},
		{`{"type":"typing","user_id":"u9","isTyping":false}`, TypingFrame{UserID: "u9"}},
	}
	for _, tt := range tests {
		got, err := DecodeInbound([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestDecodeRoomUpdated(t *testing.T) {
	raw := `{"type":"room_updated","room_id":"r1","last_message":{"id":"m1","message":"hey","created_at":"now","room_id":"r1","sender":{"id":"u1","name":"A","email":"a@x"}}}`
	f, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)

	upd := f.(RoomUpdatedFrame)
	assert.Equal(t, "r1", upd.RoomID)
	assert.Equal(t, "hey", upd.LastMessage.Message)
	assert.Equal(t, "A", upd.LastMessage.Sender.Name)
}

func TestDecodeNotification(t *testing.T) {
	raw := `{"type":"notification","notification":{"id":"n1","type":"booking_created","title":"X","message":"Y","metadata":{"booking_id":"b1"},"is_read":false,"actor":{"id":"a1","role":"client"}}}`
	f, err := DecodeInbound([]byte(raw))
	require.NoError(t, err)

	n := f.(NotificationFrame).Notification
	assert.Equal(t, "n1", n.ID)
	assert.True(t, n.Type.Known())
	assert.False(t, n.IsRead)
	assert.JSONEq(t, `{"booking_id":"b1"}`, string(n.Metadata))
	assert.Equal(t, "client", n.Actor.Role)
}

func TestDecodeInboundMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"message":"no type"}`,
		`{"type":"unread_count","count":"many"}`,
		`{"type":"notification"}`,
	} {
		_, err := DecodeInbound([]byte(raw))
		assert.True(t, errors.Is(err, ErrMalformedFrame), raw)
	}
}

func TestDecodeInboundUnknownType(t *testing.T) {
	f, err := DecodeInbound([]byte(`{"type":"presence","online":[]}`))
	require.NoError(t, err)

	u, ok := f.(UnknownFrame)
	require.True(t, ok)
	assert.Equal(t, "presence", u.FrameType())
}

func TestEncodeInboundAddsType(t *testing.T) {
	b, err := EncodeInbound(MessageSentFrame{ClientTempID: "t1", MessageID: "m1", CreatedAt: "now"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_sent","client_temp_id":"t1","message_id":"m1","created_at":"now"}`, string(b))

	f, err := DecodeInbound(b)
	require.NoError(t, err)
	assert.Equal(t, MessageSentFrame{ClientTempID: "t1", MessageID: "m1", CreatedAt: "now"}, f)
}

func TestOutboundWireShapes(t *testing.T) {
	tests := []struct {
		out  Outbound
		want string
	}{
		{SendMessageAction{RoomID: "r1", Message: "hello", ClientTempID: "t1"},
			`{"action":"send_message","room_id":"r1","message":"hello","client_temp_id":"t1"}`},
		{JoinRoomAction{RoomID: "room-42"}, `{"action":"join_room","room_id":"room-42"}`},
		{TypingAction{IsTyping: true}, `{"type":"typing","isTyping":true}`},
		{AuthenticateAction{Token: "tok"}, `{"action":"authenticate","token":"tok"}`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.out)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(b))

		back, err := DecodeOutbound(b)
		require.NoError(t, err)
		assert.Equal(t, tt.out, back)
	}
}

func TestDecodeOutboundRejectsUnknownAction(t *testing.T) {
	_, err := DecodeOutbound([]byte(`{"action":"leave_room"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestSenderMarshalling(t *testing.T) {
	b, err := json.Marshal(Sender{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, `"u1"`, string(b))

	b, err = json.Marshal(Sender{ID: "u1", Name: "Ana"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Ana"}`, string(b))
}

func TestDeliveryRecordAdvanceNeverRegresses(t *testing.T) {
	rec := DeliveryRecord{Status: StatusSending}

	assert.True(t, rec.Advance(StatusSent))
	assert.True(t, rec.Advance(StatusRead))
	assert.False(t, rec.Advance(StatusDelivered))
	assert.False(t, rec.Advance(StatusRead))
	assert.Equal(t, StatusRead, rec.Status)
}

func TestDeliveryStatusText(t *testing.T) {
	b, err := json.Marshal(DeliveryRecord{MessageID: "m1", Status: StatusDelivered})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message_id":"m1","created_at":"","status":"delivered"}`, string(b))

	var rec DeliveryRecord
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, StatusDelivered, rec.Status)
}

func TestNewCorrelationIDUnique(t *testing.T) {
	assert.NotEqual(t, NewCorrelationID(), NewCorrelationID())
}
