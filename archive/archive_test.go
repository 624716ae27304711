package archive

import (
	"testing"

	"trilex/model"

	"github.com/stretchr/testify/assert"
)

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "id:m1", MessageKey(model.ChatMessage{MessageID: "m1", ID: "x"}))
	assert.Equal(t, "id:x", MessageKey(model.ChatMessage{ID: "x"}))

	a := model.ChatMessage{RoomID: "r1", Message: "hi", CreatedAt: "t"}
	b := a
	assert.Equal(t, MessageKey(a), MessageKey(b))

	b.Message = "bye"
	assert.NotEqual(t, MessageKey(a), MessageKey(b))
}

func TestNotificationKey(t *testing.T) {
	assert.Equal(t, "id:n1", NotificationKey(model.Notification{ID: "n1"}))
	assert.Contains(t, NotificationKey(model.Notification{Title: "X"}), "sha:")
}
