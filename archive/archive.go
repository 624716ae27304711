// Package archive persists the chat history and notifications a session
// receives so they survive a process restart.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"trilex/model"
)

type Archive interface {
	SaveMessage(ctx context.Context, msg model.ChatMessage) error
	SaveNotification(ctx context.Context, n model.Notification) error
	// RecentMessages returns up to limit messages, oldest first.
	RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error)
	// RecentNotifications returns up to limit notifications, newest first.
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	Close() error
}

// MessageKey identifies a message across saves. Messages the server has
// not assigned an id fall back to a digest of their content.
func MessageKey(msg model.ChatMessage) string {
	if msg.MessageID != "" {
		return "id:" + msg.MessageID
	}
	if msg.ID != "" {
		return "id:" + msg.ID
	}
	return "sha:" + digest(msg.RoomID, msg.Sender.ID, msg.CreatedAt, msg.Message)
}

func NotificationKey(n model.Notification) string {
	if n.ID != "" {
		return "id:" + n.ID
	}
	return "sha:" + digest(string(n.Type), n.EntityType, n.EntityID, n.CreatedAt, n.Title)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:12])
}
