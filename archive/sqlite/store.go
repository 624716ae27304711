// Package sqlite provides a SQLite-backed history archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"trilex/archive"
	"trilex/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	message_key TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL,
	payload     TEXT NOT NULL,
	archived_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_messages_room_seq ON chat_messages (room_id, seq);
CREATE TABLE IF NOT EXISTS notifications (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	notification_key TEXT NOT NULL UNIQUE,
	is_read          INTEGER NOT NULL,
	payload          TEXT NOT NULL,
	archived_at      INTEGER NOT NULL
);
`

type Store struct {
	sqlDB *sql.DB
}

var _ archive.Archive = (*Store)(nil)

// Open opens (and creates when missing) the archive at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) SaveMessage(ctx context.Context, msg model.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO chat_messages (message_key, room_id, payload, archived_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_key) DO UPDATE SET payload = excluded.payload`,
		archive.MessageKey(msg), msg.RoomID, string(payload), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *Store) SaveNotification(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO notifications (notification_key, is_read, payload, archived_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (notification_key) DO UPDATE SET is_read = excluded.is_read, payload = excluded.payload`,
		archive.NotificationKey(n), n.IsRead, string(payload), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT payload FROM chat_messages ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []model.ChatMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT payload FROM notifications ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
