// Package mongo provides a MongoDB-backed history archive.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"trilex/archive"
	"trilex/logger"
	"trilex/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	MessageCollectionName      = "chat_messages"
	NotificationCollectionName = "notifications"
)

type Options struct {
	URI              string
	Database         string
	MinPoolSize      uint64
	MaxPoolSize      uint64
	OperationTimeout time.Duration
}

type messageDoc struct {
	Key        string            `bson:"message_key"`
	RoomID     string            `bson:"room_id"`
	Message    model.ChatMessage `bson:"message"`
	ArchivedAt time.Time         `bson:"archived_at"`
}

type notificationDoc struct {
	Key          string             `bson:"notification_key"`
	IsRead       bool               `bson:"is_read"`
	Notification model.Notification `bson:"notification"`
	ArchivedAt   time.Time          `bson:"archived_at"`
}

type Store struct {
	client        *mongo.Client
	messages      *mongo.Collection
	notifications *mongo.Collection
	timeout       time.Duration
}

var _ archive.Archive = (*Store)(nil)

// Connect dials MongoDB, verifies the connection and ensures the unique
// key indexes exist.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Second
	}

	clientOptions := options.Client().ApplyURI(opts.URI).SetAppName("trilex-realtime")
	if opts.MinPoolSize > 0 {
		clientOptions.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(opts.MaxPoolSize)
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Archive connection created: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Archive connection closed: %s (%s)", evt.Address, evt.Reason)
			}
		},
	})

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to archive: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while pinging archive: %w", err)
	}

	db := client.Database(opts.Database)
	s := &Store{
		client:        client,
		messages:      db.Collection(MessageCollectionName),
		notifications: db.Collection(NotificationCollectionName),
		timeout:       opts.OperationTimeout,
	}

	if _, err := s.messages.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("chat_messages_key_unique"),
	}); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while creating archive indexes: %w", err)
	}
	if _, err := s.notifications.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "notification_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("notifications_key_unique"),
	}); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("error occured while creating archive indexes: %w", err)
	}

	logger.InfoF("Archive connected: database=%s", opts.Database)
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	logger.Info("Closing archive connection")
	return s.client.Disconnect(ctx)
}

func (s *Store) SaveMessage(ctx context.Context, msg model.ChatMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := archive.MessageKey(msg)
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "message_key", Value: key},
			{Key: "room_id", Value: msg.RoomID},
			{Key: "message", Value: msg},
		}},
		// archived_at orders RecentMessages, so a re-save keeps its place.
		{Key: "$setOnInsert", Value: bson.D{{Key: "archived_at", Value: time.Now().UTC()}}},
	}

	_, err := s.messages.UpdateOne(ctx, bson.D{{Key: "message_key", Value: key}}, update, options.Update().SetUpsert(true))
	return wrapError(err)
}

func (s *Store) SaveNotification(ctx context.Context, n model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := archive.NotificationKey(n)
	filter := bson.D{{Key: "notification_key", Value: key}}

	var existing notificationDoc
	archivedAt := time.Now().UTC()
	if err := s.notifications.FindOne(ctx, filter).Decode(&existing); err == nil {
		archivedAt = existing.ArchivedAt
	}
	doc := notificationDoc{Key: key, IsRead: n.IsRead, Notification: n, ArchivedAt: archivedAt}

	_, err := s.notifications.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	return wrapError(err)
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]model.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "archived_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.messages.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrapError(err)
	}
	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err)
	}

	out := make([]model.ChatMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Message)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Store) RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "archived_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.notifications.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, wrapError(err)
	}
	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(err)
	}

	out := make([]model.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Notification)
	}
	return out, nil
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("document does not exist: %w", err)
	}
	return fmt.Errorf("archive operation failed: %w", err)
}
