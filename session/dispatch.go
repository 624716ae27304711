package session

import (
	"slices"

	"trilex/logger"
	"trilex/metrics"
	"trilex/model"
)

// handleFrame decodes and applies one server frame. It runs on the read
// goroutine, so frames are applied in arrival order.
func (s *Session) handleFrame(data []byte) {
	frame, err := model.DecodeInbound(data)
	if err != nil {
		logger.Warn("Dropping malformed frame", "error", err, "bytes", len(data))
		s.record(metrics.Record{Kind: metrics.KindMalformed, Bytes: len(data)})
		return
	}
	s.record(metrics.Record{
		Kind:      metrics.KindFrameIn,
		FrameType: frame.FrameType(),
		RoomId:    roomOf(frame),
		Bytes:     len(data),
	})

	s.apply(frame)
	s.emit(Event{Kind: EventFrame, Frame: frame})
}

func (s *Session) apply(frame model.Inbound) {
	switch f := frame.(type) {
	case model.ChatMessageFrame:
		s.mu.Lock()
		s.messages = append(s.messages, f.ChatMessage)
		s.mu.Unlock()
		s.archiveMessage(f.ChatMessage)

	case model.MessageSentFrame:
		if f.ClientTempID == "" {
			return
		}
		s.mu.Lock()
		rec := s.deliveries[f.ClientTempID]
		rec.MessageID = f.MessageID
		rec.CreatedAt = f.CreatedAt
		rec.Advance(model.StatusSent)
		s.deliveries[f.ClientTempID] = rec
		s.mu.Unlock()

	case model.MessageDeliveredFrame:
		s.advance(f.ClientTempID, model.StatusDelivered)

	case model.MessageReadFrame:
		s.advance(f.ClientTempID, model.StatusRead)

	case model.RoomUpdatedFrame:
		s.mu.Lock()
		s.roomUpdates = append(s.roomUpdates, f.RoomUpdate)
		s.mu.Unlock()

	case model.UnreadCountFrame:
		s.mu.Lock()
		s.unread = f.Count
		s.mu.Unlock()

	case model.NotificationFrame:
		n := f.Notification
		s.mu.Lock()
		s.notifications = slices.Insert(s.notifications, 0, n)
		if !n.IsRead {
			s.unread++
		}
		s.mu.Unlock()

		if !n.Type.Known() {
			logger.Debug("Notification of undocumented type", "type", n.Type)
		}
		if s.notifier != nil {
			s.notifier.Notify(toastFor(n))
		}
		s.archiveNotification(n)

	case model.TypingFrame:
		if f.UserID == "" {
			logger.Debug("Ignoring typing frame without user id")
			return
		}
		s.mu.Lock()
		idx := slices.Index(s.typing, f.UserID)
		switch {
		case f.IsTyping && idx < 0:
			s.typing = append(s.typing, f.UserID)
		case !f.IsTyping && idx >= 0:
			s.typing = slices.Delete(s.typing, idx, idx+1)
		}
		s.mu.Unlock()

	case model.UnknownFrame:
		logger.Debug("Ignoring frame of unknown type", "type", f.Type)
	}
}

// advance moves an existing delivery record forward. Receipts for unknown
// correlation ids are ignored.
func (s *Session) advance(correlationID string, status model.DeliveryStatus) {
	if correlationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.deliveries[correlationID]
	if !ok {
		return
	}
	if rec.Advance(status) {
		s.deliveries[correlationID] = rec
	}
}

func (s *Session) archiveMessage(msg model.ChatMessage) {
	if s.archive == nil {
		return
	}
	ctx, cancel := archiveContext()
	defer cancel()
	if err := s.archive.SaveMessage(ctx, msg); err != nil {
		logger.Warn("Failed to archive message", "room_id", msg.RoomID, "error", err)
	}
}

func (s *Session) archiveNotification(n model.Notification) {
	if s.archive == nil {
		return
	}
	ctx, cancel := archiveContext()
	defer cancel()
	if err := s.archive.SaveNotification(ctx, n); err != nil {
		logger.Warn("Failed to archive notification", "id", n.ID, "error", err)
	}
}

func roomOf(frame model.Inbound) string {
	switch f := frame.(type) {
	case model.ChatMessageFrame:
		return f.RoomID
	case model.MessageSentFrame:
		return f.RoomID
	case model.RoomUpdatedFrame:
		return f.RoomID
	case model.TypingFrame:
		return f.RoomID
	}
	return ""
}
