package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"trilex/logger"
	"trilex/model"
	"trilex/server/room"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type PushResponse struct {
	ID          string `json:"id"`
	Delivered   int    `json:"delivered"`
	UnreadCount int    `json:"unread_count"`
}

// HandleNotify pushes a notification to every connection of a user,
// followed by the user's new unread count.
func HandleNotify(manager *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["userID"]

		var n model.Notification
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFrameSize)).Decode(&n); err != nil {
			http.Error(w, "Invalid JSON format", http.StatusBadRequest)
			return
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt == "" {
			n.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
		}

		unread := 0
		if !n.IsRead {
			unread = manager.AddUnread(userID)
		}

		frame, err := model.EncodeInbound(model.NotificationFrame{Notification: n})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		count, err := model.EncodeInbound(model.UnreadCountFrame{Count: unread})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		delivered := 0
		for _, c := range manager.UserClients(userID) {
			if c.Send(frame) {
				delivered++
			}
			if !n.IsRead {
				c.Send(count)
			}
		}
		logger.Info("Notification pushed", "user_id", userID, "id", n.ID, "delivered", delivered)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(PushResponse{ID: n.ID, Delivered: delivered, UnreadCount: unread})
	}
}
