package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"trilex/server/room"

	"github.com/gorilla/mux"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Rooms     int       `json:"rooms"`
	Timestamp time.Time `json:"timestamp"`
}

func HandleHealth(manager *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:    "UP",
			Rooms:     manager.RoomCount(),
			Timestamp: time.Now(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// NewRouter wires the development backend routes.
func NewRouter(manager *room.Manager) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", HandleHealth(manager)).Methods(http.MethodGet)
	r.HandleFunc("/ws/socket/", HandleWebSocket(manager))
	r.HandleFunc("/api/notifications/push/{userID}", HandleNotify(manager)).Methods(http.MethodPost)
	return r
}
