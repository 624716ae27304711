package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"trilex/auth"
	"trilex/logger"
	"trilex/model"
	"trilex/server/room"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxMessageLength = 5000
	maxFrameSize     = 64 * 1024
	authenticateWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ErrorFrame reports a rejected client frame. Clients treat it as an
// unknown frame type.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

var errNoToken = errors.New("no access token")

func validateMessage(a model.SendMessageAction) string {
	if strings.TrimSpace(a.RoomID) == "" {
		return "room_id is required"
	}
	if strings.TrimSpace(a.Message) == "" {
		return "message must not be empty"
	}
	if utf8.RuneCountInString(a.Message) > maxMessageLength {
		return "message is too long"
	}
	if a.ClientTempID == "" {
		return "client_temp_id is required"
	}
	return ""
}

// requestToken reads the credential from the query string or the
// Authorization header.
func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// userFor maps a token to a user id. Opaque tokens are their own id.
func userFor(token string) (string, error) {
	if token == "" {
		return "", errNoToken
	}
	claims, err := auth.InspectToken(token)
	if errors.Is(err, auth.ErrNotJWT) {
		return token, nil
	}
	if err != nil {
		return "", err
	}
	if claims.Expired(time.Now()) {
		return "", errors.New("access token expired")
	}
	if claims.UserID == "" {
		return "", errors.New("access token has no subject")
	}
	return claims.UserID, nil
}

// readAuthenticate waits for the first frame to carry the credential.
func readAuthenticate(conn *websocket.Conn) (string, error) {
	conn.SetReadDeadline(time.Now().Add(authenticateWait))
	defer conn.SetReadDeadline(time.Time{})

	_, p, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	out, err := model.DecodeOutbound(p)
	if err != nil {
		return "", err
	}
	a, ok := out.(model.AuthenticateAction)
	if !ok {
		return "", errNoToken
	}
	return strings.TrimSpace(a.Token), nil
}

func HandleWebSocket(manager *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		var userID string
		if token != "" {
			id, err := userFor(token)
			if err != nil {
				logger.Warn("Rejected realtime connection", "error", err, "token", logger.RedactToken(token))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			userID = id
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Upgrade error", "error", err)
			return
		}
		conn.SetReadLimit(maxFrameSize)

		if userID == "" {
			token, err := readAuthenticate(conn)
			if err == nil {
				userID, err = userFor(token)
			}
			if err != nil {
				logger.Warn("Rejected realtime connection", "error", err)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
					time.Now().Add(time.Second))
				conn.Close()
				return
			}
		}

		client := room.NewClient(userID, conn)
		manager.Attach(client)
		go client.WritePump()
		logger.Info("Realtime client connected", "client", client.ID, "user_id", userID)

		defer func() {
			manager.Detach(client)
			client.Close()
			logger.Info("Realtime client disconnected", "client", client.ID, "user_id", userID)
		}()

		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("Read error", "client", client.ID, "error", err)
				}
				return
			}

			out, err := model.DecodeOutbound(p)
			if err != nil {
				sendError(client, "Invalid frame: "+err.Error())
				continue
			}

			switch a := out.(type) {
			case model.JoinRoomAction:
				if strings.TrimSpace(a.RoomID) == "" {
					sendError(client, "room_id is required")
					continue
				}
				manager.Join(client, a.RoomID)
			case model.SendMessageAction:
				if errStr := validateMessage(a); errStr != "" {
					sendError(client, errStr)
					continue
				}
				handleSend(manager, client, a)
			case model.TypingAction:
				for _, roomID := range client.Rooms() {
					send(manager.GetRoom(roomID), client, model.TypingFrame{
						UserID:   client.UserID,
						RoomID:   roomID,
						IsTyping: a.IsTyping,
					})
				}
			case model.AuthenticateAction:
			}
		}
	}
}

// handleSend acknowledges a message to its sender and fans it out to the
// room. The sender also gets message_delivered once another member has it.
func handleSend(manager *room.Manager, client *room.Client, a model.SendMessageAction) {
	r := manager.GetRoom(a.RoomID)
	if !client.InRoom(a.RoomID) {
		manager.Join(client, a.RoomID)
	}

	messageID := uuid.NewString()
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	reply(client, model.MessageSentFrame{
		ClientTempID: a.ClientTempID,
		MessageID:    messageID,
		CreatedAt:    createdAt,
		RoomID:       a.RoomID,
	})

	msg := model.ChatMessage{
		Type:         model.TypeChatMessage,
		RoomID:       a.RoomID,
		Message:      a.Message,
		Sender:       model.Sender{ID: client.UserID},
		MessageID:    messageID,
		ID:           messageID,
		CreatedAt:    createdAt,
		ClientTempID: a.ClientTempID,
	}
	reply(client, model.ChatMessageFrame{ChatMessage: msg})
	delivered := send(r, client, model.ChatMessageFrame{ChatMessage: msg})

	update := model.RoomUpdatedFrame{RoomUpdate: model.RoomUpdate{
		RoomID: a.RoomID,
		LastMessage: model.LastMessage{
			ID:        messageID,
			Message:   a.Message,
			CreatedAt: createdAt,
			RoomID:    a.RoomID,
			Sender:    msg.Sender,
		},
	}}
	reply(client, update)
	send(r, client, update)

	if delivered > 0 {
		reply(client, model.MessageDeliveredFrame{ClientTempID: a.ClientTempID, MessageID: messageID})
	}
}

// send broadcasts f to everyone in r except from.
func send(r *room.Room, from *room.Client, f model.Inbound) int {
	data, err := model.EncodeInbound(f)
	if err != nil {
		logger.Error("Encode error", "type", f.FrameType(), "error", err)
		return 0
	}
	return r.Broadcast(data, from)
}

func reply(c *room.Client, f model.Inbound) {
	data, err := model.EncodeInbound(f)
	if err != nil {
		logger.Error("Encode error", "type", f.FrameType(), "error", err)
		return
	}
	c.Send(data)
}

func sendError(c *room.Client, msg string) {
	data, _ := json.Marshal(ErrorFrame{Type: "error", Error: msg})
	c.Send(data)
}
