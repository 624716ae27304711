package room

import (
	"sync"
	"time"

	"trilex/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// Client is one websocket connection of an authenticated user. All writes
// go through its send queue so only WritePump touches the socket.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	closed bool
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]bool),
	}
}

// Send queues data without blocking and reports whether it was queued.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		logger.Warn("Client send queue full, dropping frame", "client", c.ID, "user_id", c.UserID)
		return false
	}
}

// Rooms returns the rooms the client has joined.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) InRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[roomID]
}

func (c *Client) setRoom(roomID string, in bool) {
	c.mu.Lock()
	if in {
		c.rooms[roomID] = true
	} else {
		delete(c.rooms, roomID)
	}
	c.mu.Unlock()
}

// WritePump drains the send queue until Close.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("Write error", "client", c.ID, "error", err)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Close stops the write pump once the queued frames are written.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// membership is a register or unregister request; applied is closed once
// the room loop has handled it.
type membership struct {
	client  *Client
	applied chan struct{}
}

// Room represents a chat room with connected clients
type Room struct {
	ID         string
	Clients    map[*Client]bool
	Register   chan membership
	Unregister chan membership
	done       chan struct{}
	mu         sync.RWMutex
}

func NewRoom(id string) *Room {
	return &Room{
		ID:         id,
		Clients:    make(map[*Client]bool),
		Register:   make(chan membership),
		Unregister: make(chan membership),
		done:       make(chan struct{}),
	}
}

func (r *Room) Run() {
	for {
		select {
		case m := <-r.Register:
			r.mu.Lock()
			r.Clients[m.client] = true
			r.mu.Unlock()
			m.client.setRoom(r.ID, true)
			logger.Debug("Client joined room", "room_id", r.ID, "user_id", m.client.UserID)
			close(m.applied)
		case m := <-r.Unregister:
			r.mu.Lock()
			delete(r.Clients, m.client)
			r.mu.Unlock()
			m.client.setRoom(r.ID, false)
			close(m.applied)
		case <-r.done:
			return
		}
	}
}

// Add registers c and reports false when the room has been shut down.
func (r *Room) Add(c *Client) bool {
	return r.request(r.Register, c)
}

func (r *Room) Remove(c *Client) bool {
	return r.request(r.Unregister, c)
}

func (r *Room) request(ch chan membership, c *Client) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	m := membership{client: c, applied: make(chan struct{})}
	select {
	case ch <- m:
	case <-r.done:
		return false
	}
	<-m.applied
	return true
}

// Broadcast queues data for every member except skip and returns how many
// members received it.
func (r *Room) Broadcast(data []byte, skip *Client) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for c := range r.Clients {
		if c == skip {
			continue
		}
		if c.Send(data) {
			n++
		}
	}
	return n
}

func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// Manager manages multiple rooms
type Manager struct {
	Rooms  map[string]*Room
	users  map[string]map[*Client]bool
	unread map[string]int
	mu     sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		Rooms:  make(map[string]*Room),
		users:  make(map[string]map[*Client]bool),
		unread: make(map[string]int),
	}
}

func (m *Manager) GetRoom(roomId string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.Rooms[roomId]; ok {
		return room
	}

	room := NewRoom(roomId)
	m.Rooms[roomId] = room
	go room.Run()
	return room
}

// Join registers c with the room and waits until the room has accepted it.
func (m *Manager) Join(c *Client, roomID string) *Room {
	room := m.GetRoom(roomID)
	room.Add(c)
	return room
}

// Attach makes c reachable through UserClients.
func (m *Manager) Attach(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users[c.UserID] == nil {
		m.users[c.UserID] = make(map[*Client]bool)
	}
	m.users[c.UserID][c] = true
}

// Detach removes c from the user index and every room it joined.
func (m *Manager) Detach(c *Client) {
	m.mu.Lock()
	if set := m.users[c.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(m.users, c.UserID)
		}
	}
	rooms := make([]*Room, 0)
	for _, id := range c.Rooms() {
		if room, ok := m.Rooms[id]; ok {
			rooms = append(rooms, room)
		}
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Remove(c)
	}
}

func (m *Manager) UserClients(userID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.users[userID]))
	for c := range m.users[userID] {
		out = append(out, c)
	}
	return out
}

func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Rooms)
}

// AddUnread bumps the unread notification count of userID.
func (m *Manager) AddUnread(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread[userID]++
	return m.unread[userID]
}

// Close stops every room loop.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, room := range m.Rooms {
		close(room.done)
		delete(m.Rooms, id)
	}
}
