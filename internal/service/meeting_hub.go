package service

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// Client represents one WebSocket connection known to the hub. A connection
// belongs to its per-user room from registration on, and to a meeting room
// once it joins (or subscribes to) a meeting.
type Client struct {
	ConnID string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues raw for the write pump. Returns false when the client is
// already unregistered or its buffer is full. The mutex pairs with closeSend
// so a fan-out can never hit a closed channel.
func (c *Client) trySend(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- raw:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once; any later trySend is a
// no-op.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// MeetingHub manages room membership per connection and fans derived state
// out to every member of a meeting room. Room names: "meeting-{id}" for
// session rooms, "user-{id}" for cross-cutting notifications.
type MeetingHub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Client]struct{}
	membership map[*Client]map[string]struct{}
	upgrader   websocket.Upgrader
	maxMsgSize int64
	log        *zap.Logger
}

// NewMeetingHub creates the hub.
func NewMeetingHub(readBuf, writeBuf int, maxMessageSize int64, log *zap.Logger) *MeetingHub {
	return &MeetingHub{
		rooms:      make(map[string]map[*Client]struct{}),
		membership: make(map[*Client]map[string]struct{}),
		maxMsgSize: maxMessageSize,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
	}
}

// MeetingRoom returns the room name for a meeting.
func MeetingRoom(meetingID string) string { return "meeting-" + meetingID }

// UserRoom returns the notification room name for a user.
func UserRoom(userID string) string { return "user-" + userID }

// Register adds a connection, joins its per-user room, and returns a cleanup
// function that removes it from every room it entered.
func (h *MeetingHub) Register(connID, userID string, conn *websocket.Conn) (*Client, func()) {
	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}
	c := &Client{
		ConnID: connID,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
	h.mu.Lock()
	h.membership[c] = make(map[string]struct{})
	h.mu.Unlock()
	h.JoinRoom(UserRoom(userID), c)

	h.log.Info("client registered",
		zap.String("conn_id", connID),
		zap.String("user_id", userID))

	cleanup := func() { h.unregister(c) }
	return c, cleanup
}

func (h *MeetingHub) unregister(c *Client) {
	h.mu.Lock()
	for room := range h.membership[c] {
		h.removeLocked(room, c)
	}
	delete(h.membership, c)
	h.mu.Unlock()
	c.closeSend()
	h.log.Info("client unregistered",
		zap.String("conn_id", c.ConnID),
		zap.String("user_id", c.UserID))
}

// JoinRoom adds a client to a room; joining twice is a no-op.
func (h *MeetingHub) JoinRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.membership[c]; !ok {
		// already unregistered
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.membership[c][room] = struct{}{}
}

// LeaveRoom removes a client from a room.
func (h *MeetingHub) LeaveRoom(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(room, c)
	if m, ok := h.membership[c]; ok {
		delete(m, room)
	}
}

func (h *MeetingHub) removeLocked(room string, c *Client) {
	if m, ok := h.rooms[room]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends an event to every member of a room. Sends are
// non-blocking: a client whose buffer is full misses the event rather than
// stalling the rest of the room.
func (h *MeetingHub) Broadcast(room, event string, data interface{}) {
	raw, err := marshalEnvelope(event, data)
	if err != nil {
		h.log.Error("marshal broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	m, ok := h.rooms[room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(raw) {
			h.log.Warn("client gone or buffer full, dropping event",
				zap.String("user_id", c.UserID),
				zap.String("event", event))
		}
	}
}

// BroadcastMeeting sends an event to every subscriber of a meeting room.
func (h *MeetingHub) BroadcastMeeting(meetingID, event string, data interface{}) {
	h.Broadcast(MeetingRoom(meetingID), event, data)
}

// NotifyUser sends an event to every connection in a user's notification
// room.
func (h *MeetingHub) NotifyUser(userID, event string, data interface{}) {
	h.Broadcast(UserRoom(userID), event, data)
}

// SendEvent delivers a direct reply to a single client.
func (h *MeetingHub) SendEvent(c *Client, event string, data interface{}) {
	raw, err := marshalEnvelope(event, data)
	if err != nil {
		h.log.Error("marshal reply", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.trySend(raw) {
		h.log.Warn("client gone or buffer full, dropping reply",
			zap.String("user_id", c.UserID),
			zap.String("event", event))
	}
}

// CloseMeetingRoom notifies the meeting room that the session ended and
// removes the room. Connections stay open: clients may still carry their
// user room or join another meeting.
func (h *MeetingHub) CloseMeetingRoom(meetingID string) {
	room := MeetingRoom(meetingID)
	h.Broadcast(room, model.EventMeetingEnded, map[string]string{"meetingId": meetingID})

	h.mu.Lock()
	if m, ok := h.rooms[room]; ok {
		for c := range m {
			delete(h.membership[c], room)
		}
		delete(h.rooms, room)
	}
	h.mu.Unlock()
	h.log.Info("meeting room closed", zap.String("meeting_id", meetingID))
}

// ActiveMeetings lists meeting IDs that currently have at least one
// subscriber; used by the periodic engagement broadcaster.
func (h *MeetingHub) ActiveMeetings() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for room, m := range h.rooms {
		if len(m) == 0 {
			continue
		}
		if id, ok := meetingIDFromRoom(room); ok {
			out = append(out, id)
		}
	}
	return out
}

func meetingIDFromRoom(room string) (string, bool) {
	const prefix = "meeting-"
	if len(room) > len(prefix) && room[:len(prefix)] == prefix {
		return room[len(prefix):], true
	}
	return "", false
}

// RoomCount returns the number of clients in a room (for debugging).
func (h *MeetingHub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *MeetingHub) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

func marshalEnvelope(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(model.Envelope{Event: event, Data: raw})
}
