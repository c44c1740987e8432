package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Pratikk2op/Mechiee-sub000/internal/models"
	"github.com/Pratikk2op/Mechiee-sub000/internal/observability"
)

const defaultSendBuffer = 256

// Room is what a client currently sits in. Key is the stable delivery group
// (the chat session id); ID is the tag the client used, kept for echoing.
type Room struct {
	Key string
	ID  models.RoomID
}

// Client is one live connection. The transport drains Send(); the hub only
// ever enqueues without blocking.
type Client struct {
	ID     string
	UserID string
	Role   models.Role

	send        chan []byte
	currentRoom *Room
	closed      bool
}

// Send is the outbound queue for the transport's write loop. It is closed
// when the client is unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

type Member struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
}

// Mirror publishes room membership somewhere other processes can see it.
type Mirror interface {
	Joined(ctx context.Context, roomKey, userID string, role models.Role) error
	Left(ctx context.Context, roomKey, userID string) error
}

// Hub routes events to live connections. Groups are user:<id>, role:<role>
// and room:<key>; a client is in exactly one user group, one role group and
// at most one room group.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	groups  map[string]map[*Client]struct{}

	mirror     Mirror
	sendBuffer int
	logger     *slog.Logger
}

type Option func(*Hub)

func WithMirror(m Mirror) Option { return func(h *Hub) { h.mirror = m } }

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[*Client]struct{}),
		sendBuffer: defaultSendBuffer,
		logger:     logger.With("component", "presence"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func userGroup(id string) string     { return "user:" + id }
func roleGroup(r models.Role) string { return "role:" + string(r) }
func roomGroup(key string) string    { return "room:" + key }

// Register creates a client for userID and puts it in its identity and role
// groups.
func (h *Hub) Register(userID string, role models.Role) *Client {
	c := &Client{ID: uuid.NewString(), UserID: userID, Role: role, send: make(chan []byte, h.sendBuffer)}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.addLocked(userGroup(userID), c)
	h.addLocked(roleGroup(role), c)
	h.mu.Unlock()
	observability.WSConnections.Inc()
	h.logger.Debug("client registered", "client_id", c.ID, "user_id", userID, "role", role)
	return c
}

// Unregister drops the client from every group and closes its queue. It
// returns the room the client was in, if any. Calling it twice is harmless.
func (h *Hub) Unregister(ctx context.Context, c *Client) *Room {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return nil
	}
	last := c.currentRoom
	c.currentRoom = nil
	c.closed = true
	delete(h.clients, c.ID)
	h.removeLocked(userGroup(c.UserID), c)
	h.removeLocked(roleGroup(c.Role), c)
	stillThere := false
	if last != nil {
		h.removeLocked(roomGroup(last.Key), c)
		stillThere = h.userInRoomLocked(last.Key, c.UserID)
	}
	close(c.send)
	h.mu.Unlock()

	observability.WSConnections.Dec()
	if last != nil && !stillThere {
		h.mirrorLeft(ctx, last.Key, c.UserID)
	}
	return last
}

// Join moves c into room, leaving its previous room first. The previous room
// is returned so the caller can announce the departure; joining the room the
// client is already in returns nil and changes nothing.
func (h *Hub) Join(ctx context.Context, c *Client, room Room) *Room {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return nil
	}
	prev := c.currentRoom
	if prev != nil && prev.Key == room.Key {
		c.currentRoom = &room
		h.mu.Unlock()
		return nil
	}
	stillThere := false
	if prev != nil {
		h.removeLocked(roomGroup(prev.Key), c)
		stillThere = h.userInRoomLocked(prev.Key, c.UserID)
	}
	r := room
	c.currentRoom = &r
	h.addLocked(roomGroup(room.Key), c)
	h.mu.Unlock()

	if prev != nil && !stillThere {
		h.mirrorLeft(ctx, prev.Key, c.UserID)
	}
	if h.mirror != nil {
		if err := h.mirror.Joined(ctx, room.Key, c.UserID, c.Role); err != nil {
			h.logger.Warn("presence mirror join failed", "room", room.Key, "user_id", c.UserID, "error", err)
		}
	}
	return prev
}

// Leave takes c out of the room with key roomKey. It reports false when c was
// not in that room.
func (h *Hub) Leave(ctx context.Context, c *Client, roomKey string) bool {
	h.mu.Lock()
	if c.currentRoom == nil || c.currentRoom.Key != roomKey {
		h.mu.Unlock()
		return false
	}
	c.currentRoom = nil
	h.removeLocked(roomGroup(roomKey), c)
	stillThere := h.userInRoomLocked(roomKey, c.UserID)
	h.mu.Unlock()
	if !stillThere {
		h.mirrorLeft(ctx, roomKey, c.UserID)
	}
	return true
}

func (h *Hub) CurrentRoom(c *Client) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.currentRoom == nil {
		return nil
	}
	r := *c.currentRoom
	return &r
}

// RoomMembers lists the identities connected to a room in this process.
func (h *Hub) RoomMembers(roomKey string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	var out []Member
	for c := range h.groups[roomGroup(roomKey)] {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		out = append(out, Member{UserID: c.UserID, Role: c.Role})
	}
	return out
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[userGroup(userID)]) > 0
}

// SendToUser delivers to every connection of userID. Like every Send* method
// it is best effort and returns how many queues accepted the event.
func (h *Hub) SendToUser(userID, event string, payload any) int {
	return h.broadcast(userGroup(userID), event, payload, nil)
}

func (h *Hub) SendToRole(role models.Role, event string, payload any) int {
	return h.broadcast(roleGroup(role), event, payload, nil)
}

// SendToRoom delivers to everyone in the room except skip, which may be nil.
func (h *Hub) SendToRoom(roomKey, event string, payload any, skip *Client) int {
	return h.broadcast(roomGroup(roomKey), event, payload, skip)
}

func (h *Hub) SendToClient(c *Client, event string, payload any) bool {
	data, ok := h.encode(event, payload)
	if !ok {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enqueueLocked(c, event, data)
}

func (h *Hub) broadcast(group, event string, payload any, skip *Client) int {
	data, ok := h.encode(event, payload)
	if !ok {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.groups[group] {
		if c == skip {
			continue
		}
		if h.enqueueLocked(c, event, data) {
			n++
		}
	}
	return n
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(models.Envelope{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return nil, false
	}
	return data, true
}

// enqueueLocked must run under at least the read lock so it cannot race the
// close in Unregister.
func (h *Hub) enqueueLocked(c *Client, event string, data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		observability.EventsDropped.WithLabelValues(event).Inc()
		h.logger.Warn("client queue full, dropping event", "client_id", c.ID, "user_id", c.UserID, "event", event)
		return false
	}
}

func (h *Hub) addLocked(group string, c *Client) {
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[group] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) removeLocked(group string, c *Client) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// userInRoomLocked reports whether another connection of userID is still in
// the room; the mirror tracks identities, not connections.
func (h *Hub) userInRoomLocked(roomKey, userID string) bool {
	for c := range h.groups[roomGroup(roomKey)] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) mirrorLeft(ctx context.Context, roomKey, userID string) {
	if h.mirror == nil {
		return
	}
	if err := h.mirror.Left(ctx, roomKey, userID); err != nil {
		h.logger.Warn("presence mirror leave failed", "room", roomKey, "user_id", userID, "error", err)
	}
}
