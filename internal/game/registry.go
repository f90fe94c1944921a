package game

import (
	"sync"

	"github.com/google/uuid"
)

// SendFunc delivers one event to a single connection. Implementations must not
// block: the websocket layer hands the write to a buffered per-connection pump and
// drops the frame if the client cannot keep up.
type SendFunc func(ev Event)

// Client is one live connection's binding to a room. Bindings are ephemeral; they
// exist from subscribe until disconnect and are never persisted.
type Client struct {
	ConnID   uuid.UUID
	UserID   uuid.UUID
	Username string
	RoomID   string
	Send     SendFunc
}

// Registry tracks which connections are subscribed to which rooms. It is shared by
// every session in the process; rooms never contend with each other beyond the
// registry's own short critical sections.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Client
	rooms map[string]map[uuid.UUID]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]*Client),
		rooms: make(map[string]map[uuid.UUID]*Client),
	}
}

// Bind registers the client under its connection id and room.
func (r *Registry) Bind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ConnID] = c
	room, ok := r.rooms[c.RoomID]
	if !ok {
		room = make(map[uuid.UUID]*Client)
		r.rooms[c.RoomID] = room
	}
	room[c.ConnID] = c
}

// Unbind removes the connection and returns its binding, or nil if unknown.
func (r *Registry) Unbind(connID uuid.UUID) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	if room, ok := r.rooms[c.RoomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, c.RoomID)
		}
	}
	return c
}

// Subscribers returns the current bindings for a room.
func (r *Registry) Subscribers(roomID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[roomID]
	out := make([]*Client, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}

// Broadcast delivers the event to every subscriber of the room, best-effort.
func (r *Registry) Broadcast(roomID string, ev Event) {
	for _, c := range r.Subscribers(roomID) {
		c.Send(ev)
	}
}

// BroadcastExcept delivers the event to every subscriber except one connection,
// used for presence notices that should not echo back to their origin.
func (r *Registry) BroadcastExcept(roomID string, except uuid.UUID, ev Event) {
	for _, c := range r.Subscribers(roomID) {
		if c.ConnID == except {
			continue
		}
		c.Send(ev)
	}
}

// SendTo delivers an event to one connection if it is still bound.
func (r *Registry) SendTo(connID uuid.UUID, ev Event) {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if ok {
		c.Send(ev)
	}
}
