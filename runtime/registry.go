// Package runtime holds the ephemeral real-time state: which connections
// are alive, which rooms they joined, and how events reach them. Nothing
// here is persisted.
package runtime

import (
	"sync"

	"chat-hub/contract"
	"chat-hub/domain"

	"github.com/google/uuid"
)

type connection struct {
	userID uuid.UUID
	sink   contract.EventSink
	rooms  map[domain.RoomID]struct{}
}

// Registry tracks live connections. Presence is backed by a per-user
// connection count, not a boolean, so a second tab's disconnect never
// marks an active user offline.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnectionID]*connection
	rooms  map[domain.RoomID]map[domain.ConnectionID]struct{}
	byUser map[uuid.UUID]map[domain.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[domain.ConnectionID]*connection),
		rooms:  make(map[domain.RoomID]map[domain.ConnectionID]struct{}),
		byUser: make(map[uuid.UUID]map[domain.ConnectionID]struct{}),
	}
}

// Register binds an authenticated connection to its user and sink.
// Returns true when this is the user's first live connection, which is
// the moment presence flips to online.
func (r *Registry) Register(conn domain.ConnectionID, userID uuid.UUID, sink contract.EventSink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn] = &connection{userID: userID, sink: sink, rooms: make(map[domain.RoomID]struct{})}
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[domain.ConnectionID]struct{})
	}
	r.byUser[userID][conn] = struct{}{}
	return len(r.byUser[userID]) == 1
}

// Unregister removes the connection from every room and from the user's
// connection set. Returns the user, whether this was their last live
// connection, and the rooms the connection had joined so presence can be
// broadcast to them.
func (r *Registry) Unregister(conn domain.ConnectionID) (uuid.UUID, bool, []domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[conn]
	if !ok {
		return uuid.Nil, false, nil
	}
	delete(r.conns, conn)

	rooms := make([]domain.RoomID, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
		r.removeFromRoom(conn, room)
	}

	userConns := r.byUser[c.userID]
	delete(userConns, conn)
	last := len(userConns) == 0
	if last {
		delete(r.byUser, c.userID)
	}
	return c.userID, last, rooms
}

// Join is idempotent and scoped to one connection; it never touches
// durable membership.
func (r *Registry) Join(conn domain.ConnectionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[conn]
	if !ok {
		return
	}
	c.rooms[room] = struct{}{}
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[domain.ConnectionID]struct{})
	}
	r.rooms[room][conn] = struct{}{}
}

func (r *Registry) Leave(conn domain.ConnectionID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[conn]
	if !ok {
		return
	}
	delete(c.rooms, room)
	r.removeFromRoom(conn, room)
}

// SinksForRoom resolves every live sink joined to the room, optionally
// excluding one connection (typing events skip the sender's own tabs).
func (r *Registry) SinksForRoom(room domain.RoomID, exclude domain.ConnectionID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(members))
	for conn := range members {
		if conn == exclude {
			continue
		}
		if c, ok := r.conns[conn]; ok {
			sinks = append(sinks, c.sink)
		}
	}
	return sinks
}

func (r *Registry) SinksForUser(userID uuid.UUID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for conn := range r.byUser[userID] {
		if c, ok := r.conns[conn]; ok {
			sinks = append(sinks, c.sink)
		}
	}
	return sinks
}

func (r *Registry) Rooms(conn domain.ConnectionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[conn]
	if !ok {
		return nil
	}
	rooms := make([]domain.RoomID, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// removeFromRoom must run under the write lock. Empty room sets are
// dropped so the map does not grow forever.
func (r *Registry) removeFromRoom(conn domain.ConnectionID, room domain.RoomID) {
	if members, ok := r.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}
