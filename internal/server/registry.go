package server

import (
	"sync"

	"github.com/google/uuid"
)

// SessionRegistry maps authenticated users to their live connection and
// rooms to their current subscriber sets. It is the only shared mutable
// structure in the gateway; a single coarse mutex keeps every mutation
// linearizable, and no lock is ever held across an RPC or database call.
type SessionRegistry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		clients: make(map[uuid.UUID]*Client),
		rooms:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Register installs c as the user's connection, returning the handle it
// replaced, if any. The caller is responsible for closing the replaced
// connection.
func (sr *SessionRegistry) Register(c *Client) *Client {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	prev := sr.clients[c.userId]
	sr.clients[c.userId] = c

	return prev
}

// Unregister removes c and drops its user from every room subscription.
// It is idempotent and a no-op when the user has already been replaced by
// a newer connection.
func (sr *SessionRegistry) Unregister(c *Client) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if current, ok := sr.clients[c.userId]; !ok || current != c {
		return
	}

	delete(sr.clients, c.userId)
	for roomId, members := range sr.rooms {
		delete(members, c.userId)
		if len(members) == 0 {
			delete(sr.rooms, roomId)
		}
	}
}

func (sr *SessionRegistry) Subscribe(roomId, userId uuid.UUID) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	members, ok := sr.rooms[roomId]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		sr.rooms[roomId] = members
	}
	members[userId] = struct{}{}
}

func (sr *SessionRegistry) Unsubscribe(roomId, userId uuid.UUID) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	members, ok := sr.rooms[roomId]
	if !ok {
		return
	}
	delete(members, userId)
	if len(members) == 0 {
		delete(sr.rooms, roomId)
	}
}

// Clients returns a snapshot of every live connection.
func (sr *SessionRegistry) Clients() []*Client {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	clients := make([]*Client, 0, len(sr.clients))
	for _, c := range sr.clients {
		clients = append(clients, c)
	}
	return clients
}

// Resolve returns the live connection for a user, if one is registered.
func (sr *SessionRegistry) Resolve(userId uuid.UUID) (*Client, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	c, ok := sr.clients[userId]
	return c, ok
}

// MembersOf returns a snapshot of the room's current subscribers. Later
// mutations do not affect the returned slice; fan-out uses this snapshot
// so joins and leaves racing a broadcast neither gain nor lose delivery.
func (sr *SessionRegistry) MembersOf(roomId uuid.UUID) []uuid.UUID {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	members := make([]uuid.UUID, 0, len(sr.rooms[roomId]))
	for userId := range sr.rooms[roomId] {
		members = append(members, userId)
	}
	return members
}
