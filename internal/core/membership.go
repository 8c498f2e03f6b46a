package core

import (
	"sort"
	"sync"
)

// Membership enforces one conversation room plus one identity room per connection.
// Rooms are created on first join and dropped when they empty.
type Membership struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	joined map[string]map[string]struct{}
}

// NewMembership creates an empty membership manager.
func NewMembership() *Membership {
	return &Membership{
		rooms:  make(map[string]*Room),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join removes c from every room except identityRoom, then adds it to room.
// Joining the room the client is already in changes nothing.
func (m *Membership) Join(c *Client, room, identityRoom string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.joined[c.ID] {
		if name != identityRoom && name != room {
			m.leaveLocked(c, name)
		}
	}
	m.enterLocked(c, room)
}

// Enter adds c to room without touching its other memberships.
// It is used for the identity room.
func (m *Membership) Enter(c *Client, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enterLocked(c, room)
}

// Leave removes c from a single room.
func (m *Membership) Leave(c *Client, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(c, room)
}

// LeaveAll removes c from every room, identity room included, and returns
// the rooms it left.
func (m *Membership) LeaveAll(c *Client) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	left := make([]string, 0, len(m.joined[c.ID]))
	for name := range m.joined[c.ID] {
		left = append(left, name)
		m.leaveLocked(c, name)
	}
	sort.Strings(left)
	return left
}

func (m *Membership) enterLocked(c *Client, name string) {
	room, ok := m.rooms[name]
	if !ok {
		room = NewRoom(name)
		m.rooms[name] = room
	}
	if !room.AddClient(c) {
		return
	}
	set, ok := m.joined[c.ID]
	if !ok {
		set = make(map[string]struct{})
		m.joined[c.ID] = set
	}
	set[name] = struct{}{}
}

func (m *Membership) leaveLocked(c *Client, name string) {
	if room, ok := m.rooms[name]; ok {
		room.RemoveClient(c)
		if room.Empty() {
			delete(m.rooms, name)
		}
	}
	if set, ok := m.joined[c.ID]; ok {
		delete(set, name)
		if len(set) == 0 {
			delete(m.joined, c.ID)
		}
	}
}

// Members returns a snapshot of the clients in room.
func (m *Membership) Members(room string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[room]
	if !ok {
		return nil
	}
	return r.Clients()
}

// Clients returns every connection in any room, each once, sorted by id.
func (m *Membership) Clients() []*Client {
	m.mu.RLock()
	seen := make(map[string]*Client, len(m.joined))
	for _, r := range m.rooms {
		for id, c := range r.clients {
			seen[id] = c
		}
	}
	m.mu.RUnlock()

	out := make([]*Client, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MemberIDs returns the connection ids in room.
func (m *Membership) MemberIDs(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[room]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether connID is in room.
func (m *Membership) IsMember(connID, room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[room]
	return ok && r.Has(connID)
}

// Rooms returns the rooms connID belongs to, sorted.
func (m *Membership) Rooms(connID string) []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.joined[connID]))
	for name := range m.joined[connID] {
		out = append(out, name)
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out
}

// RoomCount returns the number of non-empty rooms.
func (m *Membership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
