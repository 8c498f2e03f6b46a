package core

import (
	"fmt"
	"sort"
	"sync"
)

// maxNameAttempts bounds generation retries in each phase (plain, then suffixed).
const maxNameAttempts = 32

// Registry maps each live connection to a display name unique among live connections.
// It also tracks the owned usernames claimed by live connections, so that display
// names, owned usernames and the rooms named after them never overlap.
type Registry struct {
	mu       sync.RWMutex
	byConn   map[string]string
	byName   map[string]string
	claims   map[string]string
	owners   map[string]int
	generate func() string
	suffix   func() string
	members  func(room string) []string
}

// NewRegistry creates an empty registry. A nil generator selects RandomName.
func NewRegistry(generate func() string) *Registry {
	if generate == nil {
		generate = RandomName
	}
	return &Registry{
		byConn:   make(map[string]string),
		byName:   make(map[string]string),
		claims:   make(map[string]string),
		owners:   make(map[string]int),
		generate: generate,
		suffix:   numericSuffix,
	}
}

// UseRooms lets the registry see room occupancy: a generated name is never the
// name of an occupied room, and a claim may not take over a room other
// connections sit in. members returns the connection ids in a room.
func (r *Registry) UseRooms(members func(room string) []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = members
}

// Register assigns a display name to connID. Registering the same connection
// again returns its existing name.
func (r *Registry) Register(connID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.byConn[connID]; ok {
		return name, nil
	}

	name, ok := r.pick()
	if !ok {
		return "", fmt.Errorf("register %s: %w", connID, ErrNameSpaceExhausted)
	}
	r.byConn[connID] = name
	r.byName[name] = connID
	return name, nil
}

// pick finds an unused name. Caller holds mu.
func (r *Registry) pick() (string, bool) {
	for i := 0; i < maxNameAttempts; i++ {
		if name := r.generate(); name != "" && !r.taken(name) {
			return name, true
		}
	}
	for i := 0; i < maxNameAttempts; i++ {
		if name := r.generate() + "-" + r.suffix(); !r.taken(name) {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.byName[name]; ok {
		return true
	}
	if r.owners[name] > 0 {
		return true
	}
	return r.members != nil && len(r.members(name)) > 0
}

// Claim records that connID is bound to the owned username, replacing any
// previous claim. An empty owned drops the claim. It fails with ErrValidation
// when owned is another live connection's display name, or names a room holding
// connections that are not bound to owned.
func (r *Registry) Claim(connID, owned string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owned != "" {
		if holder, ok := r.byName[owned]; ok && holder != connID {
			return fmt.Errorf("claim %q: %w: name is another connection's display name", owned, ErrValidation)
		}
		if r.members != nil {
			for _, id := range r.members(owned) {
				if id != connID && r.claims[id] != owned {
					return fmt.Errorf("claim %q: %w: name is an occupied room", owned, ErrValidation)
				}
			}
		}
	}

	r.releaseLocked(connID)
	if owned != "" {
		r.claims[connID] = owned
		r.owners[owned]++
	}
	return nil
}

func (r *Registry) releaseLocked(connID string) {
	prev, ok := r.claims[connID]
	if !ok {
		return
	}
	delete(r.claims, connID)
	if r.owners[prev]--; r.owners[prev] <= 0 {
		delete(r.owners, prev)
	}
}

// Occupy runs join unless room is the identity of another live connection:
// its display name, or an owned username connID is not bound to.
func (r *Registry) Occupy(connID, room string, join func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.byName[room]; ok && holder != connID {
		return fmt.Errorf("join %q: %w: room is reserved for private messages", room, ErrValidation)
	}
	if r.owners[room] > 0 && r.claims[connID] != room {
		return fmt.Errorf("join %q: %w: room is reserved for private messages", room, ErrValidation)
	}
	join()
	return nil
}

// Unregister removes the display name and any claim of connID. It is a no-op when absent.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked(connID)
	name, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	delete(r.byName, name)
}

// Name returns the display name for connID.
func (r *Registry) Name(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byConn[connID]
	return name, ok
}

// List returns the currently registered display names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
