package core

import (
	"sync"
	"sync/atomic"
)

// DefaultClientBuffer is the size of a client's outbound event queue.
const DefaultClientBuffer = 64

// ClientState tracks where a connection is in its lifecycle.
type ClientState int

const (
	StateNew ClientState = iota
	StateConnected
	StateIdentified
	StateInRoom
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client is a live connection as seen by the core layer.
// The coordinator holds mu for the whole of every operation on the client,
// so events for one connection never run concurrently.
type Client struct {
	ID     string
	Events chan *Event

	mu    sync.Mutex
	state ClientState
	name  string
	owned string
	room  string

	dropped atomic.Int64
}

// NewClient constructs a client with an initialized event queue.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
	}
}

// Name returns the generated display name, empty before connect.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Owned returns the bound owned username, empty until an identity is bound.
func (c *Client) Owned() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owned
}

// Room returns the current conversation room.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// State returns the lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dropped reports how many events were discarded because the queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// identityRoom is the owned username once bound, the display name before. Caller holds mu.
func (c *Client) identityRoom() string {
	if c.owned != "" {
		return c.owned
	}
	return c.name
}

// live reports whether the connection accepts operations. Caller holds mu.
func (c *Client) live() bool {
	return c.state != StateNew && c.state != StateDisconnected
}

// send enqueues an event without blocking.
func (c *Client) send(ev *Event) {
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
		c.dropped.Add(1)
	}
}
