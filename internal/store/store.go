package store

import (
	"context"
	"errors"
	"time"
)

// DefaultHistoryLimit bounds every room history query.
const DefaultHistoryLimit = 20

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Message represents a persisted chat-room message.
type Message struct {
	ID        string
	Room      string
	Sender    string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrivateMessage represents a persisted point-to-point message.
type PrivateMessage struct {
	ID        string
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity binds a durable owned username to the display name of its latest connection.
type Identity struct {
	OwnedUsername string
	CurrentName   string
	PreviousName  string
	Online        bool
	InPrivate     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Socket records which display name a live connection was given.
type Socket struct {
	ID        string
	SocketID  string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageStore handles room message persistence.
type MessageStore interface {
	// InsertMessage persists a message and returns the stored row.
	InsertMessage(ctx context.Context, msg *Message) (*Message, error)

	// FindMessages returns up to limit messages sorted by creation time, newest first.
	// An empty room returns the most recent messages across all rooms.
	FindMessages(ctx context.Context, room string, limit int) ([]*Message, error)
}

// PrivateMessageStore handles private message persistence.
type PrivateMessageStore interface {
	// InsertPrivateMessage persists a private message and returns the stored row.
	InsertPrivateMessage(ctx context.Context, msg *PrivateMessage) (*PrivateMessage, error)
}

// IdentityStore handles owned username bindings.
type IdentityStore interface {
	// UpsertIdentity atomically creates the identity or rebinds it to generatedName,
	// moving the old current name into PreviousName and marking it online.
	UpsertIdentity(ctx context.Context, ownedUsername, generatedName string) (*Identity, error)

	// FindIdentity returns ErrNotFound when the username was never bound.
	FindIdentity(ctx context.Context, ownedUsername string) (*Identity, error)

	// MarkIdentityOffline returns ErrNotFound when the username was never bound.
	MarkIdentityOffline(ctx context.Context, ownedUsername string) error

	// SetInPrivate toggles the private-window flag.
	SetInPrivate(ctx context.Context, ownedUsername string, inPrivate bool) (*Identity, error)
}

// SocketStore handles connection-to-display-name bindings.
type SocketStore interface {
	InsertSocket(ctx context.Context, generatedName, socketID string) (*Socket, error)

	// DeleteSocket removes the binding for a display name. Missing bindings are not an error.
	DeleteSocket(ctx context.Context, generatedName string) error

	// ListSockets returns one page of bindings, most recently updated first.
	ListSockets(ctx context.Context, limit, page int) (Page[*Socket], error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	PrivateMessageStore
	IdentityStore
	SocketStore

	// Close closes the underlying database connection.
	Close() error
}
