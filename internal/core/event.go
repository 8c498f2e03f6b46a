package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUsername tells a new connection which display name it was given.
	EventUsername EventKind = iota
	// EventHistory delivers room history to a client upon joining a room.
	EventHistory
	// EventRoomMessage notifies room members about a chat message.
	EventRoomMessage
	// EventPrivateMessage delivers a private message to the receiver's identity room.
	EventPrivateMessage
	// EventUserHandled confirms an identity binding.
	EventUserHandled
	// EventInPrivate reports the private-window flag of an identity.
	EventInPrivate
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	User      string
	Socket    string
	Message   Message
	Messages  []Message // For EventHistory
	Private   *PrivateMessage
	Identity  *Identity
	InPrivate bool
}
