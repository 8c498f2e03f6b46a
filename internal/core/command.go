package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom moves the client into a conversation room.
	CommandJoinRoom CommandKind = iota
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandPrivateMessage relays a message to another identity room.
	CommandPrivateMessage
	// CommandBindIdentity binds an owned username to the connection's display name.
	CommandBindIdentity
	// CommandPrivateJoined marks the identity as having its private window open.
	CommandPrivateJoined
	// CommandPrivateLeft clears the private-window flag.
	CommandPrivateLeft
	// CommandRemove tears the connection down on the client's request.
	CommandRemove
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Room     string
	Sender   string
	Receiver string
	Username string
	Text     string
}
