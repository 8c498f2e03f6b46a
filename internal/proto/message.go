package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom      = "join_room"
	InboundTypeMessage       = "message"
	InboundTypePrivate       = "private"
	InboundTypeRemove        = "remove"
	InboundTypeHandleUser    = "handle_user"
	InboundTypePrivateJoined = "private_joined"
	InboundTypePrivateLeft   = "private_left"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventUsername    = "username"
	EventMessages    = "messages"
	EventResponse    = "response"
	EventResp        = "resp"
	EventUserHandled = "user_handled"
	EventInPrivate   = "in_private"
	EventRemoved     = "removed"
)

// JoinRoomData requests a move into a conversation room.
type JoinRoomData struct {
	Sender  string `json:"sender,omitempty"`
	Room    string `json:"room"`
	Message string `json:"message,omitempty"`
}

// MessageData is a chat message for a room.
type MessageData struct {
	Sender  string `json:"sender,omitempty"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message"`
}

// PrivateData is a point-to-point message. Sender defaults to the connection's identity.
type PrivateData struct {
	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
}

// RemoveData asks the server to drop the connection.
type RemoveData struct {
	Sender string `json:"sender,omitempty"`
}

// HandleUserData binds an owned username to the connection.
type HandleUserData struct {
	Username string `json:"username"`
}

// PrivateWindowData toggles the private-window flag of an owned username.
type PrivateWindowData struct {
	Username string `json:"username,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventUsernameData greets a new connection with its display name.
type EventUsernameData struct {
	Name   string `json:"name"`
	Socket string `json:"socket"`
}

// EventResponseData is a room message.
type EventResponseData struct {
	ID       string `json:"id,omitempty"`
	Sender   string `json:"sender"`
	Room     string `json:"room"`
	Message  string `json:"message"`
	DateTime string `json:"date_time"`
}

// EventMessagesData is the history sent after joining a room, oldest first.
type EventMessagesData struct {
	Room     string              `json:"room,omitempty"`
	Messages []EventResponseData `json:"messages"`
}

// EventRespData is a private message.
type EventRespData struct {
	ID       string `json:"id,omitempty"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Message  string `json:"message"`
	DateTime string `json:"date_time,omitempty"`
}

// EventUserHandledData confirms an identity binding.
type EventUserHandledData struct {
	Username          string `json:"username"`
	GeneratedUsername string `json:"generated_username"`
	PreviousUsername  string `json:"previous_username,omitempty"`
	Online            bool   `json:"online"`
}

// EventInPrivateData reports the private-window flag.
type EventInPrivateData struct {
	Username  string `json:"username"`
	InPrivate bool   `json:"in_private"`
}

// EventRemovedData is the last frame before a requested close.
type EventRemovedData struct {
	Sender string `json:"sender"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
