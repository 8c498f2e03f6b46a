package core

import (
	"time"

	"github.com/vovakirdan/roomrelay/internal/store"
)

// Message is the domain model for a chat-room message.
type Message struct {
	ID        string
	Room      string
	Sender    string
	Body      string
	CreatedAt time.Time
}

// PrivateMessage is a point-to-point message between two names.
type PrivateMessage struct {
	ID        string
	Sender    string
	Receiver  string
	Body      string
	CreatedAt time.Time
}

// Identity is a durable owned username and the display name it is currently bound to.
type Identity struct {
	OwnedUsername string
	CurrentName   string
	PreviousName  string
	Online        bool
	InPrivate     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func messageFromStore(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		Room:      m.Room,
		Sender:    m.Sender,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func (m Message) toStore() *store.Message {
	return &store.Message{
		ID:        m.ID,
		Room:      m.Room,
		Sender:    m.Sender,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func identityFromStore(i *store.Identity) *Identity {
	return &Identity{
		OwnedUsername: i.OwnedUsername,
		CurrentName:   i.CurrentName,
		PreviousName:  i.PreviousName,
		Online:        i.Online,
		InPrivate:     i.InPrivate,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}
