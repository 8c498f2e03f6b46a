package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// NotSentBody replaces the body of a private message that could not be persisted.
const NotSentBody = "Error: Message not sent!"

// PrivateRelay persists private messages and forwards them to the receiver's identity room.
type PrivateRelay struct {
	store   store.PrivateMessageStore
	members *Membership
	now     func() time.Time
	log     *zerolog.Logger
}

// NewPrivateRelay creates a relay delivering through members.
func NewPrivateRelay(st store.PrivateMessageStore, members *Membership, now func() time.Time, logger *zerolog.Logger) *PrivateRelay {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PrivateRelay{store: st, members: members, now: now, log: logger}
}

// Relay stores the message and delivers it to every connection in the receiver's
// identity room other than from. A failed persist is delivered with NotSentBody
// instead of the original body and is not reported as an error. The number of
// connections the message was queued for is returned.
func (r *PrivateRelay) Relay(ctx context.Context, from *Client, sender, receiver, body string) (PrivateMessage, int) {
	pm := PrivateMessage{
		ID:        utils.NewRecordID(),
		Sender:    sender,
		Receiver:  receiver,
		Body:      body,
		CreatedAt: r.now().UTC(),
	}

	if _, err := r.store.InsertPrivateMessage(ctx, &store.PrivateMessage{
		ID:        pm.ID,
		Sender:    pm.Sender,
		Receiver:  pm.Receiver,
		Body:      pm.Body,
		CreatedAt: pm.CreatedAt,
	}); err != nil {
		r.log.Warn().Err(err).Str("sender", sender).Str("receiver", receiver).Msg("private message not persisted")
		pm.Body = NotSentBody
	}

	delivered := 0
	for _, member := range r.members.Members(receiver) {
		if from != nil && member.ID == from.ID {
			continue
		}
		msg := pm
		member.send(&Event{Kind: EventPrivateMessage, Room: receiver, Private: &msg})
		delivered++
	}
	if delivered == 0 {
		r.log.Debug().Str("receiver", receiver).Msg("private message receiver offline")
	}
	return pm, delivered
}
