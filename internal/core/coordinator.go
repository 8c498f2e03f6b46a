package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// BroadcastSender is the sender of server broadcasts that name none.
const BroadcastSender = "server"

// MaxSocketsPage caps the page size of the socket listing.
const MaxSocketsPage = 100

// Options tunes a Coordinator. Zero values select defaults.
type Options struct {
	HistoryLimit  int
	Now           func() time.Time
	NameGenerator func() string
}

// Coordinator is the single shared object behind every connection handler.
// It owns the registry, room membership and message cache, and writes through
// to the durable store.
type Coordinator struct {
	store      store.Store
	registry   *Registry
	members    *Membership
	cache      *RoomCache
	identities *IdentityService
	relay      *PrivateRelay

	now func() time.Time
	log *zerolog.Logger
}

// NewCoordinator wires the session components around st.
func NewCoordinator(st store.Store, opts Options, logger *zerolog.Logger) *Coordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = store.DefaultHistoryLimit
	}

	members := NewMembership()
	registry := NewRegistry(opts.NameGenerator)
	registry.UseRooms(members.MemberIDs)
	return &Coordinator{
		store:      st,
		registry:   registry,
		members:    members,
		cache:      NewRoomCache(st, opts.HistoryLimit, opts.Now, logger),
		identities: NewIdentityService(st, logger),
		relay:      NewPrivateRelay(st, members, opts.Now, logger),
		now:        opts.Now,
		log:        logger,
	}
}

// OnConnect assigns a display name, places the connection in its identity room
// and greets it with an EventUsername. Calling it again for a connected client
// returns the name it already has.
func (co *Coordinator) OnConnect(ctx context.Context, c *Client) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateDisconnected:
		return "", ErrNotConnected
	case StateNew:
	default:
		return c.name, nil
	}

	name, err := co.registry.Register(c.ID)
	if err != nil {
		return "", err
	}
	c.name = name
	c.state = StateConnected
	co.members.Enter(c, name)

	if _, err := co.store.InsertSocket(ctx, name, c.ID); err != nil {
		co.log.Warn().Err(err).Str("conn_id", c.ID).Str("name", name).Msg("socket binding not persisted")
	}

	co.log.Info().Str("conn_id", c.ID).Str("name", name).Msg("client connected")
	c.send(&Event{Kind: EventUsername, User: name, Socket: c.ID})
	return name, nil
}

// OnBindIdentity binds owned to the connection's display name and moves the
// connection into the owned username's identity room. An owned username that is
// another live connection's display name, or a room other connections occupy,
// is rejected with ErrValidation.
func (co *Coordinator) OnBindIdentity(ctx context.Context, c *Client, owned string) (*Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live() {
		return nil, ErrNotConnected
	}
	owned = strings.TrimSpace(owned)
	if owned == "" {
		return nil, fmt.Errorf("bind identity: %w: username is required", ErrValidation)
	}

	if err := co.registry.Claim(c.ID, owned); err != nil {
		return nil, err
	}
	ident, err := co.identities.Bind(ctx, owned, c.name)
	if err != nil {
		if restoreErr := co.registry.Claim(c.ID, c.owned); restoreErr != nil {
			co.log.Warn().Err(restoreErr).Str("username", c.owned).Msg("previous identity claim not restored")
		}
		return nil, err
	}

	if c.owned != "" && c.owned != ident.OwnedUsername {
		if err := co.identities.MarkOffline(ctx, c.owned); err != nil {
			co.log.Warn().Err(err).Str("username", c.owned).Msg("previous identity not marked offline")
		}
	}

	oldRoom := c.identityRoom()
	c.owned = ident.OwnedUsername
	if newRoom := c.identityRoom(); newRoom != oldRoom {
		if oldRoom != c.room {
			co.members.Leave(c, oldRoom)
		}
		co.members.Enter(c, newRoom)
	}
	if c.state == StateConnected {
		c.state = StateIdentified
	}

	co.log.Info().Str("conn_id", c.ID).Str("name", c.name).Str("username", c.owned).Msg("identity bound")
	c.send(&Event{Kind: EventUserHandled, User: c.owned, Identity: ident})
	return ident, nil
}

// OnJoinRoom moves the connection into room, leaving any previous conversation
// room, and sends it the room's history. The join and the history read are atomic
// with respect to room messages. Rooms that are another connection's identity
// cannot be joined.
func (co *Coordinator) OnJoinRoom(ctx context.Context, c *Client, room string) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live() {
		return nil, ErrNotConnected
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("join room: %w: room is required", ErrValidation)
	}

	enter := func() error {
		return co.registry.Occupy(c.ID, room, func() {
			co.members.Join(c, room, c.identityRoom())
		})
	}
	history, err := co.cache.Subscribe(ctx, room, enter, func(msgs []Message) {
		c.send(&Event{Kind: EventHistory, Room: room, Messages: msgs})
	})
	if err != nil {
		return nil, err
	}
	c.room = room
	c.state = StateInRoom

	co.log.Debug().Str("conn_id", c.ID).Str("room", room).Int("history", len(history)).Msg("joined room")
	return history, nil
}

// OnMessage caches, persists and fans a message out to every member of room,
// the sender included. An empty room means the connection's current room and
// an empty sender means its identity. When the persist fails the message is
// still delivered and returned together with an ErrStoreUnavailable error.
func (co *Coordinator) OnMessage(ctx context.Context, c *Client, room, sender, body string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live() {
		return Message{}, ErrNotConnected
	}
	if room == "" {
		room = c.room
	}
	if room == "" || !co.members.IsMember(c.ID, room) {
		return Message{}, fmt.Errorf("send to %q: %w", room, ErrNotInRoom)
	}
	if strings.TrimSpace(body) == "" {
		return Message{}, fmt.Errorf("send to %q: %w: message is required", room, ErrValidation)
	}
	if sender == "" {
		sender = c.identityRoom()
	}

	msg := Message{Room: room, Sender: sender, Body: body}
	return co.cache.Append(ctx, msg, func(m Message) {
		for _, member := range co.members.Members(m.Room) {
			member.send(&Event{Kind: EventRoomMessage, Room: m.Room, User: m.Sender, Message: m})
		}
	})
}

// OnPrivateMessage relays body to the receiver's identity room. An empty sender
// defaults to the connection's identity room: the owned username once bound, the
// display name before. Delivery never fails once the request
// is valid: an absent receiver or a failed persist is not an error.
func (co *Coordinator) OnPrivateMessage(ctx context.Context, c *Client, sender, receiver, body string) (PrivateMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live() {
		return PrivateMessage{}, ErrNotConnected
	}
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		return PrivateMessage{}, fmt.Errorf("private message: %w: receiver is required", ErrValidation)
	}
	if sender == "" {
		sender = c.identityRoom()
	}

	pm, delivered := co.relay.Relay(ctx, c, sender, receiver, body)
	co.log.Debug().Str("conn_id", c.ID).Str("receiver", receiver).Int("delivered", delivered).Msg("private message relayed")
	return pm, nil
}

// OnPrivateWindow records whether owned has its private window open and answers
// with an EventInPrivate. An empty owned means the connection's bound identity.
func (co *Coordinator) OnPrivateWindow(ctx context.Context, c *Client, owned string, inPrivate bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live() {
		return false, ErrNotConnected
	}
	if owned == "" {
		owned = c.owned
	}

	ident, err := co.identities.SetInPrivate(ctx, owned, inPrivate)
	if err != nil {
		return false, err
	}
	c.send(&Event{Kind: EventInPrivate, User: ident.OwnedUsername, InPrivate: ident.InPrivate})
	return ident.InPrivate, nil
}

// OnDisconnect clears every trace of the connection: rooms, registry entry and
// socket binding, and marks a bound identity offline. Store failures are logged.
// It is safe to call more than once.
func (co *Coordinator) OnDisconnect(ctx context.Context, c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected {
		return
	}
	wasLive := c.live()
	c.state = StateDisconnected
	if !wasLive {
		return
	}

	rooms := co.members.LeaveAll(c)
	co.registry.Unregister(c.ID)

	if err := co.identities.MarkOffline(ctx, c.owned); err != nil {
		co.log.Warn().Err(err).Str("username", c.owned).Msg("identity not marked offline")
	}
	if err := co.store.DeleteSocket(ctx, c.name); err != nil {
		co.log.Warn().Err(err).Str("name", c.name).Msg("socket binding not deleted")
	}

	co.log.Info().
		Str("conn_id", c.ID).
		Str("name", c.name).
		Strs("rooms", rooms).
		Int64("dropped", c.Dropped()).
		Msg("client disconnected")
}

// Dispatch routes a transport command to the matching operation.
func (co *Coordinator) Dispatch(ctx context.Context, c *Client, cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("dispatch: %w: empty command", ErrValidation)
	}

	var err error
	switch cmd.Kind {
	case CommandJoinRoom:
		_, err = co.OnJoinRoom(ctx, c, cmd.Room)
	case CommandSendRoomMessage:
		_, err = co.OnMessage(ctx, c, cmd.Room, cmd.Sender, cmd.Text)
	case CommandPrivateMessage:
		_, err = co.OnPrivateMessage(ctx, c, cmd.Sender, cmd.Receiver, cmd.Text)
	case CommandBindIdentity:
		_, err = co.OnBindIdentity(ctx, c, cmd.Username)
	case CommandPrivateJoined:
		_, err = co.OnPrivateWindow(ctx, c, cmd.Username, true)
	case CommandPrivateLeft:
		_, err = co.OnPrivateWindow(ctx, c, cmd.Username, false)
	case CommandRemove:
		co.OnDisconnect(ctx, c)
	default:
		err = fmt.Errorf("dispatch: %w: unknown command %d", ErrValidation, cmd.Kind)
	}
	return err
}

// Broadcast sends a server message without a connection. With a room it is
// cached, persisted and fanned out like OnMessage, minus the membership check.
// Without one it reaches every live connection once and is not stored.
// It returns the message and how many connections it was queued for.
func (co *Coordinator) Broadcast(ctx context.Context, room, sender, body string) (Message, int, error) {
	if strings.TrimSpace(body) == "" {
		return Message{}, 0, fmt.Errorf("broadcast: %w: message is required", ErrValidation)
	}
	if sender = strings.TrimSpace(sender); sender == "" {
		sender = BroadcastSender
	}

	room = strings.TrimSpace(room)
	delivered := 0
	if room == "" {
		msg := Message{
			ID:        utils.NewRecordID(),
			Sender:    sender,
			Body:      body,
			CreatedAt: co.now().UTC(),
		}
		for _, c := range co.members.Clients() {
			c.send(&Event{Kind: EventRoomMessage, User: msg.Sender, Message: msg})
			delivered++
		}
		co.log.Info().Str("sender", sender).Int("delivered", delivered).Msg("broadcast to all connections")
		return msg, delivered, nil
	}

	msg, err := co.cache.Append(ctx, Message{Room: room, Sender: sender, Body: body}, func(m Message) {
		for _, member := range co.members.Members(m.Room) {
			member.send(&Event{Kind: EventRoomMessage, Room: m.Room, User: m.Sender, Message: m})
			delivered++
		}
	})
	co.log.Info().Str("room", room).Str("sender", sender).Int("delivered", delivered).Msg("broadcast to room")
	return msg, delivered, err
}

// LookupIdentity reports the identity bound to owned. Store failures read as absent.
func (co *Coordinator) LookupIdentity(ctx context.Context, owned string) (*Identity, bool) {
	return co.identities.Lookup(ctx, strings.TrimSpace(owned))
}

// History returns a room's recent messages oldest first. An empty room reads
// across all rooms.
func (co *Coordinator) History(ctx context.Context, room string) []Message {
	return co.cache.Read(ctx, room)
}

// OnlineNames lists the display names of live connections.
func (co *Coordinator) OnlineNames() []string {
	return co.registry.List()
}

// ListSockets returns one page of persisted socket bindings.
func (co *Coordinator) ListSockets(ctx context.Context, limit, page int) (store.Page[*store.Socket], error) {
	limit, page = store.NormalizePage(limit, page, MaxSocketsPage)
	p, err := co.store.ListSockets(ctx, limit, page)
	if err != nil {
		return store.Page[*store.Socket]{}, fmt.Errorf("list sockets: %w: %w", ErrStoreUnavailable, err)
	}
	return p, nil
}

// ResetCache drops the in-memory message cache.
func (co *Coordinator) ResetCache() {
	co.cache.Reset()
}
