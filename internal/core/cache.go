package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/roomrelay/internal/store"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// roomBuffer holds the most recent messages of one room, newest first.
// Appends take mu for writing; history reads hold it for reading.
type roomBuffer struct {
	mu       sync.RWMutex
	messages []Message
}

// RoomCache is the in-process recent-message buffer with write-through to the
// message store. Reads prefer the store and fall back to the buffer only when the
// store has no rows (or cannot be reached).
//
// The buffer may run ahead of the store: a failed persist leaves the appended
// message in memory, so history served from the fallback can include messages
// the store never saw.
type RoomCache struct {
	mu    sync.RWMutex
	rooms map[string]*roomBuffer
	limit int

	store store.MessageStore
	reads singleflight.Group
	now   func() time.Time
	log   *zerolog.Logger
}

// NewRoomCache creates a cache bounded to limit messages per room.
// now stamps appended messages; nil selects time.Now.
func NewRoomCache(st store.MessageStore, limit int, now func() time.Time, logger *zerolog.Logger) *RoomCache {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RoomCache{
		rooms: make(map[string]*roomBuffer),
		limit: limit,
		store: st,
		now:   now,
		log:   logger,
	}
}

func (c *RoomCache) buffer(room string) *roomBuffer {
	c.mu.RLock()
	buf, ok := c.rooms[room]
	c.mu.RUnlock()
	if ok {
		return buf
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok = c.rooms[room]; !ok {
		buf = &roomBuffer{}
		c.rooms[room] = buf
	}
	return buf
}

// Append stamps msg with a record ID and creation time, inserts it at the head of
// its room and writes it through to the store, then hands it to deliver.
// Everything happens under the room's write lock, so the (created_at, id) order
// the store reads back is the order members were delivered.
// A store failure is returned wrapped in ErrStoreUnavailable; the cached message stays.
func (c *RoomCache) Append(ctx context.Context, msg Message, deliver func(Message)) (Message, error) {
	buf := c.buffer(msg.Room)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	msg.ID = utils.NewRecordID()
	msg.CreatedAt = c.stamp(buf)

	buf.messages = append([]Message{msg}, buf.messages...)
	if len(buf.messages) > c.limit {
		buf.messages = buf.messages[:c.limit]
	}

	var persistErr error
	if c.store != nil {
		if _, err := c.store.InsertMessage(ctx, msg.toStore()); err != nil {
			c.log.Warn().Err(err).Str("room", msg.Room).Str("message_id", msg.ID).Msg("message cached but not persisted")
			persistErr = fmt.Errorf("persist message: %w: %w", ErrStoreUnavailable, err)
		}
	}

	if deliver != nil {
		deliver(msg)
	}
	return msg, persistErr
}

// stamp returns a creation time strictly after the room's newest message, at
// millisecond precision so every backend keeps the order. Caller holds buf.mu.
func (c *RoomCache) stamp(buf *roomBuffer) time.Time {
	at := c.now().UTC().Truncate(time.Millisecond)
	if len(buf.messages) > 0 {
		if head := buf.messages[0].CreatedAt; !at.After(head) {
			at = head.Add(time.Millisecond)
		}
	}
	return at
}

// Read returns up to the cache limit of messages for room, oldest first. An empty
// room name reads the most recent messages across all rooms.
func (c *RoomCache) Read(ctx context.Context, room string) []Message {
	msgs, _ := c.Subscribe(ctx, room, nil, nil)
	return msgs
}

// Subscribe runs enter, reads the room's history and hands it to deliver, all
// while holding the room's read lock. No append can land in between, so a member
// added by enter sees each message exactly once, and the history reaches deliver
// before any later live message. An error from enter is returned and nothing is read.
func (c *RoomCache) Subscribe(ctx context.Context, room string, enter func() error, deliver func([]Message)) ([]Message, error) {
	if room == "" {
		if enter != nil {
			if err := enter(); err != nil {
				return nil, err
			}
		}
		msgs := c.readAcrossRooms(ctx)
		if deliver != nil {
			deliver(msgs)
		}
		return msgs, nil
	}

	buf := c.buffer(room)
	buf.mu.RLock()
	defer buf.mu.RUnlock()

	if enter != nil {
		if err := enter(); err != nil {
			return nil, err
		}
	}
	msgs, ok := c.readStore(ctx, room)
	if !ok {
		msgs = snapshotLocked(buf)
	}
	if deliver != nil {
		deliver(msgs)
	}
	return msgs, nil
}

func (c *RoomCache) readAcrossRooms(ctx context.Context) []Message {
	if msgs, ok := c.readStore(ctx, ""); ok {
		return msgs
	}
	return c.recentAcrossRooms()
}

// readStore queries the store, oldest first. Concurrent reads of one room share a
// query; callers hold the room's read lock, so a shared query never predates a
// completed append. ok is false on error or when the store has no rows.
func (c *RoomCache) readStore(ctx context.Context, room string) ([]Message, bool) {
	if c.store == nil {
		return nil, false
	}
	rows, err, _ := c.reads.Do(room, func() (any, error) {
		return c.store.FindMessages(context.WithoutCancel(ctx), room, c.limit)
	})
	if err != nil {
		c.log.Warn().Err(err).Str("room", room).Msg("history read failed, serving cache")
		return nil, false
	}
	stored, _ := rows.([]*store.Message)
	if len(stored) == 0 {
		return nil, false
	}
	out := make([]Message, len(stored))
	for i, m := range stored {
		out[len(stored)-1-i] = messageFromStore(m)
	}
	return out, true
}

// snapshot returns the cached messages of room, oldest first.
func (c *RoomCache) snapshot(room string) []Message {
	c.mu.RLock()
	buf, ok := c.rooms[room]
	c.mu.RUnlock()
	if !ok {
		return []Message{}
	}

	buf.mu.RLock()
	defer buf.mu.RUnlock()
	return snapshotLocked(buf)
}

// snapshotLocked copies buf oldest first. Caller holds buf.mu.
func snapshotLocked(buf *roomBuffer) []Message {
	out := make([]Message, len(buf.messages))
	for i, m := range buf.messages {
		out[len(buf.messages)-1-i] = m
	}
	return out
}

func (c *RoomCache) recentAcrossRooms() []Message {
	c.mu.RLock()
	rooms := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		rooms = append(rooms, name)
	}
	c.mu.RUnlock()

	var all []Message
	for _, name := range rooms {
		all = append(all, c.snapshot(name)...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if len(all) > c.limit {
		all = all[len(all)-c.limit:]
	}
	if all == nil {
		all = []Message{}
	}
	return all
}

// Reset drops every cached room, as a process restart would.
func (c *RoomCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = make(map[string]*roomBuffer)
}
