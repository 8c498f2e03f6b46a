package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/store"
)

var errStoreDown = errors.New("store down")

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain discards every queued event.
func drain(c *Client) {
	for {
		select {
		case <-c.Events:
		default:
			return
		}
	}
}

// expectNoEvent fails if an event of kind is queued for c.
func expectNoEvent(t *testing.T, c *Client, kind EventKind) {
	t.Helper()

	for {
		select {
		case ev := <-c.Events:
			if ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		default:
			return
		}
	}
}

// fakeStore is an in-memory store.Store whose calls can be made to fail.
type fakeStore struct {
	mu sync.Mutex

	messages   []*store.Message
	privates   []*store.PrivateMessage
	identities map[string]*store.Identity
	sockets    map[string]*store.Socket

	failInsertMessage bool
	failFindMessages  bool
	failPrivate       bool
	failIdentity      bool
	failSockets       bool

	// findGate, when set, makes the next FindMessages close findStarted and
	// wait for the gate to close.
	findGate    chan struct{}
	findStarted chan struct{}

	findCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: make(map[string]*store.Identity),
		sockets:    make(map[string]*store.Socket),
	}
}

func (f *fakeStore) fail(flag *bool, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*flag = v
}

func (f *fakeStore) InsertMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertMessage {
		return nil, errStoreDown
	}
	cp := *msg
	f.messages = append(f.messages, &cp)
	return &cp, nil
}

func (f *fakeStore) FindMessages(_ context.Context, room string, limit int) ([]*store.Message, error) {
	f.mu.Lock()
	gate, started := f.findGate, f.findStarted
	f.findGate, f.findStarted = nil, nil
	f.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.failFindMessages {
		return nil, errStoreDown
	}
	var out []*store.Message
	for _, m := range f.messages {
		if room == "" || m.Room == room {
			cp := *m
			out = append(out, &cp)
		}
	}
	// Newest first by (created_at, id), as the real backends order rows.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// gateNextFind arms the next FindMessages to block until the returned release is called.
func (f *fakeStore) gateNextFind() (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.findGate = gate
	f.findStarted = make(chan struct{})
	return f.findStarted, func() { close(gate) }
}

func (f *fakeStore) InsertPrivateMessage(_ context.Context, msg *store.PrivateMessage) (*store.PrivateMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrivate {
		return nil, errStoreDown
	}
	cp := *msg
	f.privates = append(f.privates, &cp)
	return &cp, nil
}

func (f *fakeStore) UpsertIdentity(_ context.Context, owned, generated string) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIdentity {
		return nil, errStoreDown
	}
	now := time.Now().UTC()
	ident, ok := f.identities[owned]
	if !ok {
		ident = &store.Identity{OwnedUsername: owned, CreatedAt: now}
		f.identities[owned] = ident
	} else {
		ident.PreviousName = ident.CurrentName
	}
	ident.CurrentName = generated
	ident.Online = true
	ident.UpdatedAt = now
	cp := *ident
	return &cp, nil
}

func (f *fakeStore) FindIdentity(_ context.Context, owned string) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIdentity {
		return nil, errStoreDown
	}
	ident, ok := f.identities[owned]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *ident
	return &cp, nil
}

func (f *fakeStore) MarkIdentityOffline(_ context.Context, owned string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIdentity {
		return errStoreDown
	}
	ident, ok := f.identities[owned]
	if !ok {
		return store.ErrNotFound
	}
	ident.Online = false
	return nil
}

func (f *fakeStore) SetInPrivate(_ context.Context, owned string, inPrivate bool) (*store.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIdentity {
		return nil, errStoreDown
	}
	ident, ok := f.identities[owned]
	if !ok {
		return nil, store.ErrNotFound
	}
	ident.InPrivate = inPrivate
	cp := *ident
	return &cp, nil
}

func (f *fakeStore) InsertSocket(_ context.Context, generatedName, socketID string) (*store.Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSockets {
		return nil, errStoreDown
	}
	now := time.Now().UTC()
	s := &store.Socket{ID: fmt.Sprintf("sock-%d", len(f.sockets)), SocketID: socketID, Username: generatedName, CreatedAt: now, UpdatedAt: now}
	f.sockets[generatedName] = s
	return s, nil
}

func (f *fakeStore) DeleteSocket(_ context.Context, generatedName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSockets {
		return errStoreDown
	}
	delete(f.sockets, generatedName)
	return nil
}

func (f *fakeStore) ListSockets(_ context.Context, limit, page int) (store.Page[*store.Socket], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSockets {
		return store.Page[*store.Socket]{}, errStoreDown
	}
	all := make([]*store.Socket, 0, len(f.sockets))
	for _, s := range f.sockets {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	start := store.Offset(limit, page)
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return store.NewPage(all[start:end], limit, page, len(all)), nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) identity(owned string) (store.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.identities[owned]
	if !ok {
		return store.Identity{}, false
	}
	return *ident, true
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) privateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.privates)
}

func (f *fakeStore) socketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets)
}

// sequenceNames returns a generator yielding names in order, then repeating the last one.
func sequenceNames(names ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		name := names[i]
		if i < len(names)-1 {
			i++
		}
		return name
	}
}

func newTestCoordinator(t *testing.T, st *fakeStore, names ...string) *Coordinator {
	t.Helper()

	logger := zerolog.New(nil)
	opts := Options{}
	if len(names) > 0 {
		opts.NameGenerator = sequenceNames(names...)
	}
	return NewCoordinator(st, opts, &logger)
}

// steppingClock returns a clock that starts at start and moves by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at := next
		next = next.Add(step)
		return at
	}
}

// connect registers a fresh client and discards its greeting.
func connect(t *testing.T, co *Coordinator, id string) *Client {
	t.Helper()

	c := NewClient(id, 64)
	if _, err := co.OnConnect(context.Background(), c); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	mustEvent(t, c.Events, EventUsername)
	return c
}
