package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vovakirdan/roomrelay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindMessagesNewestFirstBounded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		_, err := s.InsertMessage(ctx, &store.Message{
			Room:      "lobby",
			Sender:    "alice",
			Body:      fmt.Sprintf("msg-%02d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert message %d: %v", i, err)
		}
	}
	if _, err := s.InsertMessage(ctx, &store.Message{Room: "other", Sender: "bob", Body: "elsewhere", CreatedAt: base}); err != nil {
		t.Fatalf("insert other: %v", err)
	}

	msgs, err := s.FindMessages(ctx, "lobby", store.DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("FindMessages failed: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "msg-24" || msgs[19].Body != "msg-05" {
		t.Fatalf("unexpected order: first=%s last=%s", msgs[0].Body, msgs[19].Body)
	}
	for _, m := range msgs {
		if m.Room != "lobby" {
			t.Fatalf("room filter leaked %+v", m)
		}
	}

	all, err := s.FindMessages(ctx, "", store.DefaultHistoryLimit)
	if err != nil {
		t.Fatalf("FindMessages global failed: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("expected 20 global messages, got %d", len(all))
	}
}

func TestFindMessagesSameTimestampKeepsInsertOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, body := range []string{"first", "second", "third"} {
		if _, err := s.InsertMessage(ctx, &store.Message{Room: "r", Sender: "a", Body: body, CreatedAt: at}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	msgs, err := s.FindMessages(ctx, "r", 20)
	if err != nil {
		t.Fatalf("FindMessages failed: %v", err)
	}
	got := []string{msgs[0].Body, msgs[1].Body, msgs[2].Body}
	want := []string{"third", "second", "first"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestUpsertIdentityRebinding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertIdentity(ctx, "alice", "g1")
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if first.CurrentName != "g1" || first.PreviousName != "" || !first.Online {
		t.Fatalf("unexpected first binding: %+v", first)
	}

	if err := s.MarkIdentityOffline(ctx, "alice"); err != nil {
		t.Fatalf("mark offline: %v", err)
	}

	second, err := s.UpsertIdentity(ctx, "alice", "g2")
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if second.OwnedUsername != "alice" || second.CurrentName != "g2" || second.PreviousName != "g1" || !second.Online {
		t.Fatalf("unexpected rebinding: %+v", second)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on rebind: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestIdentityNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindIdentity(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.MarkIdentityOffline(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.SetInPrivate(ctx, "ghost", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetInPrivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertIdentity(ctx, "bob", "calm-otter"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	ident, err := s.SetInPrivate(ctx, "bob", true)
	if err != nil {
		t.Fatalf("set in private: %v", err)
	}
	if !ident.InPrivate {
		t.Fatalf("expected in_private true: %+v", ident)
	}

	// Rebinding keeps the flag.
	ident, err = s.UpsertIdentity(ctx, "bob", "quiet-heron")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if !ident.InPrivate {
		t.Fatalf("rebind reset in_private: %+v", ident)
	}
}

func TestInsertPrivateMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pm, err := s.InsertPrivateMessage(ctx, &store.PrivateMessage{Sender: "alice", Receiver: "bob", Body: "psst"})
	if err != nil {
		t.Fatalf("insert private: %v", err)
	}
	if pm.ID == "" || pm.Sender != "alice" || pm.Receiver != "bob" || pm.Body != "psst" || pm.CreatedAt.IsZero() {
		t.Fatalf("unexpected stored private message: %+v", pm)
	}
}

func TestSocketsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := s.InsertSocket(ctx, fmt.Sprintf("name-%d", i), fmt.Sprintf("sock-%d", i)); err != nil {
			t.Fatalf("insert socket: %v", err)
		}
	}

	page, err := s.ListSockets(ctx, 3, 1)
	if err != nil {
		t.Fatalf("list sockets: %v", err)
	}
	if len(page.Data) != 3 || page.TotalRecords != 7 || page.TotalPages != 3 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if page.NextPage == nil || *page.NextPage != 2 || page.PrevPage != nil {
		t.Fatalf("unexpected navigation: next=%v prev=%v", page.NextPage, page.PrevPage)
	}

	last, err := s.ListSockets(ctx, 3, 3)
	if err != nil {
		t.Fatalf("list sockets last: %v", err)
	}
	if len(last.Data) != 1 || last.NextPage != nil || last.PrevPage == nil || *last.PrevPage != 2 {
		t.Fatalf("unexpected last page: %+v", last)
	}

	if err := s.DeleteSocket(ctx, "name-0"); err != nil {
		t.Fatalf("delete socket: %v", err)
	}
	if err := s.DeleteSocket(ctx, "never-existed"); err != nil {
		t.Fatalf("delete missing socket should be a no-op: %v", err)
	}
	after, err := s.ListSockets(ctx, 10, 1)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if after.TotalRecords != 6 {
		t.Fatalf("expected 6 sockets after delete, got %d", after.TotalRecords)
	}
}
