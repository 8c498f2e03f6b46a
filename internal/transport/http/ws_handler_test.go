package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t, nil)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketJoinAndMessage(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialClient(t, ctx, ts)
	bob := dialClient(t, ctx, ts)

	alice.send(proto.InboundTypeHandleUser, proto.HandleUserData{Username: "alice"})
	var handled proto.EventUserHandledData
	alice.expectEvent(proto.EventUserHandled, &handled)
	if handled.Username != "alice" || handled.GeneratedUsername != alice.name || !handled.Online {
		t.Fatalf("unexpected user_handled: %+v", handled)
	}

	alice.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "lobby"})
	var history proto.EventMessagesData
	alice.expectEvent(proto.EventMessages, &history)
	if len(history.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}

	bob.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "lobby"})
	bob.expectEvent(proto.EventMessages, nil)

	alice.send(proto.InboundTypeMessage, proto.MessageData{Room: "lobby", Message: "hi"})

	var got proto.EventResponseData
	bob.expectEvent(proto.EventResponse, &got)
	if got.Sender != "alice" || got.Room != "lobby" || got.Message != "hi" || got.DateTime == "" {
		t.Fatalf("unexpected response payload: %+v", got)
	}
	var echo proto.EventResponseData
	alice.expectEvent(proto.EventResponse, &echo)
	if echo.ID != got.ID {
		t.Fatalf("sender saw a different message: %+v vs %+v", echo, got)
	}

	late := dialClient(t, ctx, ts)
	late.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "lobby"})
	var replay proto.EventMessagesData
	late.expectEvent(proto.EventMessages, &replay)
	if len(replay.Messages) != 1 || replay.Messages[0].Message != "hi" || replay.Messages[0].Sender != "alice" {
		t.Fatalf("unexpected replay: %+v", replay)
	}
}

func TestWebSocketValidationKeepsConnection(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)

	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{})
	c.expectError(core.ErrCodeBadRequest)

	if err := wsjson.Write(ctx, c.conn, proto.Inbound{Type: proto.InboundTypeMessage, Data: []byte(`"not an object"`)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	c.expectError(core.ErrCodeBadRequest)

	c.send("dance", struct{}{})
	c.expectError("invalid_message")

	c.send(proto.InboundTypeMessage, proto.MessageData{Room: "lobby", Message: "nobody home"})
	c.expectError(core.ErrCodeNotInRoom)

	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "lobby"})
	c.expectEvent(proto.EventMessages, nil)
}

func TestWebSocketPrivateMessage(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialClient(t, ctx, ts)
	bob := dialClient(t, ctx, ts)

	bob.send(proto.InboundTypeHandleUser, proto.HandleUserData{Username: "bob"})
	bob.expectEvent(proto.EventUserHandled, nil)

	alice.send(proto.InboundTypePrivate, proto.PrivateData{Sender: "alice", Receiver: "bob", Message: "psst"})

	var resp proto.EventRespData
	bob.expectEvent(proto.EventResp, &resp)
	if resp.Sender != "alice" || resp.Receiver != "bob" || resp.Message != "psst" {
		t.Fatalf("unexpected resp payload: %+v", resp)
	}

	// Nobody is in the "carol" room: no error comes back to the sender.
	alice.send(proto.InboundTypePrivate, proto.PrivateData{Receiver: "carol", Message: "hello?"})
	alice.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "after"})
	alice.expectEvent(proto.EventMessages, nil)
}

func TestWebSocketPrivateWindow(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)
	c.send(proto.InboundTypeHandleUser, proto.HandleUserData{Username: "dana"})
	c.expectEvent(proto.EventUserHandled, nil)

	c.send(proto.InboundTypePrivateJoined, proto.PrivateWindowData{})
	var flag proto.EventInPrivateData
	c.expectEvent(proto.EventInPrivate, &flag)
	if flag.Username != "dana" || !flag.InPrivate {
		t.Fatalf("unexpected in_private: %+v", flag)
	}

	c.send(proto.InboundTypePrivateLeft, proto.PrivateWindowData{Username: "dana"})
	c.expectEvent(proto.EventInPrivate, &flag)
	if flag.InPrivate {
		t.Fatalf("flag not cleared: %+v", flag)
	}
}

func TestWebSocketRemoveClosesConnection(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)
	c.send(proto.InboundTypeRemove, proto.RemoveData{})

	var removed proto.EventRemovedData
	c.expectEvent(proto.EventRemoved, &removed)
	if removed.Sender != c.name {
		t.Fatalf("unexpected removed payload: %+v", removed)
	}

	var out rawOutbound
	err := wsjson.Read(ctx, c.conn, &out)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(ts.coord.OnlineNames()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry not cleared: %v", ts.coord.OnlineNames())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketDisconnectMarksIdentityOffline(t *testing.T) {
	ts := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)
	c.send(proto.InboundTypeHandleUser, proto.HandleUserData{Username: "erin"})
	c.expectEvent(proto.EventUserHandled, nil)
	c.conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for {
		ident, err := ts.store.FindIdentity(ctx, "erin")
		if err != nil {
			t.Fatalf("find identity: %v", err)
		}
		if !ident.Online {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("identity still online after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	ts := startTestServer(t, func(cfg *config.Config) { cfg.RateLimitPerMinute = 2 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)
	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "a"})
	c.expectEvent(proto.EventMessages, nil)
	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "b"})
	c.expectEvent(proto.EventMessages, nil)
	c.send(proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: "c"})
	c.expectError(core.ErrCodeRateLimited)
}

func TestWebSocketReadLimit(t *testing.T) {
	ts := startTestServer(t, func(cfg *config.Config) { cfg.MaxMessageBytes = 128 })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := dialClient(t, ctx, ts)
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'x'
	}
	c.send(proto.InboundTypeMessage, proto.MessageData{Room: "lobby", Message: string(big)})

	var out rawOutbound
	err := wsjson.Read(ctx, c.conn, &out)
	if err == nil {
		t.Fatal("expected the oversized frame to close the connection")
	}
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.StatusMessageTooBig {
		t.Fatalf("unexpected close code: %v", closeErr.Code)
	}
}
