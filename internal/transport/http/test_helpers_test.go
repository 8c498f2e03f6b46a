package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/store/sqlite"
)

type testServer struct {
	*httptest.Server
	coord *core.Coordinator
	store *sqlite.SQLiteStore
}

// startTestServer runs the full router over an in-memory SQLite store.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	disabledLogger := zerolog.New(nil)
	coord := core.NewCoordinator(st, core.Options{HistoryLimit: cfg.HistoryLimit}, &disabledLogger)
	server := NewServer(coord, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, coord: coord, store: st}
}

func (ts *testServer) wsURL() string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

// wsClient is a test connection that has already read its username greeting.
type wsClient struct {
	t    *testing.T
	ctx  context.Context
	conn *websocket.Conn
	name string
}

func dialClient(t *testing.T, ctx context.Context, ts *testServer) *wsClient {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, ts.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	c := &wsClient{t: t, ctx: ctx, conn: conn}
	var greeting proto.EventUsernameData
	c.expectEvent(proto.EventUsername, &greeting)
	if greeting.Name == "" || greeting.Socket == "" {
		t.Fatalf("unexpected greeting: %+v", greeting)
	}
	c.name = greeting.Name
	return c
}

func (c *wsClient) send(typ string, data any) {
	c.t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		c.t.Fatalf("send %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func (c *wsClient) read() rawOutbound {
	c.t.Helper()

	var out rawOutbound
	if err := wsjson.Read(c.ctx, c.conn, &out); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return out
}

// expectEvent reads frames until the named event arrives, skipping other events.
func (c *wsClient) expectEvent(event string, into any) {
	c.t.Helper()

	for {
		out := c.read()
		if out.Type == proto.OutboundTypeError {
			c.t.Fatalf("expected %s, got error %+v", event, out.Error)
		}
		if out.Event != event {
			continue
		}
		if into != nil {
			if err := json.Unmarshal(out.Data, into); err != nil {
				c.t.Fatalf("unmarshal %s: %v", event, err)
			}
		}
		return
	}
}

// expectError reads frames until an error frame arrives.
func (c *wsClient) expectError(code string) {
	c.t.Helper()

	for {
		out := c.read()
		if out.Type != proto.OutboundTypeError {
			continue
		}
		if out.Error == nil || out.Error.Code != code {
			c.t.Fatalf("expected error %s, got %+v", code, out.Error)
		}
		return
	}
}
