package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomrelay/internal/proto"
)

const help = `commands:
  /join <room>          switch conversation room
  /user <username>      bind an owned username
  /pm <name> <message>  private message
  /quit                 ask the server to remove this connection
anything else is sent to the current room`

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "", "owned username to bind on connect")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *user != "" {
		if err := send(ctx, conn, proto.InboundTypeHandleUser, proto.HandleUserData{Username: *user}); err != nil {
			return err
		}
	}
	if err := send(ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: *room}); err != nil {
		return err
	}

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println(help)

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, typ string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("! %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		switch out.Event {
		case proto.EventUsername:
			var evt proto.EventUsernameData
			if decode(out, &evt) {
				fmt.Printf("you are %s\n", evt.Name)
			}
		case proto.EventMessages:
			var evt proto.EventMessagesData
			if decode(out, &evt) {
				for _, m := range evt.Messages {
					fmt.Printf("[%s] %s: %s\n", m.Room, m.Sender, m.Message)
				}
			}
		case proto.EventResponse:
			var evt proto.EventResponseData
			if decode(out, &evt) {
				fmt.Printf("[%s] %s: %s\n", evt.Room, evt.Sender, evt.Message)
			}
		case proto.EventResp:
			var evt proto.EventRespData
			if decode(out, &evt) {
				fmt.Printf("(private) %s: %s\n", evt.Sender, evt.Message)
			}
		case proto.EventUserHandled:
			var evt proto.EventUserHandledData
			if decode(out, &evt) {
				fmt.Printf("bound %s to %s\n", evt.Username, evt.GeneratedUsername)
			}
		case proto.EventRemoved:
			fmt.Println("removed by server")
			return
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, out.Data)
		}
	}
}

func decode(out outbound, v any) bool {
	if err := json.Unmarshal(out.Data, v); err != nil {
		log.Printf("unmarshal %s: %v", out.Event, err)
		return false
	}
	return true
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := dispatchLine(ctx, conn, text); err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}

func dispatchLine(ctx context.Context, conn *websocket.Conn, text string) error {
	if !strings.HasPrefix(text, "/") {
		return send(ctx, conn, proto.InboundTypeMessage, proto.MessageData{Message: text})
	}

	fields := strings.SplitN(text, " ", 3)
	switch fields[0] {
	case "/join":
		if len(fields) < 2 {
			fmt.Println(help)
			return nil
		}
		return send(ctx, conn, proto.InboundTypeJoinRoom, proto.JoinRoomData{Room: fields[1]})
	case "/user":
		if len(fields) < 2 {
			fmt.Println(help)
			return nil
		}
		return send(ctx, conn, proto.InboundTypeHandleUser, proto.HandleUserData{Username: fields[1]})
	case "/pm":
		if len(fields) < 3 {
			fmt.Println(help)
			return nil
		}
		return send(ctx, conn, proto.InboundTypePrivate, proto.PrivateData{Receiver: fields[1], Message: fields[2]})
	case "/quit":
		return send(ctx, conn, proto.InboundTypeRemove, proto.RemoveData{})
	default:
		fmt.Println(help)
		return nil
	}
}
