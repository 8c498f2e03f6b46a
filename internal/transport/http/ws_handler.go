package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomrelay/internal/config"
	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
	"github.com/vovakirdan/roomrelay/internal/utils"
)

// errRemoved ends a connection after the client asked to be removed.
var errRemoved = errors.New("client removed")

// WSHandler upgrades HTTP connections and bridges them to the coordinator.
type WSHandler struct {
	coord           *core.Coordinator
	log             *zerolog.Logger
	clientBuffer    int
	rateLimit       int
	maxMessageBytes int64
	originPatterns  []string
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(coord *core.Coordinator, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		coord:           coord,
		log:             logger,
		clientBuffer:    cfg.ClientBuffer,
		rateLimit:       cfg.RateLimitPerMinute,
		maxMessageBytes: cfg.MaxMessageBytes,
		originPatterns:  cfg.OriginPatterns,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: len(h.originPatterns) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), h.clientBuffer)
	if _, err := h.coord.OnConnect(ctx, client); err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("failed to register connection")
		conn.Close(websocket.StatusTryAgainLater, "no display name available")
		return
	}
	// Teardown must finish even though the request context is already done.
	defer h.coord.OnDisconnect(context.WithoutCancel(ctx), client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limiter := newRateLimiter(h.rateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errRemoved) {
		conn.Close(status, "removed")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop handles inbound frames one at a time, so the coordinator sees a
// connection's events in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			}
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, errorFrame(&proto.Error{Code: core.ErrCodeRateLimited, Msg: "too many messages"})); err != nil {
				return err
			}
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Debug().Str("conn_id", client.ID).Str("type", inbound.Type).Str("reason", protoErr.Msg).Msg("rejected inbound")
			if err := wsjson.Write(ctx, conn, errorFrame(protoErr)); err != nil {
				return err
			}
			continue
		}

		if err := h.coord.Dispatch(ctx, client, cmd); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Str("type", inbound.Type).Msg("command failed")
			if writeErr := wsjson.Write(ctx, conn, errorFrameFromErr(err)); writeErr != nil {
				return writeErr
			}
		}

		if cmd.Kind == core.CommandRemove {
			sender := cmd.Sender
			if sender == "" {
				sender = client.Name()
			}
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeEvent,
				Event: proto.EventRemoved,
				Data:  proto.EventRemovedData{Sender: sender},
			}); err != nil {
				return err
			}
			return errRemoved
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
