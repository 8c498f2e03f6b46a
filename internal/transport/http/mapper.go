package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/vovakirdan/roomrelay/internal/core"
	"github.com/vovakirdan/roomrelay/internal/proto"
)

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// decode unmarshals inbound data, treating a missing payload as empty.
func decode(data json.RawMessage, v any) *proto.Error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid payload: " + err.Error())
	}
	return nil
}

// inboundToCommand validates an inbound frame. Malformed frames yield a protocol
// error and never reach the coordinator.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		var join proto.JoinRoomData
		if perr := decode(inbound.Data, &join); perr != nil {
			return nil, perr
		}
		if strings.TrimSpace(join.Room) == "" {
			return nil, badRequest("room is required")
		}
		return &core.Command{
			Kind:   core.CommandJoinRoom,
			Room:   join.Room,
			Sender: join.Sender,
		}, nil
	case proto.InboundTypeMessage:
		var msg proto.MessageData
		if perr := decode(inbound.Data, &msg); perr != nil {
			return nil, perr
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, badRequest("message is required")
		}
		return &core.Command{
			Kind:   core.CommandSendRoomMessage,
			Room:   msg.Room,
			Sender: msg.Sender,
			Text:   msg.Message,
		}, nil
	case proto.InboundTypePrivate:
		var pm proto.PrivateData
		if perr := decode(inbound.Data, &pm); perr != nil {
			return nil, perr
		}
		if strings.TrimSpace(pm.Receiver) == "" {
			return nil, badRequest("receiver is required")
		}
		return &core.Command{
			Kind:     core.CommandPrivateMessage,
			Sender:   pm.Sender,
			Receiver: pm.Receiver,
			Text:     pm.Message,
		}, nil
	case proto.InboundTypeRemove:
		var rm proto.RemoveData
		if perr := decode(inbound.Data, &rm); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandRemove, Sender: rm.Sender}, nil
	case proto.InboundTypeHandleUser:
		var hu proto.HandleUserData
		if perr := decode(inbound.Data, &hu); perr != nil {
			return nil, perr
		}
		if strings.TrimSpace(hu.Username) == "" {
			return nil, badRequest("username is required")
		}
		return &core.Command{Kind: core.CommandBindIdentity, Username: hu.Username}, nil
	case proto.InboundTypePrivateJoined, proto.InboundTypePrivateLeft:
		var pw proto.PrivateWindowData
		if perr := decode(inbound.Data, &pw); perr != nil {
			return nil, perr
		}
		kind := core.CommandPrivateJoined
		if inbound.Type == proto.InboundTypePrivateLeft {
			kind = core.CommandPrivateLeft
		}
		return &core.Command{Kind: kind, Username: pw.Username}, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func responseFromMessage(msg core.Message) proto.EventResponseData {
	return proto.EventResponseData{
		ID:       msg.ID,
		Sender:   msg.Sender,
		Room:     msg.Room,
		Message:  msg.Body,
		DateTime: formatTime(msg.CreatedAt),
	}
}

func errorFrame(perr *proto.Error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeError, Error: perr}
}

func errorFrameFromErr(err error) proto.Outbound {
	ce := core.AsCoreError(err)
	return errorFrame(&proto.Error{Code: ce.Code, Msg: ce.Message})
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventUsername:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUsername,
			Data:  proto.EventUsernameData{Name: event.User, Socket: event.Socket},
		}
	case core.EventHistory:
		messages := make([]proto.EventResponseData, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, responseFromMessage(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessages,
			Data:  proto.EventMessagesData{Room: event.Room, Messages: messages},
		}
	case core.EventRoomMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventResponse,
			Data:  responseFromMessage(event.Message),
		}
	case core.EventPrivateMessage:
		if event.Private == nil {
			break
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventResp,
			Data: proto.EventRespData{
				ID:       event.Private.ID,
				Sender:   event.Private.Sender,
				Receiver: event.Private.Receiver,
				Message:  event.Private.Body,
				DateTime: formatTime(event.Private.CreatedAt),
			},
		}
	case core.EventUserHandled:
		if event.Identity == nil {
			break
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserHandled,
			Data: proto.EventUserHandledData{
				Username:          event.Identity.OwnedUsername,
				GeneratedUsername: event.Identity.CurrentName,
				PreviousUsername:  event.Identity.PreviousName,
				Online:            event.Identity.Online,
			},
		}
	case core.EventInPrivate:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventInPrivate,
			Data:  proto.EventInPrivateData{Username: event.User, InPrivate: event.InPrivate},
		}
	}
	return proto.Outbound{Type: proto.OutboundTypeEvent}
}
