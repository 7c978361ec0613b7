package service

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adwski/webrtc-signal-relay/backend/model"
	"github.com/adwski/webrtc-signal-relay/backend/storage/memory"
	sw "github.com/adwski/webrtc-signal-relay/backend/switch"
)

// dispatch routes a single message. Only protocol violations are returned;
// application errors are reported to the sender and routing misses are
// dropped.
func (svc *Service) dispatch(conn *sw.Connection, p model.Packet, logger *zerolog.Logger) error {
	msg := p.Message
	if msg.SenderID != "" && msg.SenderID != conn.ID {
		logger.Debug().
			Str("senderId", msg.SenderID).
			Str("type", msg.Type.String()).
			Msg("message with foreign sender id dropped")
		return nil
	}

	switch msg.Type {
	case model.TypeCreateRoom:
		svc.createRoom(conn, msg.RoomCode, logger)
	case model.TypeJoinRoom:
		svc.joinRoom(conn, msg.RoomCode, logger)
	case model.TypeJoinOrCreate:
		svc.joinOrCreateRoom(conn, msg.RoomID, logger)
	case model.TypeLeaveRoom:
		svc.leaveRoom(conn, logger)
	case model.TypeOffer, model.TypeAnswer, model.TypeIceCandidate:
		svc.relay(conn, p, logger)
	default:
		return fmt.Errorf("%w: unexpected inbound %s message", model.ErrInvalidMessage, msg.Type)
	}
	return nil
}

func (svc *Service) createRoom(conn *sw.Connection, code string, logger *zerolog.Logger) {
	if _, taken := svc.store.RoomIDByCode(code); taken {
		svc.reportError(conn.ID, errors.Join(ErrCreate, memory.ErrRoomAlreadyExists), logger)
		return
	}
	svc.leaveCurrent(conn, logger)

	room, err := svc.store.CreateRoom(code, conn.ID)
	if err != nil {
		svc.reportError(conn.ID, errors.Join(ErrCreate, err), logger)
		return
	}
	svc.enter(conn, room)

	logger.Debug().
		Str("roomID", room.ID).
		Str("roomCode", room.Code).
		Msg("room created")
}

func (svc *Service) joinRoom(conn *sw.Connection, code string, logger *zerolog.Logger) {
	roomID, ok := svc.store.RoomIDByCode(code)
	if !ok {
		svc.reportError(conn.ID, errors.Join(ErrJoin, memory.ErrRoomNotFound), logger)
		return
	}
	if conn.RoomID != roomID {
		svc.leaveCurrent(conn, logger)
	}

	room, err := svc.store.JoinRoom(code, conn.ID)
	if err != nil {
		svc.reportError(conn.ID, errors.Join(ErrJoin, err), logger)
		return
	}
	svc.enter(conn, room)

	logger.Debug().
		Str("roomID", room.ID).
		Str("roomCode", room.Code).
		Msg("joined room")
}

func (svc *Service) joinOrCreateRoom(conn *sw.Connection, roomID string, logger *zerolog.Logger) {
	if conn.RoomID != roomID {
		svc.leaveCurrent(conn, logger)
	}

	room, created, err := svc.store.JoinOrCreateRoom(roomID, conn.ID)
	if err != nil {
		svc.reportError(conn.ID, errors.Join(ErrJoin, err), logger)
		return
	}
	svc.enter(conn, room)

	logger.Debug().
		Str("roomID", room.ID).
		Str("roomCode", room.Code).
		Bool("created", created).
		Msg("joined room by id")
}

func (svc *Service) leaveRoom(conn *sw.Connection, logger *zerolog.Logger) {
	if conn.RoomID == "" {
		logger.Debug().Msg("leave without room ignored")
		return
	}
	svc.leaveCurrent(conn, logger)
}

// leaveCurrent removes the connection from its current room, if any, and
// always clears its room reference.
func (svc *Service) leaveCurrent(conn *sw.Connection, logger *zerolog.Logger) {
	roomID := conn.RoomID
	if roomID == "" {
		return
	}
	svc.sw.SetRoom(conn.ID, "")

	room, deleted, err := svc.store.LeaveRoom(roomID, conn.ID)
	if err != nil {
		logger.Debug().Err(err).Str("roomID", roomID).Msg("stale room reference cleared")
		return
	}
	if deleted {
		logger.Debug().
			Str("roomID", roomID).
			Str("roomCode", room.Code).
			Msg("room deleted")
		return
	}
	svc.broadcastPeerList(room.ID)
}

func (svc *Service) enter(conn *sw.Connection, room model.Room) {
	svc.sw.SetRoom(conn.ID, room.ID)
	svc.broadcastPeerList(room.ID)
}

// relay forwards a negotiation message to its target. Messages that
// already carry the sender's id are forwarded byte for byte. Messages
// without one are re-encoded with the sender's id stamped in, which
// normalizes the envelope and drops unknown fields.
func (svc *Service) relay(conn *sw.Connection, p model.Packet, logger *zerolog.Logger) {
	if p.Message.TargetID == "" {
		logger.Debug().Str("type", p.Message.Type.String()).Msg("relay without target dropped")
		return
	}

	payload := p.Raw
	if p.Message.SenderID == "" {
		msg := p.Message
		msg.SenderID = conn.ID
		b, err := model.Encode(msg)
		if err != nil {
			logger.Error().Err(err).Msg("failed to encode relayed message")
			return
		}
		payload = b
	}

	if !svc.sw.Send(p.Message.TargetID, payload) {
		logger.Debug().
			Str("dst", p.Message.TargetID).
			Str("type", p.Message.Type.String()).
			Msg("relay dropped, target unavailable")
	}
}

// broadcastPeerList sends the current member list of the room to all of
// its members.
func (svc *Service) broadcastPeerList(roomID string) {
	room, err := svc.store.GetRoom(roomID)
	if err != nil {
		svc.logger.Debug().Err(err).Str("roomID", roomID).Msg("peer list not sent")
		return
	}
	b, err := model.Encode(model.NewPeerList(room))
	if err != nil {
		svc.logger.Error().Err(err).Str("roomID", roomID).Msg("failed to encode peer list")
		return
	}
	for _, member := range room.Members {
		svc.sw.Send(member, b)
	}
}

func (svc *Service) reportError(target string, err error, logger *zerolog.Logger) {
	logger.Debug().Err(err).Msg("request failed")
	svc.send(target, model.NewError(target, errorText(err)))
}

func (svc *Service) send(target string, msg model.Message) {
	b, err := model.Encode(msg)
	if err != nil {
		svc.logger.Error().Err(err).Str("type", msg.Type.String()).Msg("failed to encode message")
		return
	}
	svc.sw.Send(target, b)
}

// errorText is the client-facing description of an application error.
func errorText(err error) string {
	switch {
	case errors.Is(err, memory.ErrRoomAlreadyExists):
		return "Room already exists"
	case errors.Is(err, memory.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, memory.ErrCodeSpaceExhausted):
		return "Unable to allocate room code"
	default:
		return "Request failed"
	}
}
