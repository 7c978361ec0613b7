package model

import (
	"encoding/json"
	"fmt"
)

type MessageType int

// Message types as they appear on the wire.
const (
	TypeOffer MessageType = iota
	TypeAnswer
	TypeIceCandidate
	TypeClientID
	TypePeerList
	TypeCreateRoom
	TypeJoinRoom
	TypeLeaveRoom
	TypeError
	TypeJoinOrCreate
)

var typeNames = [...]string{
	TypeOffer:        "offer",
	TypeAnswer:       "answer",
	TypeIceCandidate: "ice-candidate",
	TypeClientID:     "client-id",
	TypePeerList:     "peer-list",
	TypeCreateRoom:   "create-room",
	TypeJoinRoom:     "join-room",
	TypeLeaveRoom:    "leave-room",
	TypeError:        "error",
	TypeJoinOrCreate: "join-or-create",
}

func (t MessageType) Valid() bool {
	return t >= TypeOffer && t <= TypeJoinOrCreate
}

func (t MessageType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("unknown(%d)", int(t))
	}
	return typeNames[t]
}

// Message is a signaling message. Type selects the variant; only the
// fields belonging to that variant are meaningful.
//
//	Offer        -> Offer
//	Answer       -> Answer
//	IceCandidate -> IceCandidate
//	ClientID     -> ClientID
//	PeerList     -> PeerList, RoomCode, RoomID
//	CreateRoom   -> RoomCode
//	JoinRoom     -> RoomCode
//	JoinOrCreate -> RoomID
//	Error        -> ErrorMessage
//
// Negotiation payloads are opaque and kept as raw JSON.
type Message struct {
	Type     MessageType
	TargetID string
	SenderID string

	Offer        json.RawMessage
	Answer       json.RawMessage
	IceCandidate json.RawMessage

	ClientID     string
	PeerList     []string
	RoomCode     string
	RoomID       string
	ErrorMessage string
}

// NewClientID builds the identity announcement sent right after admission.
func NewClientID(id string) Message {
	return Message{
		Type:     TypeClientID,
		TargetID: id,
		ClientID: id,
	}
}

// NewPeerList builds the membership update broadcast to a room.
func NewPeerList(room Room) Message {
	peers := make([]string, len(room.Members))
	copy(peers, room.Members)
	return Message{
		Type:     TypePeerList,
		PeerList: peers,
		RoomCode: room.Code,
		RoomID:   room.ID,
	}
}

// NewError builds a targeted error report.
func NewError(target, text string) Message {
	return Message{
		Type:         TypeError,
		TargetID:     target,
		ErrorMessage: text,
	}
}

// IsRelay reports whether the message is forwarded to its target as is.
func (m *Message) IsRelay() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeIceCandidate:
		return true
	default:
		return false
	}
}

// Validate checks that the fields required by the message type are set.
func (m *Message) Validate() error {
	var missing string
	switch m.Type {
	case TypeOffer:
		if isNull(m.Offer) {
			missing = "offer"
		}
	case TypeAnswer:
		if isNull(m.Answer) {
			missing = "answer"
		}
	case TypeIceCandidate:
		if isNull(m.IceCandidate) {
			missing = "iceCandidate"
		}
	case TypeClientID:
		if m.ClientID == "" {
			missing = "clientId"
		}
	case TypePeerList:
		switch {
		case m.PeerList == nil:
			missing = "peerList"
		case m.RoomCode == "":
			missing = "roomCode"
		case m.RoomID == "":
			missing = "roomId"
		}
	case TypeCreateRoom, TypeJoinRoom:
		if m.RoomCode == "" {
			missing = "roomCode"
		}
	case TypeJoinOrCreate:
		if m.RoomID == "" {
			missing = "roomId"
		}
	case TypeError:
		if m.ErrorMessage == "" {
			missing = "errorMessage"
		}
	case TypeLeaveRoom:
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidMessage, int(m.Type))
	}
	if missing != "" {
		return fmt.Errorf("%w: %s message requires %q", ErrInvalidMessage, m.Type, missing)
	}
	return nil
}
