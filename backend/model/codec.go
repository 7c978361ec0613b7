package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var nullLiteral = []byte("null")

// wireMessage is the JSON envelope. Pointers distinguish absent fields
// from zero values.
type wireMessage struct {
	Type     *MessageType `json:"type"`
	TargetID string       `json:"targetId"`
	SenderID string       `json:"senderId"`

	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	IceCandidate json.RawMessage `json:"iceCandidate,omitempty"`

	ClientID     *string   `json:"clientId,omitempty"`
	PeerList     *[]string `json:"peerList,omitempty"`
	RoomCode     *string   `json:"roomCode,omitempty"`
	RoomID       *string   `json:"roomId,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
}

// Frame is one inbound transport frame. A text frame carries a single
// message; every chunk of a binary frame is an independent message.
type Frame struct {
	Binary bool
	Chunks [][]byte
}

func TextFrame(b []byte) Frame {
	return Frame{Chunks: [][]byte{b}}
}

func BinaryFrame(chunks ...[]byte) Frame {
	return Frame{Binary: true, Chunks: chunks}
}

// Size is the total byte length across all chunks.
func (f Frame) Size() int {
	var n int
	for _, c := range f.Chunks {
		n += len(c)
	}
	return n
}

// Packet is a decoded message along with the bytes it was decoded from.
type Packet struct {
	Message Message
	Raw     []byte
}

// DecodeFrame decodes every message carried by the frame, in frame order.
// The frame is rejected as a whole if any of its messages is invalid.
func DecodeFrame(f Frame) ([]Packet, error) {
	if len(f.Chunks) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidMessage)
	}
	if !f.Binary {
		raw := bytes.Join(f.Chunks, nil)
		msg, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		return []Packet{{Message: msg, Raw: raw}}, nil
	}

	packets := make([]Packet, 0, len(f.Chunks))
	for i, chunk := range f.Chunks {
		msg, err := Decode(chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		packets = append(packets, Packet{Message: msg, Raw: chunk})
	}
	return packets, nil
}

// Decode parses a single message and validates its required fields.
func Decode(raw []byte) (Message, error) {
	// Payloads are relayed as text frames, which peers reject unless they
	// are valid UTF-8.
	if !utf8.Valid(raw) {
		return Message{}, fmt.Errorf("%w: not valid utf-8", ErrInvalidMessage)
	}
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return Message{}, errors.Join(ErrInvalidMessage, err)
	}
	if w.Type == nil {
		return Message{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if !w.Type.Valid() {
		return Message{}, fmt.Errorf("%w: unknown type %d", ErrInvalidMessage, int(*w.Type))
	}

	msg := Message{
		Type:     *w.Type,
		TargetID: w.TargetID,
		SenderID: w.SenderID,
	}
	switch msg.Type {
	case TypeOffer:
		msg.Offer = w.Offer
	case TypeAnswer:
		msg.Answer = w.Answer
	case TypeIceCandidate:
		msg.IceCandidate = w.IceCandidate
	case TypeClientID:
		msg.ClientID = deref(w.ClientID)
	case TypePeerList:
		if w.PeerList != nil {
			msg.PeerList = *w.PeerList
		}
		msg.RoomCode = deref(w.RoomCode)
		msg.RoomID = deref(w.RoomID)
	case TypeCreateRoom, TypeJoinRoom:
		msg.RoomCode = deref(w.RoomCode)
	case TypeJoinOrCreate:
		msg.RoomID = deref(w.RoomID)
	case TypeError:
		msg.ErrorMessage = deref(w.ErrorMessage)
	}

	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Encode serializes a message, emitting only the fields of its variant.
func Encode(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	typ := msg.Type
	w := wireMessage{
		Type:     &typ,
		TargetID: msg.TargetID,
		SenderID: msg.SenderID,
	}
	switch msg.Type {
	case TypeOffer:
		w.Offer = msg.Offer
	case TypeAnswer:
		w.Answer = msg.Answer
	case TypeIceCandidate:
		w.IceCandidate = msg.IceCandidate
	case TypeClientID:
		w.ClientID = &msg.ClientID
	case TypePeerList:
		w.PeerList = &msg.PeerList
		w.RoomCode = &msg.RoomCode
		w.RoomID = &msg.RoomID
	case TypeCreateRoom, TypeJoinRoom:
		w.RoomCode = &msg.RoomCode
	case TypeJoinOrCreate:
		w.RoomID = &msg.RoomID
	case TypeError:
		w.ErrorMessage = &msg.ErrorMessage
	}
	return json.Marshal(&w)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullLiteral)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
