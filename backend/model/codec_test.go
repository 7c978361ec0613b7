package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "offer",
			msg: Message{
				Type:     TypeOffer,
				TargetID: "b",
				SenderID: "a",
				Offer:    json.RawMessage(`{"type":"offer","sdp":"v=0"}`),
			},
		},
		{
			name: "answer",
			msg: Message{
				Type:     TypeAnswer,
				TargetID: "a",
				SenderID: "b",
				Answer:   json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
			},
		},
		{
			name: "ice candidate",
			msg: Message{
				Type:         TypeIceCandidate,
				TargetID:     "a",
				SenderID:     "b",
				IceCandidate: json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0"}`),
			},
		},
		{
			name: "client id",
			msg:  NewClientID("c1"),
		},
		{
			name: "peer list",
			msg:  NewPeerList(Room{ID: "r1", Code: "AB12", Members: []string{"a", "b"}}),
		},
		{
			name: "create room",
			msg:  Message{Type: TypeCreateRoom, SenderID: "a", RoomCode: "AB12"},
		},
		{
			name: "join room",
			msg:  Message{Type: TypeJoinRoom, SenderID: "a", RoomCode: "AB12"},
		},
		{
			name: "join or create",
			msg:  Message{Type: TypeJoinOrCreate, SenderID: "a", RoomID: "r1"},
		},
		{
			name: "leave room",
			msg:  Message{Type: TypeLeaveRoom, SenderID: "a"},
		},
		{
			name: "error",
			msg:  NewError("a", "room not found"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			require.NoError(t, err)

			got, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `not json`},
		{name: "missing type", raw: `{"roomCode":"AB12"}`},
		{name: "null type", raw: `{"type":null,"roomCode":"AB12"}`},
		{name: "string type", raw: `{"type":"5","roomCode":"AB12"}`},
		{name: "unknown type", raw: `{"type":10}`},
		{name: "negative type", raw: `{"type":-1}`},
		{name: "offer without payload", raw: `{"type":0,"targetId":"b"}`},
		{name: "offer with null payload", raw: `{"type":0,"targetId":"b","offer":null}`},
		{name: "answer without payload", raw: `{"type":1,"targetId":"b","offer":{}}`},
		{name: "candidate without payload", raw: `{"type":2,"targetId":"b"}`},
		{name: "client id without id", raw: `{"type":3}`},
		{name: "peer list without room id", raw: `{"type":4,"peerList":["a"],"roomCode":"AB12"}`},
		{name: "peer list with null list", raw: `{"type":4,"peerList":null,"roomCode":"AB12","roomId":"r1"}`},
		{name: "create room without code", raw: `{"type":5}`},
		{name: "create room with null code", raw: `{"type":5,"roomCode":null}`},
		{name: "join room without code", raw: `{"type":6,"roomId":"r1"}`},
		{name: "error without text", raw: `{"type":8,"targetId":"a"}`},
		{name: "join or create without room id", raw: `{"type":9,"roomCode":"AB12"}`},
		{name: "create room with empty code", raw: `{"type":5,"roomCode":""}`},
		{name: "join or create with empty room id", raw: `{"type":9,"roomId":""}`},
		{name: "invalid utf-8 in payload", raw: "{\"type\":0,\"targetId\":\"b\",\"offer\":\"\xff\xfe\"}"},
		{name: "invalid utf-8 in room code", raw: "{\"type\":5,\"roomCode\":\"A\xc3\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestDecode_OnlyVariantFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":5,"senderId":"a","roomCode":"AB12","roomId":"r1","offer":{}}`))
	require.NoError(t, err)

	assert.Equal(t, Message{Type: TypeCreateRoom, SenderID: "a", RoomCode: "AB12"}, msg)
}

func TestDecode_LeaveRoomHasNoRequiredFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":7}`))
	require.NoError(t, err)
	assert.Equal(t, TypeLeaveRoom, msg.Type)
}

func TestDecodeFrame(t *testing.T) {
	join := []byte(`{"type":6,"roomCode":"AB12"}`)
	leave := []byte(`{"type":7}`)

	t.Run("text frame", func(t *testing.T) {
		packets, err := DecodeFrame(TextFrame(join))
		require.NoError(t, err)
		require.Len(t, packets, 1)
		assert.Equal(t, TypeJoinRoom, packets[0].Message.Type)
		assert.Equal(t, join, packets[0].Raw)
	})

	t.Run("binary batch keeps frame order", func(t *testing.T) {
		packets, err := DecodeFrame(BinaryFrame(join, leave, join))
		require.NoError(t, err)
		require.Len(t, packets, 3)
		assert.Equal(t, TypeJoinRoom, packets[0].Message.Type)
		assert.Equal(t, TypeLeaveRoom, packets[1].Message.Type)
		assert.Equal(t, TypeJoinRoom, packets[2].Message.Type)
		assert.Equal(t, leave, packets[1].Raw)
	})

	t.Run("binary chunks are not concatenated", func(t *testing.T) {
		_, err := DecodeFrame(BinaryFrame([]byte(`{"type":6,`), []byte(`"roomCode":"AB12"}`)))
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("one bad chunk fails the batch", func(t *testing.T) {
		packets, err := DecodeFrame(BinaryFrame(join, []byte(`{"type":42}`)))
		assert.ErrorIs(t, err, ErrInvalidMessage)
		assert.Nil(t, packets)
	})

	t.Run("empty frame", func(t *testing.T) {
		_, err := DecodeFrame(Frame{Binary: true})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})
}

func TestFrame_Size(t *testing.T) {
	assert.Equal(t, 0, Frame{}.Size())
	assert.Equal(t, 3, TextFrame([]byte("abc")).Size())
	assert.Equal(t, 7, BinaryFrame([]byte("abc"), []byte("defg")).Size())
}

func TestEncode_RejectsIncompleteMessage(t *testing.T) {
	_, err := Encode(Message{Type: TypePeerList, RoomCode: "AB12", RoomID: "r1"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = Encode(Message{Type: MessageType(99)})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestEncode_EmitsEnvelope(t *testing.T) {
	b, err := Encode(NewClientID("c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":3,"targetId":"c1","senderId":"","clientId":"c1"}`, string(b))

	b, err = Encode(NewPeerList(Room{ID: "r1", Code: "AB12", Members: []string{"a"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":4,"targetId":"","senderId":"","peerList":["a"],"roomCode":"AB12","roomId":"r1"}`, string(b))
}

func TestMessageType_String(t *testing.T) {
	assert.Equal(t, "join-or-create", TypeJoinOrCreate.String())
	assert.Equal(t, "unknown(12)", MessageType(12).String())
}

func TestCloseCode(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   int
		wantReason string
	}{
		{ErrUnknownOrigin, 4000, "unknown origin"},
		{ErrInvalidMessage, 4001, "invalid message"},
		{ErrTooManyConnections, 4002, "too many connections"},
		{ErrRateLimitExceeded, 4003, "rate limit exceeded"},
		{ErrMessageTooLarge, websocket.CloseMessageTooBig, "message too large"},
		{errors.Join(ErrInvalidMessage, errors.New("unexpected EOF")), 4001, "invalid message"},
		{errors.New("boom"), websocket.CloseInternalServerErr, "internal error"},
	}

	for _, tt := range tests {
		code, reason := CloseCode(tt.err)
		assert.Equal(t, tt.wantCode, code, tt.err.Error())
		assert.Equal(t, tt.wantReason, reason, tt.err.Error())
	}
}

func TestRoom_Clone(t *testing.T) {
	room := &Room{ID: "r1", Code: "AB12", Members: []string{"a"}}
	c := room.Clone()
	room.Members[0] = "z"

	assert.Equal(t, []string{"a"}, c.Members)
}
