package model

import (
	"errors"

	"github.com/gorilla/websocket"
)

// Room is a snapshot of room state. Members are kept in join order.
type Room struct {
	ID      string   `json:"roomId"`
	Code    string   `json:"roomCode"`
	Members []string `json:"members"`
}

// Clone returns a copy that does not share the member slice.
func (r *Room) Clone() Room {
	members := make([]string, len(r.Members))
	copy(members, r.Members)
	return Room{
		ID:      r.ID,
		Code:    r.Code,
		Members: members,
	}
}

// Stats is an operational summary of the relay state.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
	Members     int `json:"members"`
}

// Wire is the outbound side of a transport session. Encoded messages are
// pushed to TX and written to the socket by the transport.
type Wire struct {
	TX chan []byte
}

func NewWire(size int) Wire {
	return Wire{
		TX: make(chan []byte, size),
	}
}

// Close codes sent to clients when the relay terminates a connection.
const (
	CloseUnknownOrigin      = 4000
	CloseInvalidMessage     = 4001
	CloseTooManyConnections = 4002
	CloseRateLimitExceeded  = 4003
	CloseMessageTooLarge    = websocket.CloseMessageTooBig
)

// Errors that terminate a connection.
var (
	ErrUnknownOrigin      = errors.New("unknown origin")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrTooManyConnections = errors.New("too many connections")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrMessageTooLarge    = errors.New("message too large")
)

var closeCodes = []struct {
	err  error
	code int
}{
	{ErrUnknownOrigin, CloseUnknownOrigin},
	{ErrInvalidMessage, CloseInvalidMessage},
	{ErrTooManyConnections, CloseTooManyConnections},
	{ErrRateLimitExceeded, CloseRateLimitExceeded},
	{ErrMessageTooLarge, CloseMessageTooLarge},
}

// CloseCode maps a connection-terminating error to the close code and
// reason sent to the client.
func CloseCode(err error) (int, string) {
	for _, c := range closeCodes {
		if errors.Is(err, c.err) {
			return c.code, c.err.Error()
		}
	}
	return websocket.CloseInternalServerErr, "internal error"
}
