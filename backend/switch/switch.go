package _switch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adwski/webrtc-signal-relay/backend/guard"
	"github.com/adwski/webrtc-signal-relay/backend/model"
)

// Connection is a registered transport session.
type Connection struct {
	ID      string
	Addr    string
	RoomID  string
	Wire    model.Wire
	Limiter *guard.RateLimiter
}

// Switch is the connection registry. It owns connection identities,
// per-address admission accounting and outbound delivery.
type Switch struct {
	logger     zerolog.Logger
	mx         *sync.RWMutex
	conns      map[string]*Connection
	addrs      map[string]int
	maxPerAddr int
}

type Config struct {
	Logger                   *zerolog.Logger
	MaxConnectionsPerAddress int
}

func NewSwitch(cfg Config) *Switch {
	return &Switch{
		logger:     cfg.Logger.With().Str("component", "switch").Logger(),
		mx:         &sync.RWMutex{},
		conns:      make(map[string]*Connection),
		addrs:      make(map[string]int),
		maxPerAddr: cfg.MaxConnectionsPerAddress,
	}
}

// Admit reserves a connection slot for addr. A successful Admit must be
// followed by Register.
func (sw *Switch) Admit(addr string) error {
	if addr == "" {
		return model.ErrUnknownOrigin
	}

	sw.mx.Lock()
	defer sw.mx.Unlock()

	if sw.addrs[addr] >= sw.maxPerAddr {
		sw.logger.Warn().
			Str("addr", addr).
			Int("open", sw.addrs[addr]).
			Msg("connection rejected, too many connections")
		return model.ErrTooManyConnections
	}
	sw.addrs[addr]++
	return nil
}

func (sw *Switch) release(addr string) {
	n, ok := sw.addrs[addr]
	if !ok {
		return
	}
	if n <= 1 {
		delete(sw.addrs, addr)
		return
	}
	sw.addrs[addr] = n - 1
}

// Register stores an admitted connection under a fresh identity.
func (sw *Switch) Register(addr string, wire model.Wire, limiter *guard.RateLimiter) *Connection {
	conn := &Connection{
		ID:      uuid.NewString(),
		Addr:    addr,
		Wire:    wire,
		Limiter: limiter,
	}

	sw.mx.Lock()
	sw.conns[conn.ID] = conn
	sw.mx.Unlock()

	sw.logger.Debug().
		Str("id", conn.ID).
		Str("addr", addr).
		Msg("connection registered")
	return conn
}

// Unregister removes the connection and releases its admission slot.
// The removed connection is returned so the caller can clean up membership.
func (sw *Switch) Unregister(id string) (*Connection, bool) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	conn, ok := sw.conns[id]
	if !ok {
		return nil, false
	}
	delete(sw.conns, id)
	sw.release(conn.Addr)

	sw.logger.Debug().
		Str("id", id).
		Str("addr", conn.Addr).
		Msg("connection unregistered")
	return conn, true
}

func (sw *Switch) Lookup(id string) (*Connection, bool) {
	sw.mx.RLock()
	defer sw.mx.RUnlock()

	conn, ok := sw.conns[id]
	return conn, ok
}

// SetRoom records the room the connection belongs to. An empty roomID
// clears it.
func (sw *Switch) SetRoom(id, roomID string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()

	if conn, ok := sw.conns[id]; ok {
		conn.RoomID = roomID
	}
}

// Send queues b for delivery to connection id. Delivery is best effort:
// unknown connections and full queues are logged and dropped.
func (sw *Switch) Send(id string, b []byte) bool {
	sw.mx.RLock()
	conn, ok := sw.conns[id]
	sw.mx.RUnlock()

	if !ok {
		sw.logger.Debug().Str("dst", id).Msg("cannot forward, dst not found")
		return false
	}

	select {
	case conn.Wire.TX <- b:
		sw.logger.Trace().Str("dst", id).Msg("message is forwarded")
		return true
	default:
		sw.logger.Warn().Str("dst", id).Msg("outbound queue is full, message dropped")
		return false
	}
}

func (sw *Switch) Count() int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return len(sw.conns)
}

// OpenFrom returns the number of admitted connections from addr.
func (sw *Switch) OpenFrom(addr string) int {
	sw.mx.RLock()
	defer sw.mx.RUnlock()
	return sw.addrs[addr]
}
