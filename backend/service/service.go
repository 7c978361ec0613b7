package service

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adwski/webrtc-signal-relay/backend/guard"
	"github.com/adwski/webrtc-signal-relay/backend/model"
	sw "github.com/adwski/webrtc-signal-relay/backend/switch"
)

var (
	ErrCreate = errors.New("unable to create room")
	ErrJoin   = errors.New("unable to join room")
)

type (
	RoomStore interface {
		CreateRoom(code, founderID string) (model.Room, error)
		JoinRoom(code, joinerID string) (model.Room, error)
		JoinOrCreateRoom(roomID, joinerID string) (model.Room, bool, error)
		LeaveRoom(roomID, memberID string) (model.Room, bool, error)
		RemoveMember(memberID string) []model.Room
		GetRoom(roomID string) (model.Room, error)
		RoomIDByCode(code string) (string, bool)
		Stats() (rooms, members int)
	}

	Switch interface {
		Admit(addr string) error
		Register(addr string, wire model.Wire, limiter *guard.RateLimiter) *sw.Connection
		Unregister(id string) (*sw.Connection, bool)
		Lookup(id string) (*sw.Connection, bool)
		SetRoom(id, roomID string)
		Send(id string, b []byte) bool
		Count() int
	}

	Limits struct {
		MaxMessageSize       int
		MaxMessagesPerSecond int
		RateWindow           time.Duration
	}

	// Service routes decoded messages to the room store and the switch.
	// All state mutations and the broadcasts they cause happen under a
	// single lock, so membership changes are observed atomically.
	Service struct {
		mx     *sync.Mutex
		store  RoomStore
		sw     Switch
		limits Limits
		now    func() time.Time
		logger zerolog.Logger
	}

	Config struct {
		RoomStore RoomStore
		Switch    Switch
		Limits    Limits
		Logger    *zerolog.Logger

		// Now is used by the rate limiter. Defaults to time.Now.
		Now func() time.Time
	}
)

func NewService(cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		mx:     &sync.Mutex{},
		store:  cfg.RoomStore,
		sw:     cfg.Switch,
		limits: cfg.Limits,
		now:    now,
		logger: cfg.Logger.With().Str("component", "signaling").Logger(),
	}
}

// CreateSignalingSession admits and registers a new connection and sends
// it its identity. The returned error is fatal to the connection attempt.
func (svc *Service) CreateSignalingSession(addr string, wire model.Wire) (string, error) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	if err := svc.sw.Admit(addr); err != nil {
		return "", err
	}
	limiter := guard.NewRateLimiter(svc.limits.MaxMessagesPerSecond, svc.limits.RateWindow)
	conn := svc.sw.Register(addr, wire, limiter)

	svc.send(conn.ID, model.NewClientID(conn.ID))

	svc.logger.Debug().
		Str("id", conn.ID).
		Str("addr", addr).
		Msg("signaling session created")
	return conn.ID, nil
}

// DeleteSignalingSession unregisters the connection and removes it from
// every room, notifying the remaining members.
func (svc *Service) DeleteSignalingSession(id string) {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	if _, ok := svc.sw.Unregister(id); !ok {
		return
	}
	for _, room := range svc.store.RemoveMember(id) {
		svc.broadcastPeerList(room.ID)
	}

	svc.logger.Debug().Str("id", id).Msg("signaling session deleted")
}

// HandleFrame processes one inbound frame of connection id. A non-nil
// error means the connection must be closed; use model.CloseCode for the
// close code and reason.
func (svc *Service) HandleFrame(id string, frame model.Frame) error {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	conn, ok := svc.sw.Lookup(id)
	if !ok {
		svc.logger.Debug().Str("id", id).Msg("frame from unregistered connection dropped")
		return nil
	}

	logger := svc.logger.With().Str("id", id).Logger()

	if err := guard.Inspect(frame, conn.Limiter, svc.limits.MaxMessageSize, svc.now()); err != nil {
		logger.Warn().Err(err).Int("size", frame.Size()).Msg("frame rejected")
		return err
	}

	packets, err := model.DecodeFrame(frame)
	if err != nil {
		logger.Warn().Err(err).Msg("malformed frame")
		return err
	}

	for _, p := range packets {
		if err = svc.dispatch(conn, p, &logger); err != nil {
			logger.Warn().Err(err).Str("type", p.Message.Type.String()).Msg("protocol violation")
			return err
		}
	}
	return nil
}

// Stats summarizes current rooms and connections.
func (svc *Service) Stats() model.Stats {
	svc.mx.Lock()
	defer svc.mx.Unlock()

	rooms, members := svc.store.Stats()
	return model.Stats{
		Rooms:       rooms,
		Connections: svc.sw.Count(),
		Members:     members,
	}
}
