package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adwski/webrtc-signal-relay/backend/model"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	// maxOversizeDiscard bounds how much of an oversized message is read
	// and thrown away so the close frame reaches the peer.
	maxOversizeDiscard = 1 << 20
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	SignalingService interface {
		CreateSignalingSession(addr string, wire model.Wire) (string, error)
		HandleFrame(id string, frame model.Frame) error
		DeleteSignalingSession(id string)
	}

	Config struct {
		Logger           *zerolog.Logger
		SignalingService SignalingService
		ListenAddr       string

		// MaxMessageSize is enforced by the signaling service. Messages up
		// to twice this size are read and handed to the service, larger
		// ones are rejected by the transport with the same close reason.
		MaxMessageSize    int
		OutboundQueueSize int
		TrustForwardedFor bool
	}

	Server struct {
		svc SignalingService
		ws  *websocket.Upgrader
		*http.Server

		logger            zerolog.Logger
		readLimit         int64
		queueSize         int
		trustForwardedFor bool
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.SignalingService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		readLimit:         2 * int64(cfg.MaxMessageSize),
		queueSize:         cfg.OutboundQueueSize,
		trustForwardedFor: cfg.TrustForwardedFor,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.signal)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error, 1)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) signal(w http.ResponseWriter, r *http.Request) {
	addr := srv.sourceAddress(r)

	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	wire := model.NewWire(srv.queueSize)
	id, err := srv.svc.CreateSignalingSession(addr, wire)
	if err != nil {
		srv.logger.Warn().Err(err).Str("addr", addr).Msg("connection rejected")
		code, reason := model.CloseCode(err)
		webSocketCloser(conn, code, reason, &srv.logger)
		return
	}

	go srv.handleWSConn(conn, id, wire)
}

// sourceAddress returns the address used for admission control, or an
// empty string when it cannot be determined.
func (srv *Server) sourceAddress(r *http.Request) string {
	if srv.trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return host
}

func (srv *Server) handleWSConn(conn *websocket.Conn, id string, wire model.Wire) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := srv.logger.With().
		Str("id", id).
		Logger()
	logger.Debug().Msg("signaling session started")

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, &logger)
		cancel()
		// unblock the receiver
		_ = conn.SetReadDeadline(time.Now())
	}()

	closeErr := srv.webSocketReceiver(ctx, conn, id, &logger)
	cancel()
	wg.Wait()

	code, reason := websocket.CloseNormalClosure, ""
	if closeErr != nil {
		code, reason = model.CloseCode(closeErr)
	}
	webSocketCloser(conn, code, reason, &logger)

	srv.svc.DeleteSignalingSession(id)
	logger.Debug().Msg("signaling session ended")
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan []byte,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case msg := <-tx:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsW, wsErr := conn.NextWriter(websocket.TextMessage)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
				break SendLoop
			}
			_, wsErr = wsW.Write(msg)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing message")
				break SendLoop
			}
			wsErr = wsW.Close()
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to close websocket writer")
				break SendLoop
			}
		}
	}
}

// webSocketReceiver feeds inbound frames to the signaling service one at a
// time. It returns the error that should be reported in the close frame,
// or nil when the peer went away.
func (srv *Server) webSocketReceiver(
	ctx context.Context,
	conn *websocket.Conn,
	id string,
	logger *zerolog.Logger,
) error {
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	if err := readDeadLineFunc(defaultPongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		mt, msg, wsErr := srv.readMessage(conn)
		if wsErr != nil {
			switch {
			case errors.Is(wsErr, model.ErrMessageTooLarge):
				logger.Warn().Int64("limit", srv.readLimit).Msg("message exceeds read limit")
				return wsErr
			case websocket.IsCloseError(wsErr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway):
				logger.Debug().Err(wsErr).Msg("connection closed")
			default:
				logger.Warn().Err(wsErr).Msg("unexpected error during receive")
			}
			return nil
		}

		frame := model.TextFrame(msg)
		if mt == websocket.BinaryMessage {
			frame = model.BinaryFrame(msg)
		}
		if err := srv.svc.HandleFrame(id, frame); err != nil {
			return err
		}
	}
}

// readMessage reads the next message, buffering at most readLimit bytes.
// Oversized messages yield model.ErrMessageTooLarge after the rest of the
// message is discarded.
func (srv *Server) readMessage(conn *websocket.Conn) (int, []byte, error) {
	mt, r, err := conn.NextReader()
	if err != nil {
		return mt, nil, err
	}
	msg, err := io.ReadAll(io.LimitReader(r, srv.readLimit+1))
	if err != nil {
		return mt, nil, err
	}
	if int64(len(msg)) > srv.readLimit {
		_, _ = io.CopyN(io.Discard, r, maxOversizeDiscard)
		return mt, nil, model.ErrMessageTooLarge
	}
	return mt, msg, nil
}

func webSocketCloser(conn *websocket.Conn, code int, reason string, logger *zerolog.Logger) {
	wsErr := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil && !errors.Is(wsErr, websocket.ErrCloseSent) {
		logger.Debug().Err(wsErr).Msg("failed to send close frame")
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
