package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/adwski/webrtc-signal-relay/backend/config"
	"github.com/adwski/webrtc-signal-relay/backend/roomcode"
	httpServer "github.com/adwski/webrtc-signal-relay/backend/server/http"
	websocketServer "github.com/adwski/webrtc-signal-relay/backend/server/websocket"
	"github.com/adwski/webrtc-signal-relay/backend/service"
	store "github.com/adwski/webrtc-signal-relay/backend/storage/memory"
	sw "github.com/adwski/webrtc-signal-relay/backend/switch"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(roomcode.NewGenerator(cfg.RoomCode.Length, cfg.RoomCode.Alphabet)),
		Switch: sw.NewSwitch(sw.Config{
			Logger:                   &logger,
			MaxConnectionsPerAddress: cfg.Limits.MaxConnectionsPerAddress,
		}),
		Limits: service.Limits{
			MaxMessageSize:       cfg.Limits.MaxMessageSize,
			MaxMessagesPerSecond: cfg.Limits.MaxMessagesPerSecond,
			RateWindow:           cfg.Limits.RateWindow,
		},
		Logger: &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		StatsService: svc,
		ListenAddr:   cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:            &logger,
		SignalingService:  svc,
		ListenAddr:        cfg.WSListenAddr,
		MaxMessageSize:    cfg.Limits.MaxMessageSize,
		OutboundQueueSize: cfg.Limits.OutboundQueueSize,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

// loadConfig reads the optional config file and applies explicitly set
// command line flags on top of it.
func loadConfig(args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		configPath    = fs.StringP("config", "c", "", "path to yaml config file")
		apiListenAddr = fs.StringP("api-listen-addr", "a", config.DefaultAPIListenAddr, "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", config.DefaultWSListenAddr, "websocket signaling listen address")
		logLevel      = fs.StringP("log-level", "l", config.DefaultLogLevel, "log level")
		maxMsgSize    = fs.Int("max-message-size", 0, "max inbound frame size in bytes")
		maxConns      = fs.Int("max-connections-per-address", 0, "max concurrent connections per source address")
		maxRate       = fs.Int("max-messages-per-second", 0, "max inbound frames per rate window")
		trustFwd      = fs.Bool("trust-forwarded-for", false, "use X-Forwarded-For as connection source address")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if fs.Changed("api-listen-addr") {
		cfg.APIListenAddr = *apiListenAddr
	}
	if fs.Changed("ws-listen-addr") {
		cfg.WSListenAddr = *wsListenAddr
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("max-message-size") {
		cfg.Limits.MaxMessageSize = *maxMsgSize
	}
	if fs.Changed("max-connections-per-address") {
		cfg.Limits.MaxConnectionsPerAddress = *maxConns
	}
	if fs.Changed("max-messages-per-second") {
		cfg.Limits.MaxMessagesPerSecond = *maxRate
	}
	if fs.Changed("trust-forwarded-for") {
		cfg.TrustForwardedFor = *trustFwd
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
