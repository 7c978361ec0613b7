// Package config holds the relay settings.
//
// Settings start from Default and may be overlaid by a YAML file passed
// to Load. Command line flags are applied on top by the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adwski/webrtc-signal-relay/backend/guard"
	"github.com/adwski/webrtc-signal-relay/backend/roomcode"
)

const (
	DefaultWSListenAddr             = ":8888"
	DefaultAPIListenAddr            = ":8080"
	DefaultLogLevel                 = "info"
	DefaultMaxConnectionsPerAddress = 10
	DefaultOutboundQueueSize        = 64
)

var (
	ErrRead     = errors.New("unable to read config file")
	ErrParse    = errors.New("unable to parse config file")
	ErrValidate = errors.New("invalid config")
)

type Config struct {
	// WSListenAddr is where the websocket signaling endpoint listens.
	WSListenAddr string `yaml:"ws_listen_addr"`

	// APIListenAddr is where the health and stats API listens.
	APIListenAddr string `yaml:"api_listen_addr"`

	LogLevel string `yaml:"log_level"`

	// TrustForwardedFor makes the first X-Forwarded-For hop the source
	// address used for admission control. Enable only behind a proxy
	// that sets the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`

	Limits   LimitsConfig   `yaml:"limits"`
	RoomCode RoomCodeConfig `yaml:"room_code"`
}

type LimitsConfig struct {
	MaxMessageSize           int           `yaml:"max_message_size"`
	MaxConnectionsPerAddress int           `yaml:"max_connections_per_address"`
	MaxMessagesPerSecond     int           `yaml:"max_messages_per_second"`
	RateWindow               time.Duration `yaml:"rate_window"`

	// OutboundQueueSize bounds messages waiting to be written to a single
	// connection. Messages beyond it are dropped.
	OutboundQueueSize int `yaml:"outbound_queue_size"`
}

type RoomCodeConfig struct {
	Length   int    `yaml:"length"`
	Alphabet string `yaml:"alphabet"`
}

func Default() *Config {
	return &Config{
		WSListenAddr:  DefaultWSListenAddr,
		APIListenAddr: DefaultAPIListenAddr,
		LogLevel:      DefaultLogLevel,
		Limits: LimitsConfig{
			MaxMessageSize:           guard.DefaultMaxMessageSize,
			MaxConnectionsPerAddress: DefaultMaxConnectionsPerAddress,
			MaxMessagesPerSecond:     guard.DefaultMaxMessagesPerSecond,
			RateWindow:               guard.DefaultRateWindow,
			OutboundQueueSize:        DefaultOutboundQueueSize,
		},
		RoomCode: RoomCodeConfig{
			Length:   roomcode.DefaultLength,
			Alphabet: roomcode.DefaultAlphabet,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.WSListenAddr == "":
		return fmt.Errorf("%w: empty websocket listen address", ErrValidate)
	case c.APIListenAddr == "":
		return fmt.Errorf("%w: empty api listen address", ErrValidate)
	case c.Limits.MaxMessageSize <= 0:
		return fmt.Errorf("%w: max_message_size must be positive", ErrValidate)
	case c.Limits.MaxConnectionsPerAddress <= 0:
		return fmt.Errorf("%w: max_connections_per_address must be positive", ErrValidate)
	case c.Limits.MaxMessagesPerSecond <= 0:
		return fmt.Errorf("%w: max_messages_per_second must be positive", ErrValidate)
	case c.Limits.RateWindow <= 0:
		return fmt.Errorf("%w: rate_window must be positive", ErrValidate)
	case c.Limits.OutboundQueueSize <= 0:
		return fmt.Errorf("%w: outbound_queue_size must be positive", ErrValidate)
	case c.RoomCode.Length <= 0:
		return fmt.Errorf("%w: room code length must be positive", ErrValidate)
	case c.RoomCode.Alphabet == "":
		return fmt.Errorf("%w: empty room code alphabet", ErrValidate)
	}

	seen := make(map[rune]struct{})
	for _, r := range c.RoomCode.Alphabet {
		if _, ok := seen[r]; ok {
			return fmt.Errorf("%w: duplicate symbol %q in room code alphabet", ErrValidate, r)
		}
		seen[r] = struct{}{}
	}
	return nil
}
