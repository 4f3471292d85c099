// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"go-subscription-ws/internal/infrastructure/logger"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Protocol ProtocolConfig `yaml:"protocol"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	Log      logger.Config  `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

type ProtocolConfig struct {
	// KeepAlive is the ka period; 0 disables it.
	KeepAlive           time.Duration `yaml:"keep_alive"            env:"PROTOCOL_KEEP_ALIVE"`
	HandshakeFlushDelay time.Duration `yaml:"handshake_flush_delay" env:"PROTOCOL_HANDSHAKE_FLUSH_DELAY"`
	// Codec is "json" or "cbor".
	Codec        string        `yaml:"codec"         env:"PROTOCOL_CODEC"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"PROTOCOL_WRITE_TIMEOUT"`
	PongTimeout  time.Duration `yaml:"pong_timeout"  env:"PROTOCOL_PONG_TIMEOUT"`
	SendBuffer   int           `yaml:"send_buffer"   env:"PROTOCOL_SEND_BUFFER"`
}

type PubSubConfig struct {
	BufferSize int `yaml:"buffer_size" env:"PUBSUB_BUFFER_SIZE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Protocol: ProtocolConfig{
			KeepAlive:           30 * time.Second,
			HandshakeFlushDelay: 10 * time.Millisecond,
			Codec:               "json",
			WriteTimeout:        10 * time.Second,
			PongTimeout:         60 * time.Second,
			SendBuffer:          256,
		},
		PubSub: PubSubConfig{
			BufferSize: 64,
		},
		Log: *logger.NewDefaultConfig(),
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr must not be empty")
	}
	if c.Protocol.KeepAlive < 0 {
		return errors.New("protocol keep_alive must not be negative")
	}
	switch c.Protocol.Codec {
	case "json", "cbor":
	default:
		return fmt.Errorf("unknown protocol codec %q", c.Protocol.Codec)
	}
	return nil
}
