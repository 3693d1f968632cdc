// Package config loads the settings shared by the relay and the terminal
// client: struct defaults, then an optional YAML file, then environment
// variables, validated before use.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that points at a YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are probed in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// RateLimitConfig defines the parameters for per-connection frame rate
// limiting. It is off by default: when enabled, frames over the bucket are
// dropped even though they are valid.
type RateLimitConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Burst          int           `koanf:"burst" validate:"gt=0"`
	RefillInterval time.Duration `koanf:"refill_interval" validate:"gt=0"`
}

// ListenConfig controls the TCP relay listener and per-connection resources.
type ListenConfig struct {
	Host          string        `koanf:"host" validate:"required"`
	Port          int           `koanf:"port" validate:"gte=0,lte=65535"`
	ShutdownGrace time.Duration `koanf:"shutdown_grace" validate:"gt=0"`
	WriteTimeout  time.Duration `koanf:"write_timeout" validate:"gte=0"`
	MaxFrameSize  int           `koanf:"max_frame_size" validate:"gte=0"`
	SendQueueSize int           `koanf:"send_queue_size" validate:"gt=0"`
}

// HTTPConfig controls the operations endpoint and the WebSocket gateway.
type HTTPConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Addr           string   `koanf:"addr" validate:"required_if=Enabled true"`
	WebSocket      bool     `koanf:"websocket"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// LoggingConfig mirrors logging.Config for the file and environment layers.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ClientConfig holds settings used only by the terminal client.
type ClientConfig struct {
	TypingIdle time.Duration `koanf:"typing_idle" validate:"gt=0"`
}

// Config holds the relay and client configuration.
type Config struct {
	Server    ListenConfig    `koanf:"server"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	HTTP      HTTPConfig      `koanf:"http"`
	Logging   LoggingConfig   `koanf:"logging"`
	Client    ClientConfig    `koanf:"client"`
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Server: ListenConfig{
			Host:          "127.0.0.1",
			Port:          8080,
			ShutdownGrace: 5 * time.Second,
			WriteTimeout:  10 * time.Second,
			MaxFrameSize:  64 * 1024,
			SendQueueSize: 256,
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			Burst:          20,
			RefillInterval: time.Second,
		},
		HTTP: HTTPConfig{
			Enabled:   true,
			Addr:      "127.0.0.1:8081",
			WebSocket: true,
			AllowedOrigins: []string{
				"http://localhost:8081",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			TypingIdle: 2 * time.Second,
		},
	}
}

// Address returns the host:port the relay listens on or dials.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(NewConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitListField(k, "http.allowed_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"server_host":                "server.host",
	"server_port":                "server.port",
	"shutdown_grace":             "server.shutdown_grace",
	"write_timeout":              "server.write_timeout",
	"max_message_size":           "server.max_frame_size",
	"send_queue_size":            "server.send_queue_size",
	"rate_limit_enabled":         "rate_limit.enabled",
	"rate_limit_burst":           "rate_limit.burst",
	"rate_limit_refill_interval": "rate_limit.refill_interval",
	"http_enabled":               "http.enabled",
	"http_addr":                  "http.addr",
	"websocket_enabled":          "http.websocket",
	"allowed_origins":            "http.allowed_origins",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"log_caller":                 "logging.caller",
	"typing_idle":                "client.typing_idle",
}

// envTransformFunc maps known environment variables onto config keys and
// drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// splitListField turns a comma-separated string value (as environment
// variables provide) into a list.
func splitListField(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	if err := k.Set(path, values); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}
