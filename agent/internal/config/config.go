package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultRemoteHost    = "logger.seungjin.net"
	DefaultAuthKeyEnv    = "LOGGER_AUTHKEY"
	DefaultRuntimeDir    = "/run/user"
	DefaultNamespace     = "seungjin-logger"
	DefaultSocketMode    = "0600"
	DefaultReadBuffer    = 4096
	DefaultMaxReadErrors = 3
	DefaultStatsInterval = 15 * time.Second
)

// Invalid UTF-8 policies.
const (
	InvalidUTF8Close   = "close"
	InvalidUTF8Forward = "forward"
)

// Framing modes.
const (
	FramingRead  = "read"
	FramingLines = "lines"
)

// Config is the top-level configuration file layout.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// RemoteHost is the host (optionally host:port) of the remote logging service.
	RemoteHost string `yaml:"remote_host"`

	// Hostname overrides the local hostname used in the endpoint path.
	Hostname string `yaml:"hostname"`

	// AuthKeyEnv is the name of the environment variable holding the auth key.
	AuthKeyEnv string `yaml:"auth_key_env"`

	// RuntimeDir is the per-user runtime root; the uid is appended to it.
	RuntimeDir string `yaml:"runtime_dir"`

	// Namespace is the directory segment under <runtime_dir>/<uid> that holds
	// every channel socket.
	Namespace string `yaml:"namespace"`

	// SocketMode is the octal permission applied to the bound socket file.
	SocketMode string `yaml:"socket_mode"`

	// ReadBuffer is the per-read buffer size for each connection.
	ReadBuffer int `yaml:"read_buffer"`

	// MaxReadErrors is how many consecutive unclassified read errors a
	// connection survives before it is closed.
	MaxReadErrors int `yaml:"max_read_errors"`

	// InvalidUTF8 is one of: close | forward.
	InvalidUTF8 string `yaml:"invalid_utf8"`

	// Framing is one of: read (one message per read) | lines.
	Framing string `yaml:"framing"`

	// DrainTimeout bounds the wait for open connections on shutdown.
	// Zero exits without waiting.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// SendTimeout bounds each POST to the remote sink. Zero means no timeout,
	// so in-flight sends to a hung remote are never reclaimed; long-running
	// channels should set it (e.g. 30s).
	SendTimeout time.Duration `yaml:"send_timeout"`

	// Compress gzips request bodies.
	Compress bool `yaml:"compress"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// StatsFile, when set, is rewritten every StatsInterval with forwarding
	// counters in Prometheus text format.
	StatsFile     string        `yaml:"stats_file"`
	StatsInterval time.Duration `yaml:"stats_interval"`

	// TLS holds options for the connection to the remote sink.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS dial options for the remote sink.
type TLSConfig struct {
	// CAFile adds a PEM bundle to the trusted roots (self-signed dev sinks).
	CAFile string `yaml:"ca_file"`

	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this against a local development sink.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// FileMode parses SocketMode as an octal permission.
func (a AgentConfig) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(strings.TrimPrefix(a.SocketMode, "0o"), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("socket_mode %q: %w", a.SocketMode, err)
	}
	return os.FileMode(mode) & os.ModePerm, nil
}

// Level parses LogLevel. Unknown values were rejected by validate.
func (a AgentConfig) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(a.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the YAML config file at path. An empty path yields
// the defaults. Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			RemoteHost:    DefaultRemoteHost,
			AuthKeyEnv:    DefaultAuthKeyEnv,
			RuntimeDir:    DefaultRuntimeDir,
			Namespace:     DefaultNamespace,
			SocketMode:    DefaultSocketMode,
			ReadBuffer:    DefaultReadBuffer,
			MaxReadErrors: DefaultMaxReadErrors,
			InvalidUTF8:   InvalidUTF8Close,
			Framing:       FramingRead,
			LogLevel:      "info",
			StatsInterval: DefaultStatsInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.RemoteHost == "" {
		return errors.New("agent.remote_host is required")
	}
	if strings.Contains(a.RemoteHost, "/") {
		return fmt.Errorf("agent.remote_host %q must be a host, not a URL", a.RemoteHost)
	}
	if strings.Contains(a.Hostname, "/") {
		return fmt.Errorf("agent.hostname %q must not contain '/'", a.Hostname)
	}
	if a.AuthKeyEnv == "" {
		return errors.New("agent.auth_key_env is required")
	}
	if a.RuntimeDir == "" {
		return errors.New("agent.runtime_dir is required")
	}
	if a.Namespace == "" || strings.Contains(a.Namespace, "/") {
		return fmt.Errorf("agent.namespace %q must be a single path segment", a.Namespace)
	}
	if _, err := a.FileMode(); err != nil {
		return fmt.Errorf("agent.%w", err)
	}
	if a.ReadBuffer <= 0 {
		return errors.New("agent.read_buffer must be positive")
	}
	if a.MaxReadErrors <= 0 {
		return errors.New("agent.max_read_errors must be positive")
	}
	switch a.InvalidUTF8 {
	case InvalidUTF8Close, InvalidUTF8Forward:
	default:
		return fmt.Errorf("agent.invalid_utf8: unknown policy %q", a.InvalidUTF8)
	}
	switch a.Framing {
	case FramingRead, FramingLines:
	default:
		return fmt.Errorf("agent.framing: unknown mode %q", a.Framing)
	}
	if a.DrainTimeout < 0 || a.SendTimeout < 0 {
		return errors.New("agent.drain_timeout and agent.send_timeout must not be negative")
	}
	if a.StatsFile != "" && a.StatsInterval <= 0 {
		return errors.New("agent.stats_interval must be positive when stats_file is set")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(a.LogLevel)); err != nil {
		return fmt.Errorf("agent.log_level: unknown level %q", a.LogLevel)
	}
	return nil
}
