package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the sink configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultAuthMode     = "apikey"
	DefaultKeyEnv       = "LOGGER_AUTHKEY"
	DefaultHeader       = "AUTHKEY"
	DefaultRetention    = time.Hour
	DefaultMaxMessages  = 1000
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds the sink configuration parsed from the `sink:` section of the
// config file. Other top-level keys (such as `agent:`) are ignored.
type Config struct {
	Sink SinkConfig `yaml:"sink"`
}

// SinkConfig holds all sink-side settings.
type SinkConfig struct {
	// HTTPPort is the port the sink listens on for forwarded messages and the
	// read API (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how forwarded messages are authenticated.
	Auth AuthConfig `yaml:"auth"`

	// TLS enables HTTPS when both files are set.
	TLS TLSConfig `yaml:"tls"`

	// Retention is how long a stored message stays readable. Default: 1h.
	Retention time.Duration `yaml:"retention"`

	// MaxMessages caps the messages kept per route; the oldest are dropped first.
	MaxMessages int `yaml:"max_messages"`

	// MaxBodyBytes bounds one forwarded message after decompression.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// AuthConfig controls authentication of forwarding agents.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the request header carrying the key. Defaults to "AUTHKEY".
	Header string `yaml:"header"`
}

// Key returns the expected key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "AUTHKEY".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// TLSConfig names the certificate pair served by the sink.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both files are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// Load reads and parses the config file at path, returning the sink configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sink config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sink config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("sink config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Sink: SinkConfig{
			HTTPPort: DefaultHTTPPort,
			Auth: AuthConfig{
				Mode:   DefaultAuthMode,
				KeyEnv: DefaultKeyEnv,
				Header: DefaultHeader,
			},
			Retention:    DefaultRetention,
			MaxMessages:  DefaultMaxMessages,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Sink
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("sink.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none":
	default:
		return fmt.Errorf("sink.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.KeyEnv == "" {
		return fmt.Errorf("sink.auth.key_env is required when mode is apikey")
	}
	if (s.TLS.CertFile == "") != (s.TLS.KeyFile == "") {
		return fmt.Errorf("sink.tls.cert_file and sink.tls.key_file must be set together")
	}
	if s.Retention <= 0 {
		return fmt.Errorf("sink.retention must be positive")
	}
	if s.MaxMessages <= 0 {
		return fmt.Errorf("sink.max_messages must be positive")
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("sink.max_body_bytes must be positive")
	}
	return nil
}
