package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for VendLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT    MQTTConfig    `yaml:"mqtt"`
	API     APIConfig     `yaml:"api"`
	Feed    FeedConfig    `yaml:"feed"`
	Lookup  LookupConfig  `yaml:"lookup"`
	Logging LoggingConfig `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Username and password are required: the bridge cannot operate without a
// broker connection, and the broker requires authenticated clients.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
// Write applies to regular endpoints only; streaming endpoints (SSE,
// WebSocket) manage their own deadlines.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// FeedConfig contains live feed settings shared by SSE and WebSocket transports.
type FeedConfig struct {
	// BufferSize is the per-session outbound event buffer. When a session's
	// buffer is full (slow observer), further events are skipped for that
	// session rather than blocking the broadcast path.
	BufferSize int `yaml:"buffer_size"`

	// MaxMessageSize is the maximum inbound WebSocket message size in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// PingInterval is the WebSocket keepalive ping interval in seconds.
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is how long to wait for a WebSocket pong in seconds.
	PongTimeout int `yaml:"pong_timeout"`
}

// LookupConfig contains the device code lookup table and the optional
// signature secret for QR code verification.
type LookupConfig struct {
	// Secret enables HMAC-SHA256 signature verification of resolve requests
	// when non-empty. Leave empty to accept unsigned codes.
	Secret string `yaml:"secret"`

	// Codes maps human-entered device codes (upper-case) to device IDs.
	Codes map[string]string `yaml:"codes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VENDLINK_SECTION_KEY
// For example: VENDLINK_MQTT_HOST, VENDLINK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying env overrides: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "vendlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Feed: FeedConfig{
			BufferSize:     64,
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverrides holds the environment variables recognised by VendLink Core.
// Parsed with caarlos0/env; zero values mean "not set" and leave the file
// value untouched.
type envOverrides struct {
	MQTTHost     string `env:"VENDLINK_MQTT_HOST"`
	MQTTPort     int    `env:"VENDLINK_MQTT_PORT"`
	MQTTUsername string `env:"VENDLINK_MQTT_USERNAME"`
	MQTTPassword string `env:"VENDLINK_MQTT_PASSWORD"`
	APIHost      string `env:"VENDLINK_API_HOST"`
	APIPort      int    `env:"VENDLINK_API_PORT"`
	LookupSecret string `env:"VENDLINK_LOOKUP_SECRET"`
	LogLevel     string `env:"VENDLINK_LOG_LEVEL"`
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	if ov.MQTTHost != "" {
		cfg.MQTT.Broker.Host = ov.MQTTHost
	}
	if ov.MQTTPort != 0 {
		cfg.MQTT.Broker.Port = ov.MQTTPort
	}
	if ov.MQTTUsername != "" {
		cfg.MQTT.Auth.Username = ov.MQTTUsername
	}
	if ov.MQTTPassword != "" {
		cfg.MQTT.Auth.Password = ov.MQTTPassword
	}
	if ov.APIHost != "" {
		cfg.API.Host = ov.APIHost
	}
	if ov.APIPort != 0 {
		cfg.API.Port = ov.APIPort
	}
	if ov.LookupSecret != "" {
		cfg.Lookup.Secret = ov.LookupSecret
	}
	if ov.LogLevel != "" {
		cfg.Logging.Level = ov.LogLevel
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Missing broker credentials are a hard failure: the bridge must not start
// serving traffic without a working broker connection, and the connection
// cannot be established without host, username and password.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation - the broker connection is mandatory
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set VENDLINK_MQTT_HOST)")
	}
	if c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.username is required (set VENDLINK_MQTT_USERNAME)")
	}
	if c.MQTT.Auth.Password == "" {
		errs = append(errs, "mqtt.auth.password is required (set VENDLINK_MQTT_PASSWORD)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Feed validation
	if c.Feed.BufferSize < 1 {
		errs = append(errs, "feed.buffer_size must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
