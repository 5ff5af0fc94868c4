package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine types accepted in engine.type.
const (
	EngineHelper  = "helper"
	EngineBrowser = "browser"
)

// Config is the root configuration structure for Fox Bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Engine    EngineConfig    `yaml:"engine"`
	Media     MediaConfig     `yaml:"media"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// MaxBodyBytes caps request bodies. Default: 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// SessionsConfig controls the tenant session lifecycle.
type SessionsConfig struct {
	// AuthDir is the root of the per-tenant credential directories.
	AuthDir string `yaml:"auth_dir"`

	// DirPrefix names each credential directory: <auth_dir>/<prefix><tenant>.
	DirPrefix string `yaml:"dir_prefix"`

	// PairingTimeout is how long a pairing code may go unscanned before
	// the session is restarted. Default: 120s.
	PairingTimeout time.Duration `yaml:"pairing_timeout"`

	// TeardownTimeout bounds each engine teardown. Default: 10s.
	TeardownTimeout time.Duration `yaml:"teardown_timeout"`

	// ProbeTimeout bounds the live-state probe behind status reads. Default: 3s.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// RecoverOnBoot re-initializes every tenant with credentials at startup.
	RecoverOnBoot bool `yaml:"recover_on_boot"`
}

// EngineConfig selects and configures the automation engine.
type EngineConfig struct {
	// Type is "helper" or "browser".
	Type    string              `yaml:"type"`
	Helper  HelperEngineConfig  `yaml:"helper"`
	Browser BrowserEngineConfig `yaml:"browser"`
}

// HelperEngineConfig configures the per-tenant helper process engine.
type HelperEngineConfig struct {
	// Command is the helper executable.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`

	// GracefulTimeout is how long a helper gets to exit after SIGTERM.
	// Default: 5s.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// BrowserEngineConfig configures the headless browser engine.
type BrowserEngineConfig struct {
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string `yaml:"exec_path"`

	// URL is the web client loaded in each tenant's browser.
	URL string `yaml:"url"`

	Headless  bool   `yaml:"headless"`
	UserAgent string `yaml:"user_agent"`

	// InjectScript is a JavaScript file evaluated in every page before the
	// web client loads. It provides the send and state hooks.
	InjectScript string `yaml:"inject_script"`

	// PollInterval is how often the page is polled for lifecycle changes.
	// Default: 2s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MediaConfig controls media downloads.
type MediaConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBytes     int64         `yaml:"max_bytes"`
	UserAgent    string        `yaml:"user_agent"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings. An empty secret leaves the API open,
// matching deployments where the bridge is only reachable from the POS host.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the lifetime of tokens minted by "foxbridge token",
	// in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// AuthEnabled reports whether API requests must carry a bearer token.
func (s SecurityConfig) AuthEnabled() bool {
	return s.JWT.Secret != ""
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is not an error: the defaults plus environment are used,
// so a container can be configured purely through FOXBRIDGE_* variables.
//
// Environment variables follow the pattern: FOXBRIDGE_SECTION_KEY
// For example: FOXBRIDGE_API_PORT, FOXBRIDGE_SESSIONS_AUTH_DIR
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultPath is the configuration file used when FOXBRIDGE_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
			MaxBodyBytes: 1 << 20,
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Sessions: SessionsConfig{
			AuthDir:         "./.wwebjs_auth",
			DirPrefix:       "session-",
			PairingTimeout:  120 * time.Second,
			TeardownTimeout: 10 * time.Second,
			ProbeTimeout:    3 * time.Second,
			RecoverOnBoot:   true,
		},
		Engine: EngineConfig{
			Type: EngineHelper,
			Helper: HelperEngineConfig{
				Command:         "foxbridge-helper",
				GracefulTimeout: 5 * time.Second,
			},
			Browser: BrowserEngineConfig{
				URL:          "https://web.whatsapp.com",
				Headless:     true,
				PollInterval: 2 * time.Second,
			},
		},
		Media: MediaConfig{
			FetchTimeout: 30 * time.Second,
			MaxBytes:     16 << 20,
			UserAgent:    "foxbridge/1.0",
		},
		Database: DatabaseConfig{
			Path:        "./data/foxbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "foxbridge",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "foxbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60 * 24 * 30,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FOXBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// API
	if v := os.Getenv("FOXBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FOXBRIDGE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FOXBRIDGE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Sessions
	if v := os.Getenv("FOXBRIDGE_SESSIONS_AUTH_DIR"); v != "" {
		cfg.Sessions.AuthDir = v
	}
	if v := os.Getenv("FOXBRIDGE_SESSIONS_PAIRING_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FOXBRIDGE_SESSIONS_PAIRING_TIMEOUT: %w", err)
		}
		cfg.Sessions.PairingTimeout = d
	}

	// Engine
	if v := os.Getenv("FOXBRIDGE_ENGINE_TYPE"); v != "" {
		cfg.Engine.Type = v
	}
	if v := os.Getenv("FOXBRIDGE_ENGINE_HELPER_COMMAND"); v != "" {
		cfg.Engine.Helper.Command = v
	}
	if v := os.Getenv("FOXBRIDGE_ENGINE_BROWSER_EXEC_PATH"); v != "" {
		cfg.Engine.Browser.ExecPath = v
	}

	// Database
	if v := os.Getenv("FOXBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("FOXBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FOXBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FOXBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FOXBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("FOXBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("FOXBRIDGE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if c.Sessions.AuthDir == "" {
		errs = append(errs, "sessions.auth_dir is required")
	}
	if c.Sessions.DirPrefix == "" || strings.ContainsAny(c.Sessions.DirPrefix, `/\`) {
		errs = append(errs, "sessions.dir_prefix must be non-empty and contain no path separator")
	}
	if c.Sessions.PairingTimeout <= 0 {
		errs = append(errs, "sessions.pairing_timeout must be positive")
	}
	if c.Sessions.TeardownTimeout <= 0 {
		errs = append(errs, "sessions.teardown_timeout must be positive")
	}

	switch c.Engine.Type {
	case EngineHelper:
		if c.Engine.Helper.Command == "" {
			errs = append(errs, "engine.helper.command is required for the helper engine")
		}
	case EngineBrowser:
		if c.Engine.Browser.URL == "" {
			errs = append(errs, "engine.browser.url is required for the browser engine")
		}
	default:
		errs = append(errs, fmt.Sprintf("engine.type must be %q or %q", EngineHelper, EngineBrowser))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// The secret is optional, but a short one is worse than none: it
	// suggests protection that a brute-force attack defeats.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
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
