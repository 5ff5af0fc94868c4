package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  host: "127.0.0.1"
  port: 3005
sessions:
  auth_dir: "/var/lib/foxbridge/auth"
  pairing_timeout: 90s
engine:
  type: browser
  browser:
    url: "https://web.whatsapp.com"
    poll_interval: 500ms
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 3005 || cfg.API.Host != "127.0.0.1" {
		t.Errorf("API = %s:%d, want 127.0.0.1:3005", cfg.API.Host, cfg.API.Port)
	}
	if cfg.Sessions.AuthDir != "/var/lib/foxbridge/auth" {
		t.Errorf("Sessions.AuthDir = %q", cfg.Sessions.AuthDir)
	}
	if cfg.Sessions.PairingTimeout != 90*time.Second {
		t.Errorf("Sessions.PairingTimeout = %v, want 90s", cfg.Sessions.PairingTimeout)
	}
	if cfg.Engine.Type != EngineBrowser || cfg.Engine.Browser.PollInterval != 500*time.Millisecond {
		t.Errorf("Engine = %+v", cfg.Engine)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.TopicPrefix != "foxbridge" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	// Untouched defaults survive.
	if cfg.Sessions.DirPrefix != "session-" || cfg.Sessions.TeardownTimeout != 10*time.Second {
		t.Errorf("Sessions defaults lost: %+v", cfg.Sessions)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 3001 {
		t.Errorf("API.Port = %d, want 3001", cfg.API.Port)
	}
	if cfg.Sessions.PairingTimeout != 120*time.Second {
		t.Errorf("PairingTimeout = %v, want 120s", cfg.Sessions.PairingTimeout)
	}
	if !cfg.Sessions.RecoverOnBoot {
		t.Error("RecoverOnBoot should default to true")
	}
	if cfg.Security.AuthEnabled() {
		t.Error("auth should be disabled without a JWT secret")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOXBRIDGE_API_PORT", "4000")
	t.Setenv("FOXBRIDGE_SESSIONS_AUTH_DIR", "/env/auth")
	t.Setenv("FOXBRIDGE_SESSIONS_PAIRING_TIMEOUT", "45s")
	t.Setenv("FOXBRIDGE_DATABASE_PATH", "/env/db.sqlite")
	t.Setenv("FOXBRIDGE_JWT_SECRET", "env-secret-that-is-at-least-32-characters")

	cfg, err := Load(writeConfig(t, "api:\n  port: 3001\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 4000 {
		t.Errorf("API.Port = %d, want 4000", cfg.API.Port)
	}
	if cfg.Sessions.AuthDir != "/env/auth" {
		t.Errorf("Sessions.AuthDir = %q", cfg.Sessions.AuthDir)
	}
	if cfg.Sessions.PairingTimeout != 45*time.Second {
		t.Errorf("PairingTimeout = %v", cfg.Sessions.PairingTimeout)
	}
	if cfg.Database.Path != "/env/db.sqlite" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.Security.AuthEnabled() {
		t.Error("auth should be enabled with a JWT secret")
	}
}

func TestLoad_BadEnvPort(t *testing.T) {
	t.Setenv("FOXBRIDGE_API_PORT", "not-a-port")
	if _, err := Load(writeConfig(t, "{}")); err == nil {
		t.Error("Load() expected error for malformed port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"no auth dir", func(c *Config) { c.Sessions.AuthDir = "" }, "sessions.auth_dir"},
		{"prefix with slash", func(c *Config) { c.Sessions.DirPrefix = "a/" }, "sessions.dir_prefix"},
		{"zero pairing timeout", func(c *Config) { c.Sessions.PairingTimeout = 0 }, "sessions.pairing_timeout"},
		{"unknown engine", func(c *Config) { c.Engine.Type = "telepathy" }, "engine.type"},
		{"helper without command", func(c *Config) { c.Engine.Helper.Command = "" }, "engine.helper.command"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"short secret", func(c *Config) { c.Security.JWT.Secret = "short" }, "security.jwt.secret"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"tls without cert", func(c *Config) { c.API.TLS.Enabled = true }, "api.tls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := defaultConfig()
	if cfg.GetReadTimeout() != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v", cfg.GetReadTimeout())
	}
	if cfg.GetWriteTimeout() != 60*time.Second {
		t.Errorf("GetWriteTimeout() = %v", cfg.GetWriteTimeout())
	}
	if cfg.GetIdleTimeout() != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v", cfg.GetIdleTimeout())
	}
}
