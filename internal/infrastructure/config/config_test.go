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
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  host: "192.168.1.50"
  poll_interval: 20
  exclude: ["1010", "2020"]
database:
  path: "/tmp/test.db"
  retention_days: 7
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9090
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.Host != "192.168.1.50" {
		t.Errorf("Bridge.Host = %q, want %q", cfg.Bridge.Host, "192.168.1.50")
	}
	if cfg.GetPollInterval() != 20*time.Second {
		t.Errorf("GetPollInterval() = %v, want 20s", cfg.GetPollInterval())
	}
	if len(cfg.Bridge.Exclude) != 2 {
		t.Errorf("Bridge.Exclude = %v, want 2 entries", cfg.Bridge.Exclude)
	}
	if cfg.GetRetention() != 7*24*time.Hour {
		t.Errorf("GetRetention() = %v, want 168h", cfg.GetRetention())
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}

	// Untouched sections keep their defaults.
	if cfg.GetPollTimeout() != 10*time.Second || cfg.GetSettleDelay() != 5*time.Second {
		t.Errorf("timeouts = %v/%v, want defaults", cfg.GetPollTimeout(), cfg.GetSettleDelay())
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want /ws", cfg.WebSocket.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
bridge:
  host: ""
`))
	if err == nil {
		t.Error("Load() expected validation error for empty bridge.host, got nil")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("HOMEPILOT_BRIDGE_HOST", "10.0.0.5")
	t.Setenv("HOMEPILOT_BRIDGE_PASSWORD", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Bridge.Host != "10.0.0.5" || cfg.Bridge.Password != "secret" {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  host: "file-host"
  password: "file-password"
`)

	t.Setenv("HOMEPILOT_BRIDGE_HOST", "env-host")
	t.Setenv("HOMEPILOT_BRIDGE_PASSWORD", "")
	t.Setenv("HOMEPILOT_BRIDGE_POLL_INTERVAL", "45")
	t.Setenv("HOMEPILOT_BRIDGE_EXCLUDE", " 1010, ,2020 ")
	t.Setenv("HOMEPILOT_DATABASE_PATH", "/var/lib/homepilot/test.db")
	t.Setenv("HOMEPILOT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HOMEPILOT_MQTT_PORT", "8883")
	t.Setenv("HOMEPILOT_MQTT_USERNAME", "user")
	t.Setenv("HOMEPILOT_MQTT_PASSWORD", "pass")
	t.Setenv("HOMEPILOT_API_HOST", "127.0.0.1")
	t.Setenv("HOMEPILOT_API_PORT", "8181")
	t.Setenv("HOMEPILOT_INFLUXDB_TOKEN", "token")
	t.Setenv("HOMEPILOT_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"bridge host", cfg.Bridge.Host, "env-host"},
		{"bridge password cleared", cfg.Bridge.Password, ""},
		{"poll interval", cfg.Bridge.PollInterval, 45},
		{"exclude", strings.Join(cfg.Bridge.Exclude, ","), "1010,2020"},
		{"database path", cfg.Database.Path, "/var/lib/homepilot/test.db"},
		{"mqtt host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"mqtt port", cfg.MQTT.Broker.Port, 8883},
		{"mqtt username", cfg.MQTT.Auth.Username, "user"},
		{"mqtt password", cfg.MQTT.Auth.Password, "pass"},
		{"api host", cfg.API.Host, "127.0.0.1"},
		{"api port", cfg.API.Port, 8181},
		{"influx token", cfg.InfluxDB.Token, "token"},
		{"log level", cfg.Logging.Level, "debug"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_BadEnvInt(t *testing.T) {
	t.Setenv("HOMEPILOT_BRIDGE_HOST", "10.0.0.5")
	t.Setenv("HOMEPILOT_API_PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric HOMEPILOT_API_PORT")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Bridge.Host = "192.168.1.50"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing host", func(c *Config) { c.Bridge.Host = "" }, "bridge.host"},
		{"zero poll interval", func(c *Config) { c.Bridge.PollInterval = 0 }, "bridge.poll_interval"},
		{"timeout above interval", func(c *Config) { c.Bridge.PollTimeout = 60 }, "must not exceed"},
		{"zero request timeout", func(c *Config) { c.Bridge.RequestTimeout = 0 }, "bridge.request_timeout"},
		{"negative settle delay", func(c *Config) { c.Bridge.SettleDelay = -1 }, "bridge.settle_delay"},
		{"database without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"database disabled without path", func(c *Config) {
			c.Database.Enabled = false
			c.Database.Path = ""
		}, ""},
		{"negative retention", func(c *Config) { c.Database.RetentionDays = -1 }, "retention_days"},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"mqtt disabled ignores qos", func(c *Config) {
			c.MQTT.Enabled = false
			c.MQTT.QoS = 3
		}, ""},
		{"invalid port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"influx without url", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Org = "home"
			c.InfluxDB.Bucket = "states"
		}, "influxdb.url"},
		{"influx without bucket", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://influx:8086"
		}, "influxdb.bucket"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Port = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	for _, want := range []string{"bridge.host", "api.port", "logging.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_TimeoutHelpers(t *testing.T) {
	cfg := &Config{
		Bridge: BridgeConfig{RequestTimeout: 3, HealthInterval: 15},
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 120},
		},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"request", cfg.GetRequestTimeout(), 3 * time.Second},
		{"health", cfg.GetHealthInterval(), 15 * time.Second},
		{"read", cfg.GetReadTimeout(), 30 * time.Second},
		{"write", cfg.GetWriteTimeout(), 45 * time.Second},
		{"idle", cfg.GetIdleTimeout(), 120 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
