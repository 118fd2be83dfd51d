package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

const validConfig = `
netatmo:
  client_id: "test-client-id"
  client_secret: "test-client-secret"
  data_dir: "/tmp/netatmo-bridge"
callback:
  host: "0.0.0.0"
  port: 8888
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "netatmo-bridge-test"
  qos: 1
homie:
  domain: "homie"
  device_id: "netatmo"
  device_name: "Netatmo Weather Station"
poll:
  interval: 300
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Netatmo.ClientID != "test-client-id" {
		t.Errorf("Netatmo.ClientID = %q, want %q", cfg.Netatmo.ClientID, "test-client-id")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Homie.DeviceID != "netatmo" {
		t.Errorf("Homie.DeviceID = %q, want %q", cfg.Homie.DeviceID, "netatmo")
	}

	if got := cfg.PollInterval(); got != 5*time.Minute {
		t.Errorf("PollInterval() = %v, want %v", got, 5*time.Minute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "netatmo: [not a mapping"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	content := `
netatmo:
  data_dir: "/tmp/netatmo-bridge"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}

	if !strings.Contains(err.Error(), "client_id") {
		t.Errorf("Load() error = %v, want mention of client_id", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NETATMO_BRIDGE_CLIENT_SECRET", "env-secret")
	t.Setenv("NETATMO_BRIDGE_MQTT_HOST", "broker.example.net")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Netatmo.ClientSecret != "env-secret" {
		t.Errorf("Netatmo.ClientSecret = %q, want env override %q", cfg.Netatmo.ClientSecret, "env-secret")
	}

	if cfg.MQTT.Broker.Host != "broker.example.net" {
		t.Errorf("MQTT.Broker.Host = %q, want env override %q", cfg.MQTT.Broker.Host, "broker.example.net")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "valid defaults with credentials",
			modify:  func(_ *Config) {},
			wantErr: "",
		},
		{
			name:    "invalid qos",
			modify:  func(cfg *Config) { cfg.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid callback port",
			modify:  func(cfg *Config) { cfg.Callback.Port = 0 },
			wantErr: "callback.port",
		},
		{
			name:    "uppercase device id",
			modify:  func(cfg *Config) { cfg.Homie.DeviceID = "Netatmo" },
			wantErr: "homie.device_id",
		},
		{
			name:    "device id with leading hyphen",
			modify:  func(cfg *Config) { cfg.Homie.DeviceID = "-netatmo" },
			wantErr: "homie.device_id",
		},
		{
			name:    "zero poll interval",
			modify:  func(cfg *Config) { cfg.Poll.Interval = 0 },
			wantErr: "poll.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Netatmo.ClientID = "id"
			cfg.Netatmo.ClientSecret = "secret"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestCallbackURL(t *testing.T) {
	tests := []struct {
		name string
		cb   CallbackConfig
		want string
	}{
		{
			name: "defaults to listen address",
			cb:   CallbackConfig{Host: "192.168.1.10", Port: 8888},
			want: "http://192.168.1.10:8888/netatmo/auth",
		},
		{
			name: "redirect host and port override",
			cb:   CallbackConfig{Host: "0.0.0.0", Port: 8888, RedirectHost: "bridge.lan", RedirectPort: 80},
			want: "http://bridge.lan:80/netatmo/auth",
		},
		{
			name: "redirect host only",
			cb:   CallbackConfig{Host: "0.0.0.0", Port: 8888, RedirectHost: "bridge.lan"},
			want: "http://bridge.lan:8888/netatmo/auth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Callback = tt.cb

			if got := cfg.CallbackURL(); got != tt.want {
				t.Errorf("CallbackURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
