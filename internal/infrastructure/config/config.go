package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Netatmo bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Netatmo   NetatmoConfig   `yaml:"netatmo"`
	Callback  CallbackConfig  `yaml:"callback"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Homie     HomieConfig     `yaml:"homie"`
	Poll      PollConfig      `yaml:"poll"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NetatmoConfig contains the vendor OAuth2 application credentials and the
// location of persisted state (the cached refresh token).
type NetatmoConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	DataDir      string `yaml:"data_dir"`
}

// CallbackConfig contains the OAuth2 callback listener settings.
//
// The redirect host/port are what the vendor redirects the operator's browser
// to and may differ from the listen address when the bridge runs behind port
// mapping (e.g. a container). They default to the listen host/port.
type CallbackConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	RedirectHost string `yaml:"redirect_host"`
	RedirectPort int    `yaml:"redirect_port"`
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
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// HomieConfig contains the identity the bridge publishes under on the
// Homie topic tree.
type HomieConfig struct {
	Domain     string `yaml:"domain"`
	DeviceID   string `yaml:"device_id"`
	DeviceName string `yaml:"device_name"`
}

// PollConfig contains the module polling cadence (in seconds).
type PollConfig struct {
	Interval int `yaml:"interval"`
}

// KeepaliveConfig contains the token keepalive interval ceiling (in seconds).
type KeepaliveConfig struct {
	Interval int `yaml:"interval"`
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
// Environment variables follow the pattern: NETATMO_BRIDGE_SECTION_KEY
// For example: NETATMO_BRIDGE_CLIENT_SECRET, NETATMO_BRIDGE_MQTT_HOST
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
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Netatmo: NetatmoConfig{
			DataDir: "./data",
		},
		Callback: CallbackConfig{
			Host: "0.0.0.0",
			Port: 8888,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Homie: HomieConfig{
			Domain:     "homie",
			DeviceID:   "netatmo",
			DeviceName: "Netatmo Weather Station",
		},
		Poll: PollConfig{
			Interval: 300,
		},
		Keepalive: KeepaliveConfig{
			Interval: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: NETATMO_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Vendor credentials (secrets belong in the environment, not on disk)
	if v := os.Getenv("NETATMO_BRIDGE_CLIENT_ID"); v != "" {
		cfg.Netatmo.ClientID = v
	}
	if v := os.Getenv("NETATMO_BRIDGE_CLIENT_SECRET"); v != "" {
		cfg.Netatmo.ClientSecret = v
	}
	if v := os.Getenv("NETATMO_BRIDGE_DATA_DIR"); v != "" {
		cfg.Netatmo.DataDir = v
	}

	// Callback listener
	if v := os.Getenv("NETATMO_BRIDGE_CALLBACK_HOST"); v != "" {
		cfg.Callback.Host = v
	}
	if v := os.Getenv("NETATMO_BRIDGE_CALLBACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Callback.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("NETATMO_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("NETATMO_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("NETATMO_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Vendor credentials are required — without them neither the authorization
	// URL nor a token exchange can be constructed.
	if c.Netatmo.ClientID == "" {
		errs = append(errs, "netatmo.client_id is required (set NETATMO_BRIDGE_CLIENT_ID environment variable)")
	}
	if c.Netatmo.ClientSecret == "" {
		errs = append(errs, "netatmo.client_secret is required (set NETATMO_BRIDGE_CLIENT_SECRET environment variable)")
	}
	if c.Netatmo.DataDir == "" {
		errs = append(errs, "netatmo.data_dir is required")
	}

	// Callback validation
	if c.Callback.Port < 1 || c.Callback.Port > 65535 {
		errs = append(errs, "callback.port must be between 1 and 65535")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Homie identity validation — these values appear verbatim in MQTT topics.
	if !isValidHomieID(c.Homie.Domain) {
		errs = append(errs, "homie.domain must be lowercase letters, digits and hyphens")
	}
	if !isValidHomieID(c.Homie.DeviceID) {
		errs = append(errs, "homie.device_id must be lowercase letters, digits and hyphens")
	}

	// Poll/keepalive validation
	if c.Poll.Interval < 1 {
		errs = append(errs, "poll.interval must be at least 1 second")
	}
	if c.Keepalive.Interval < 1 {
		errs = append(errs, "keepalive.interval must be at least 1 second")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// isValidHomieID reports whether s is a valid Homie topic identifier:
// non-empty, lowercase alphanumerics and hyphens, not starting or ending
// with a hyphen.
func isValidHomieID(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

// PollInterval returns the module polling cadence as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.Interval) * time.Second
}

// KeepaliveInterval returns the keepalive interval ceiling as a Duration.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Keepalive.Interval) * time.Second
}

// ListenAddr returns the host:port the callback listener binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Callback.Host, c.Callback.Port)
}

// CallbackURL returns the redirect URL registered with the vendor.
//
// The redirect host/port fall back to the listen host/port when not set,
// covering the common case where no port mapping is in play.
func (c *Config) CallbackURL() string {
	host := c.Callback.RedirectHost
	if host == "" {
		host = c.Callback.Host
	}
	port := c.Callback.RedirectPort
	if port == 0 {
		port = c.Callback.Port
	}
	return fmt.Sprintf("http://%s:%d/netatmo/auth", host, port)
}
