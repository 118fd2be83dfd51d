// Netatmo Bridge - Weather Station to MQTT (Homie)
//
// This is the main entry point for the Netatmo bridge. The bridge polls a
// Netatmo weather station account over the vendor's cloud API and publishes
// every station and module as a Homie 4.0 device on an MQTT broker:
//   - OAuth2 authorization with a durable refresh-token cache
//   - Background token keepalive so the session survives idle periods
//   - Wholesale device-tree rebuilds when modules appear or disappear
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/netatmo-bridge/internal/bridge"
	"github.com/nerrad567/netatmo-bridge/internal/homie"
	"github.com/nerrad567/netatmo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/netatmo-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/netatmo-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/netatmo-bridge/internal/netatmo"
	"github.com/nerrad567/netatmo-bridge/internal/tokenstore"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Netatmo bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker. The LWT marks the Homie device "lost" if the
	// process dies without announcing a clean disconnect.
	will := mqtt.Will{
		Topic:   homie.StateTopic(cfg.Homie.Domain, cfg.Homie.DeviceID),
		Payload: homie.StateLost,
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Build the vendor session on top of the durable token cache
	store := tokenstore.New(cfg.Netatmo.DataDir)
	session := netatmo.NewSession(netatmo.Config{
		ClientID:     cfg.Netatmo.ClientID,
		ClientSecret: cfg.Netatmo.ClientSecret,
		CallbackURL:  cfg.CallbackURL(),
	}, store, log)
	log.Info("vendor session initialised",
		"token_cache", store.Path(),
		"authenticated", session.Authenticated(),
	)

	// Assemble the bridge
	b, err := bridge.New(bridge.Options{
		Session:           session,
		Publisher:         mqttClient,
		ListenAddr:        cfg.ListenAddr(),
		Domain:            cfg.Homie.Domain,
		DeviceID:          cfg.Homie.DeviceID,
		DeviceName:        cfg.Homie.DeviceName,
		PollInterval:      cfg.PollInterval(),
		KeepaliveInterval: cfg.KeepaliveInterval(),
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("assembling bridge: %w", err)
	}
	defer func() {
		// Retire the published device while the MQTT connection is still up
		log.Info("retiring published device")
		if stopErr := b.Stop(); stopErr != nil {
			log.Error("error retiring published device", "error", stopErr)
		}
	}()

	log.Info("bridge running",
		"poll_interval", cfg.PollInterval(),
		"keepalive_interval", cfg.KeepaliveInterval(),
		"listen_addr", cfg.ListenAddr(),
	)

	// Block until a loop fails or a shutdown signal arrives
	if err := b.Run(ctx); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	log.Info("shutting down gracefully")
	return nil
}

// getConfigPath returns the configuration file path, honouring the
// NETATMO_BRIDGE_CONFIG environment variable.
func getConfigPath() string {
	if path := os.Getenv("NETATMO_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
