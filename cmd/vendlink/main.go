// VendLink Core - vending machine connectivity service
//
// This is the main entry point for the VendLink Core application. It bridges
// fleet devices (vending machines, lockers, dispensers) speaking MQTT to the
// HTTP/WebSocket surfaces that terminal front-ends consume: last-known state,
// live state feeds, command dispatch, and machine code resolution.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vendlink/vendlink-core/internal/api"
	"github.com/vendlink/vendlink-core/internal/bridge"
	"github.com/vendlink/vendlink-core/internal/command"
	"github.com/vendlink/vendlink-core/internal/feed"
	"github.com/vendlink/vendlink-core/internal/infrastructure/config"
	"github.com/vendlink/vendlink-core/internal/infrastructure/logging"
	"github.com/vendlink/vendlink-core/internal/infrastructure/mqtt"
	"github.com/vendlink/vendlink-core/internal/lookup"
	"github.com/vendlink/vendlink-core/internal/state"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting VendLink Core",
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

	// Connect to MQTT broker. Failure here is fatal: without the broker the
	// service cannot do its job.
	mqttClient, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// State store and live feed registry
	store := state.NewStore()
	registry := feed.NewRegistry(store, cfg.Feed.BufferSize)
	registry.SetLogger(log)

	// Bridge: broker in, store + feed out
	deviceBridge := bridge.New(mqttClient, store, registry, byte(cfg.MQTT.QoS))
	deviceBridge.SetLogger(log)
	if err := deviceBridge.Start(); err != nil {
		return fmt.Errorf("starting device bridge: %w", err)
	}
	log.Info("device bridge started")

	// Command gateway publishes through the bridge
	gateway := command.NewGateway(deviceBridge)
	gateway.SetLogger(log)

	// Machine code resolver (optional: empty table disables nothing, it just
	// resolves no codes)
	resolver := lookup.NewResolver(cfg.Lookup.Secret, cfg.Lookup.Codes)
	log.Info("code resolver initialised", "codes", resolver.Count())

	// HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		Feed:     cfg.Feed,
		Logger:   log,
		Store:    store,
		Registry: registry,
		Bridge:   deviceBridge,
		Gateway:  gateway,
		Resolver: resolver,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, mqttClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (ends live feeds, drains requests)
	// 2. MQTT (publishes offline status)

	log.Info("VendLink Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VENDLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VENDLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, apiServer *api.Server) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
