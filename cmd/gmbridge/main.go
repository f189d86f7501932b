// GMBridge - GM tooling bridge for private game servers.
//
// GMBridge keeps one long-lived TCP connection to a game server's GM port
// and translates authenticated HTTP requests into framed, encrypted GM
// commands. It exposes a REST API for remote tooling, an interactive CLI,
// and publishes real-time telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gmbridge-project/gmbridge/internal/api"
	"github.com/gmbridge-project/gmbridge/internal/bridge"
	"github.com/gmbridge-project/gmbridge/internal/cli"
	"github.com/gmbridge-project/gmbridge/internal/config"
	"github.com/gmbridge-project/gmbridge/internal/connector"
	"github.com/gmbridge-project/gmbridge/internal/db"
	"github.com/gmbridge-project/gmbridge/internal/dispatch"
	"github.com/gmbridge-project/gmbridge/internal/events"
	"github.com/gmbridge-project/gmbridge/internal/health"
	"github.com/gmbridge-project/gmbridge/internal/protocol"
	"github.com/gmbridge-project/gmbridge/internal/scheduler"
	"github.com/gmbridge-project/gmbridge/internal/telemetry"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

const (
	AppName = "GMBridge"
	Banner  = `
   _____ __  __ ____       _     _
  / ____|  \/  |  _ \     (_)   | |
 | |  __| \  / | |_) |_ __ _  __| | __ _  ___
 | | |_ | |\/| |  _ <| '__| |/ _' |/ _' |/ _ \
 | |__| | |  | | |_) | |  | | (_| | (_| |  __/
  \_____|_|  |_|____/|_|  |_|\__,_|\__, |\___|
                                    __/ |
                                   |___/  v%s
 GM Tooling Bridge & API
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, util.Version)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", util.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting GMBridge")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logging := cfg.GetApplicationData().Logging
	logCfg := util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxSizeMB:  logging.MaxSizeMB,
		MaxBackups: logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	// Operator store. The initial admin password can be provided via
	// environment on the very first start.
	store, err := db.NewUserStore(cfg.GetApplicationData().Database.Path, os.Getenv("GMBRIDGE_ADMIN_PASSWORD"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open operator database")
	}
	defer store.Close()

	// Frame dispatcher and game server connector
	dispatcher := dispatch.NewDispatcher()
	gameConn := connector.NewGameServerConnector(cfg, eventBus, func(frame protocol.Frame) {
		dispatcher.Dispatch(frame)
	})

	// Command bridge
	game := cfg.GetGameData()
	br := bridge.New(gameConn, dispatcher, game.Account, game.RequestTimeout())

	// Initialize REST API
	apiServer := api.NewServer(cfg, eventBus, br, store)

	// Initialize health check manager (re-login, heartbeat)
	healthMgr := health.NewManager(cfg, eventBus, br)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetApplicationData().MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize scheduler (audit retention, stats)
	sched := scheduler.NewScheduler(cfg, eventBus, store)

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, br, store)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Manage the game server connection
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("host", game.Host).Int("port", game.Port).Msg("starting game server connector")
		if err := gameConn.ManageConnection(ctx); err != nil {
			log.Error().Err(err).Msg("game server connection failed")
			errCh <- fmt.Errorf("game connector: %w", err)
		}
	}()

	// Task 2: Start REST API server (with retry for port binding)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", game.APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Error().Err(err).Msg("API server failed after retries")
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Task 3: Health check manager
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting health check manager")
		healthMgr.Start(ctx)
	}()

	// Task 4: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 5: Scheduler (audit retention, stats)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 6: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The CLI 'quit' command requests shutdown through the event bus.
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Cancel the root context to signal all goroutines
	cancel()

	// Disconnect the game link so pending reads unblock
	gameConn.Stop()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	if mqttHandler != nil {
		mqttHandler.PublishShutdown()
	}

	log.Info().Msg("GMBridge stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors. Uses a fixed 3-second interval between retries so the OS has time
// to release sockets after a previous instance exits.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
