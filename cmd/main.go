// Package main provides the entry point for the go-aims inverter bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/resident-x/go-aims/internal/api"
	"github.com/resident-x/go-aims/internal/config"
	"github.com/resident-x/go-aims/internal/domain"
	"github.com/resident-x/go-aims/internal/homeassistant"
	"github.com/resident-x/go-aims/internal/pubsub"
	"github.com/resident-x/go-aims/internal/scheduler"
	"github.com/resident-x/go-aims/internal/service"
	"github.com/resident-x/go-aims/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	Version = "" // Overridden by build flags, falls back to the module build info
)

// options holds the parsed command line.
type options struct {
	configFile  string
	showVersion bool
	dryRun      bool
}

func main() {
	code := run(os.Args[1:]) // run() returns an int
	os.Exit(code)            // os.Exit is called after deferred functions in run() execute
}

func version() string {
	if Version != "" {
		return Version
	}
	return versioninfo.Short()
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("go-aims", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file (searches ./config.yaml and ./config/config.yaml when empty)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Read and decode one frame, log messages instead of publishing")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// Show version if requested
	if opts.showVersion {
		fmt.Printf("go-aims %s\n", version())
		return 0
	}

	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logger with the configured log level
	initLogger(cfg.LogLevel)

	log.Info().Str("version", version()).Msg("Starting go-aims")
	cfg.Print()

	catalog, err := homeassistant.LoadCatalog()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load metric catalog")
		return 1
	}

	topics := homeassistant.Topics{
		DiscoveryPrefix: cfg.HomeAssistant.DiscoveryPrefix,
		BaseTopic:       cfg.MQTT.BaseTopic,
		ModelTopic:      cfg.MQTT.ModelTopic,
	}

	device, err := homeassistant.ResolveDeviceJSON(cfg.HomeAssistant.DeviceJSON, homeassistant.NewDeviceInfo(
		topics,
		cfg.HomeAssistant.DeviceName,
		cfg.HomeAssistant.DeviceManufacturer,
		cfg.HomeAssistant.DeviceModel,
		version(),
	))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build device descriptor")
		return 1
	}

	// One-shot runs always send discovery; the daemon remembers what it sent.
	var tracker *homeassistant.DiscoveryTracker
	if cfg.Daemon() {
		tracker = homeassistant.NewDiscoveryTracker(cfg.RediscoveryInterval())
	}

	publisher, err := newPublisher(ctx, cfg, opts.dryRun, topics, tracker)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to MQTT broker")
		return 1
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing publisher")
		}
	}()

	bridge := service.NewBridge(service.Options{
		Topics:      topics,
		DeviceJSON:  device,
		ExpireAfter: cfg.HomeAssistant.ExpireAfter,
		ReadTimeout: cfg.Serial.ReadTimeout,
		Tracker:     tracker,
	}, transport.Opener(cfg), publisher, catalog)

	if !cfg.Daemon() {
		result := bridge.RunOnce(ctx)
		return result.Outcome.ExitCode()
	}

	return runDaemon(ctx, cfg, bridge)
}

// newPublisher selects the message bus: a logging publisher for dry runs, MQTT otherwise.
func newPublisher(ctx context.Context, cfg *config.Config, dryRun bool, topics homeassistant.Topics,
	tracker *homeassistant.DiscoveryTracker) (domain.MessagePublisher, error) {
	if dryRun || !cfg.MQTT.Enabled {
		log.Info().Bool("dry_run", dryRun).Msg("MQTT publishing disabled, logging messages instead")
		publisher := pubsub.NewLogPublisher()
		return publisher, publisher.Connect(ctx)
	}

	mqttPublisher := pubsub.NewMQTTPublisher(cfg, topics.BirthTopic())
	if tracker != nil {
		mqttPublisher.OnBirth(func() { tracker.Reset("birth message") })
		mqttPublisher.OnReconnect(func() { tracker.Reset("reconnect") })
	}

	if err := mqttPublisher.Connect(ctx); err != nil {
		return nil, err
	}
	log.Info().Msg("MQTT publisher connected successfully")
	return mqttPublisher, nil
}

// runDaemon polls the inverter until a shutdown signal arrives.
func runDaemon(ctx context.Context, cfg *config.Config, bridge *service.Bridge) int {
	pollScheduler := scheduler.NewPollScheduler(cfg.Poll.Interval, func(ctx context.Context) {
		bridge.RunOnce(ctx)
	}, log.Logger)

	if err := pollScheduler.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start poll scheduler")
		return 1
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, bridge, version())
		apiServer.SetScheduler(pollScheduler)
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start API server")
			_ = pollScheduler.Stop()
			return 1
		}
	}

	// Handle graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	// Wait for shutdown signal
	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	// Create context with timeout for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	code := 0
	if err := pollScheduler.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping poll scheduler")
		code = 1
	}
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping API server")
			code = 1
		}
	}

	log.Info().Int("runs", bridge.Runs()).Msg("Bridge stopped")
	return code
}

// initLogger configures the global zerolog logger.
func initLogger(level string) {
	// Set up pretty console logging for development
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	// Parse the log level
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		fmt.Printf("Invalid log level '%s', defaulting to 'info'\n", level)
		logLevel = zerolog.InfoLevel
	}

	// Configure global logger
	zerolog.SetGlobalLevel(logLevel)
	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}
