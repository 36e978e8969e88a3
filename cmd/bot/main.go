package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/bot"
	"github.com/user/weather-bot-go/internal/config"
	"github.com/user/weather-bot-go/internal/interaction"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/push"
	"github.com/user/weather-bot-go/internal/scheduler"
	"github.com/user/weather-bot-go/internal/server"
	"github.com/user/weather-bot-go/internal/store"
	"github.com/user/weather-bot-go/internal/weather"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 30 * time.Second
)

func main() {
	// Structured JSON logging until the configured level is known
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setupLogger(&cfg.Log)
	log.Info().Str("store", cfg.Store.Driver).Msg("Configuration loaded successfully")

	// Create root context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open subscriber backend")
	}

	subscribers, err := store.Open(ctx, backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load subscribers")
	}
	metrics.SetSubscribers(subscribers.Len())
	log.Info().Int("subscribers", subscribers.Len()).Msg("Subscriber store ready")

	weatherClient := weather.NewClient(&cfg.Weather)

	telegramClient, err := bot.NewClient(cfg.Bot.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}
	log.Info().Str("username", telegramClient.Username()).Msg("Telegram client initialized")

	if err := telegramClient.SetCommands(bot.Commands); err != nil {
		log.Warn().Err(err).Msg("Failed to publish command menu")
	}

	formatter := push.NewFormatter()
	dispatcher := push.NewDispatcher(weatherClient, telegramClient, formatter, cfg.Scheduler.FetchTimeout)

	machine := interaction.New(subscribers)
	botHandler := bot.NewHandler(machine, weatherClient, formatter, telegramClient, cfg.Scheduler.FetchTimeout)

	sched, err := scheduler.New(subscribers, dispatcher, scheduler.SystemClock{}, &cfg.Scheduler)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	for _, b := range sched.Broadcasts() {
		log.Info().Str("spec", b.Spec).Str("occasion", string(b.Occasion)).Msg("Broadcast scheduled")
	}

	httpServer := server.NewServer(subscribers, sched)

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	sched.Start(ctx)

	go func() {
		log.Info().Msg("Starting Telegram bot polling")
		updates := telegramClient.GetUpdates()
		for update := range updates {
			botHandler.HandleUpdate(ctx, update)
		}
	}()

	log.Info().Msg("Weather bot started successfully")

	// Wait for shutdown signal
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	log.Info().Msg("Starting graceful shutdown...")

	// 1. Stop scheduling new ticks and wait for the running one
	sched.Stop()

	// 2. Stop Telegram bot polling
	telegramClient.StopReceivingUpdates()
	log.Info().Msg("Telegram bot polling stopped")

	// 3. Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	// 4. Close the subscriber backend
	if err := subscribers.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing subscriber store")
	} else {
		log.Info().Msg("Subscriber store closed")
	}

	cancel()

	select {
	case <-shutdownCtx.Done():
		if shutdownCtx.Err() == context.DeadlineExceeded {
			log.Warn().Msg("Shutdown timeout exceeded, forcing exit")
		}
	default:
		log.Info().Msg("Graceful shutdown completed")
	}
}

// setupLogger applies LOG_LEVEL and LOG_PRETTY to the global logger
func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Caller().Logger()
	}
}

// openBackend selects the persistence backend named by STORE_DRIVER
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverJSON:
		log.Info().Str("path", cfg.Store.Path).Msg("Using JSON file store")
		return store.NewJSONBackend(cfg.Store.Path), nil
	case config.DriverSQLite:
		log.Info().Str("path", cfg.Store.SQLitePath).Msg("Using SQLite store")
		backend, err := store.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.DriverMySQL:
		log.Info().Str("host", cfg.DB.Host).Str("database", cfg.DB.Database).Msg("Using MySQL store")
		backend, err := store.NewMySQLBackend(&cfg.DB)
		if err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
