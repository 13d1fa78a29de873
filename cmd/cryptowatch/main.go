// CryptoWatch - personal crypto portfolio monitor
//
// Polls market prices, compares each asset's value against its rebalancing
// target, and alerts when it drifts outside the tolerance band. Broker CSV
// exports dropped into the watch directory are reconciled into the ledger
// and optionally mirrored to a Google spreadsheet.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mdriscoll/cryptowatch/internal/cmc"
	"github.com/mdriscoll/cryptowatch/internal/config"
	"github.com/mdriscoll/cryptowatch/internal/database"
	"github.com/mdriscoll/cryptowatch/internal/engine"
	"github.com/mdriscoll/cryptowatch/internal/notify"
	"github.com/mdriscoll/cryptowatch/internal/sheets"
	"github.com/mdriscoll/cryptowatch/internal/watcher"
)

const version = "2.1.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("watch_dir", cfg.WatchDirectory).
		Int("interval_minutes", cfg.SleepInterval).
		Msg("CryptoWatch starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Market data client
	quotes := cmc.NewClient(cfg.CMCAPIKey, cfg.CMCBaseURL, cfg.Convert)

	// Notification channels
	var senders []notify.Sender
	if cfg.SlackEnabled {
		senders = append(senders, notify.NewSlackSender(cfg.SlackWebhookURL))
		log.Info().Msg("Slack notifications enabled")
	}
	if cfg.PushbulletEnabled {
		senders = append(senders, notify.NewPushbulletSender(cfg.PushbulletToken))
		log.Info().Msg("Pushbullet notifications enabled")
	}
	if cfg.TelegramEnabled {
		telegram, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect Telegram")
		}
		senders = append(senders, telegram)
	}
	if len(senders) == 0 {
		log.Warn().Msg("No notification channels enabled, alerts will only be logged")
	}
	notifier := notify.New(senders...)

	// Spreadsheet mirror (optional)
	var mirror watcher.Mirror
	if cfg.SheetsEnabled {
		m, err := sheets.New(ctx, cfg.CredentialsFile, cfg.SheetsID, cfg.CashSymbol, db)
		if err != nil {
			log.Error().Err(err).Msg("Sheets mirror unavailable, continuing without it")
		} else {
			mirror = m
			log.Info().Str("spreadsheet", cfg.SheetsID).Msg("Sheets mirror enabled")
		}
	}

	// The coordinator keeps the two loops off each other's snapshot
	coord := engine.NewCoordinator()

	importer := watcher.NewImporter(db, quotes, notifier)
	fileWatcher := watcher.New(cfg.WatchDirectory, importer, coord, mirror)
	rebalancer := engine.New(db, quotes, notifier, coord, cfg)

	errCh := make(chan error, 2)
	go func() { errCh <- fileWatcher.Run(ctx) }()
	go func() { errCh <- rebalancer.Run(ctx) }()

	// Wait for shutdown signal or a loop dying
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
		cancel()
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Component failed")
		}
	}
}
