package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the watcher
type Config struct {
	// General
	WatchDirectory string
	SleepInterval  int // minutes between rebalance passes
	DndStart       int // hour (0-23) quiet window begins
	DndEnd         int // hour (0-23) quiet window ends
	CashFloor      decimal.Decimal
	CashSymbol     string
	CashName       string
	CashSlug       string

	// CoinMarketCap
	CMCAPIKey  string
	CMCBaseURL string
	Convert    string // currency quotes are converted to

	// Integrations
	SlackWebhookURL   string
	SlackEnabled      bool
	PushbulletToken   string
	PushbulletEnabled bool
	TelegramToken     string
	TelegramChatID    int64
	TelegramEnabled   bool

	// Google Sheets mirror
	SheetsID        string
	SheetsEnabled   bool
	CredentialsFile string

	// Mode
	Debug bool

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// General
		WatchDirectory: getEnv("WATCH_DIRECTORY", "data/watch"),
		SleepInterval:  getEnvInt("SLEEP_INTERVAL", 5),
		DndStart:       getEnvInt("DND_START", 0),
		DndEnd:         getEnvInt("DND_END", 0),
		CashFloor:      getEnvDecimal("CASH_FLOOR", decimal.NewFromInt(100)),
		CashSymbol:     getEnv("CASH_SYMBOL", "USD"),
		CashName:       getEnv("CASH_NAME", "US Dollar"),
		CashSlug:       getEnv("CASH_SLUG", "us-dollar"),

		// CoinMarketCap
		CMCAPIKey:  os.Getenv("CMC_API_KEY"),
		CMCBaseURL: getEnv("CMC_BASE_URL", "https://pro-api.coinmarketcap.com"),
		Convert:    getEnv("CMC_CONVERT", "USD"),

		// Integrations
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		SlackEnabled:      getEnvBool("SLACK_ENABLED", false),
		PushbulletToken:   os.Getenv("PUSHBULLET_TOKEN"),
		PushbulletEnabled: getEnvBool("PUSHBULLET_ENABLED", false),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramEnabled:   getEnvBool("TELEGRAM_ENABLED", false),

		// Google Sheets
		SheetsID:        os.Getenv("SHEETS_ID"),
		SheetsEnabled:   getEnvBool("SHEETS_ENABLED", false),
		CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),

		Debug: getEnvBool("DEBUG", false),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/cryptowatch.db"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	// Validate required fields
	if cfg.CMCAPIKey == "" {
		return nil, fmt.Errorf("CMC_API_KEY is required")
	}
	if cfg.SleepInterval <= 0 {
		return nil, fmt.Errorf("SLEEP_INTERVAL must be positive, got %d", cfg.SleepInterval)
	}
	if cfg.SlackEnabled && cfg.SlackWebhookURL == "" {
		return nil, fmt.Errorf("SLACK_WEBHOOK_URL is required when Slack is enabled")
	}
	if cfg.PushbulletEnabled && cfg.PushbulletToken == "" {
		return nil, fmt.Errorf("PUSHBULLET_TOKEN is required when Pushbullet is enabled")
	}
	if cfg.TelegramEnabled && (cfg.TelegramToken == "" || cfg.TelegramChatID == 0) {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when Telegram is enabled")
	}
	if cfg.SheetsEnabled && cfg.SheetsID == "" {
		return nil, fmt.Errorf("SHEETS_ID is required when the Sheets mirror is enabled")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
