package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string

	CronSpecCycle  string // full reconciliation cycle
	CronSpecNotify string // digest dispatch

	FeedsFile        string
	SnapshotDir      string
	ReconcileWorkers int
	NotifyWorkers    int

	BrevoAPIKey  string
	BrevoBaseURL string
	SenderEmail  string
	SenderName   string

	TelegramToken   string // empty disables the ops bot
	AdminTelegramID int64

	HTTPPort     string
	APIAccessKey string // empty disables /api
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.CronSpecCycle = getOrDefault("CRON_SPEC_CYCLE", "0 6 * * *")    // 06:00 daily
	cfg.CronSpecNotify = getOrDefault("CRON_SPEC_NOTIFY", "30 6 * * *") // 06:30 daily

	cfg.FeedsFile = getOrDefault("FEEDS_FILE", "./feeds.yaml")
	cfg.SnapshotDir = getOrDefault("SNAPSHOT_DIR", "./snapshots")

	if cfg.ReconcileWorkers, err = positiveInt("RECONCILE_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.NotifyWorkers, err = positiveInt("NOTIFY_WORKERS", 4); err != nil {
		return nil, err
	}

	cfg.BrevoAPIKey = os.Getenv("BREVO_API_KEY")
	cfg.BrevoBaseURL = strings.TrimRight(getOrDefault("BREVO_BASE_URL", "https://api.brevo.com/v3"), "/")
	cfg.SenderEmail = getOrDefault("SENDER_EMAIL", "contact@medirate.net")
	cfg.SenderName = getOrDefault("SENDER_NAME", "Medirate")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}
	if cfg.TelegramToken != "" && cfg.AdminTelegramID == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}

	cfg.HTTPPort = getOrDefault("HTTP_PORT", "8080")
	cfg.APIAccessKey = os.Getenv("API_ACCESS_KEY")

	return cfg, nil
}

// TelegramEnabled reports whether the ops bot should start.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// RequireEmail fails when digests cannot be delivered.
func (c *AppConfig) RequireEmail() error {
	if c.BrevoAPIKey == "" {
		return fmt.Errorf("BREVO_API_KEY is not set")
	}
	return nil
}

func getOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1, got %d", key, n)
	}
	return n, nil
}
