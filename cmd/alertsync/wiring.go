package main

import (
	"database/sql"
	"fmt"

	"medirate_alerts/internal/app"
	"medirate_alerts/internal/infra/config"
	idb "medirate_alerts/internal/infra/database"
	"medirate_alerts/internal/infra/email"
	"medirate_alerts/internal/infra/logger"
	"medirate_alerts/internal/infra/snapshot"
	"medirate_alerts/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// application holds the wired services for one command invocation.
type application struct {
	cfg    *config.AppConfig
	db     *sql.DB
	log    *logrus.Entry
	cycles *app.CycleService
	admin  *app.AdminService
	bot    *telebot.Bot // nil when Telegram is disabled
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	return cfg, nil
}

func openDatabase(cfg *config.AppConfig) (*sql.DB, error) {
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	logger.Log.Debug("Database connection established successfully")
	return db, nil
}

func newApplication() (*application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"feeds_file":  cfg.FeedsFile,
	}).Info("Configuration loaded")

	feeds, err := snapshot.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	records := idb.NewPostgresRecordRepository(db)
	prefs := idb.NewPostgresPreferenceRepository(db)
	runs := idb.NewPostgresRunRepository(db)

	loader := snapshot.NewLoader(cfg.SnapshotDir, feeds, logger.Component("snapshot"))
	reconciler := app.NewReconciler(records, loader, cfg.ReconcileWorkers, logger.Component("reconciler"))

	digests, err := app.NewDigestBuilder()
	if err != nil {
		db.Close()
		return nil, err
	}
	gateway := email.NewBrevoGateway(
		cfg.BrevoBaseURL,
		cfg.BrevoAPIKey,
		email.Contact{Name: cfg.SenderName, Email: cfg.SenderEmail},
		logger.Component("email"),
	)
	notifier := app.NewNotificationService(
		records, prefs, app.NewMatcher(logger.Component("matcher")), digests, gateway,
		cfg.NotifyWorkers, logger.Component("notifier"),
	)

	a := &application{
		cfg:    cfg,
		db:     db,
		log:    log,
		cycles: app.NewCycleService(reconciler, notifier, records, runs, loader, logger.Component("cycle")),
		admin:  app.NewAdminService(prefs, cfg.AdminTelegramID),
	}

	if cfg.TelegramEnabled() {
		a.bot, err = telegram.NewBot(cfg.TelegramToken, logger.Component("telegram"))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		client := telegram.NewTelebotAdapter(a.bot)
		a.cycles.SetReporter(telegram.NewReporter(client, cfg.AdminTelegramID, logger.Component("reporter")))
		log.Info("Telegram reporter enabled")
	}
	return a, nil
}

func (a *application) Close() {
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close database")
	}
}
