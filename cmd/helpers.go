package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ziadkadry99/hygaudit/internal/activity"
	"github.com/ziadkadry99/hygaudit/internal/answers"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/audits"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/config"
	"github.com/ziadkadry99/hygaudit/internal/db"
	"github.com/ziadkadry99/hygaudit/internal/events"
	"github.com/ziadkadry99/hygaudit/internal/generation"
	"github.com/ziadkadry99/hygaudit/internal/llm"
	"github.com/ziadkadry99/hygaudit/internal/logging"
	"github.com/ziadkadry99/hygaudit/internal/notifications"
	"github.com/ziadkadry99/hygaudit/internal/reports"
)

// app holds every store and service built from one configuration.
type app struct {
	cfg           *config.Config
	logger        zerolog.Logger
	db            *db.DB
	checklists    *checklist.Store
	auditors      *auditor.Store
	activity      *activity.Store
	notifications *notifications.Store
	dispatcher    *notifications.Dispatcher
	hub           *events.Hub
	registry      *reports.Registry
	jobs          *generation.Controller
	audits        *audits.Service
}

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `hygaudit init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Output goes to stderr so stdout stays
// free for command output and the MCP protocol.
func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Version: Version,
		Output:  os.Stderr,
	})
}

// createGenerationService returns the report generation backend selected
// by generation.mode.
func createGenerationService(cfg *config.Config, logger zerolog.Logger) (generation.Service, error) {
	if cfg.Generation.Mode != config.ModeLLM {
		return &generation.LocalService{}, nil
	}
	provider, err := llm.New(llm.Options{
		Provider:          string(cfg.LLM.Provider),
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	return generation.NewLLMService(provider, generation.LLMOptions{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Concurrency: cfg.Generation.Concurrency,
	}, logger), nil
}

// openApp loads the config, opens the database and wires every service.
// Callers must call close.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	svc, err := createGenerationService(cfg, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &app{
		cfg:           cfg,
		logger:        logger,
		db:            database,
		checklists:    checklist.NewStore(database),
		auditors:      auditor.NewStore(database),
		activity:      activity.NewStore(database),
		notifications: notifications.NewStore(database),
		hub:           events.NewHub(logger),
		registry:      reports.NewRegistry(database, logger),
	}
	a.dispatcher = notifications.NewDispatcher(a.notifications, notifications.DispatcherOptions{
		WebhookURLs: cfg.Notifications.Webhooks,
		MinSeverity: notifications.Severity(cfg.Notifications.MinSeverity),
		Timeout:     cfg.Notifications.Timeout,
	}, logger)
	a.jobs = generation.NewController(a.registry, svc, generation.Options{
		Timeout:  cfg.Generation.Timeout,
		Hub:      a.hub,
		Notifier: a.dispatcher,
		Activity: a.activity,
		Logger:   logger,
	})
	a.audits = audits.NewService(audits.Deps{
		Audits:     audits.NewStore(database),
		Answers:    answers.NewStore(database),
		Checklists: a.checklists,
		Auditors:   a.auditors,
		Registry:   a.registry,
		Jobs:       a.jobs,
		Activity:   a.activity,
		Hub:        a.hub,
		Logger:     logger,
	})
	return a, nil
}

func (a *app) close() error {
	return a.db.Close()
}
