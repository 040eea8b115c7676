// Package internal provides the App struct that wires all components of
// Fanya Focus together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valter-silva-au/fanya-focus/internal/cli"
	"github.com/valter-silva-au/fanya-focus/internal/core"
	"github.com/valter-silva-au/fanya-focus/internal/integration"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
	"github.com/valter-silva-au/fanya-focus/internal/storage"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// EventLogFileName is the JSON Lines event log kept in the base path.
const EventLogFileName = ".fanya_events.jsonl"

// App holds all service dependencies for Fanya Focus.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig

	// Storage layer
	Blobs     core.BlobStore
	blobClose io.Closer

	// Core services
	Store   core.TaskStore
	Advisor core.PriorityAdvisor

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of Fanya Focus. basePath is the
// directory holding .fanyaconfig.yaml, the task collection and the event
// log; it is created if missing.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating base path: %w", err)
	}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	globalCfg, err := app.ConfigMgr.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(globalCfg); err != nil {
		return nil, err
	}
	app.Config = globalCfg

	// --- Observability ---
	if globalCfg.Observability.EventLog {
		app.EventLog, err = observability.NewJSONLEventLog(filepath.Join(basePath, EventLogFileName))
		if err != nil {
			// Non-fatal: run without observability if the log can't be created.
			app.EventLog = nil
		}
	}
	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
	}

	// --- Storage layer ---
	if err := app.openBlobStore(globalCfg.Storage); err != nil {
		_ = app.Close()
		return nil, err
	}

	// --- Core services ---
	app.Store = core.NewTaskStore(app.Blobs, core.NewTaskIDGenerator(), evtAdapter)
	if err := app.Store.LoadAll(context.Background()); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("initializing task store: %w", err)
	}

	app.Advisor = core.NewPriorityAdvisor(
		&classifierAdapter{c: newClassifier(globalCfg.Advisor)},
		globalCfg.Advisor.Timeout,
		evtAdapter,
	)

	// The alert engine runs without an event log too; it then only checks
	// for overdue tasks.
	app.AlertEngine = observability.NewAlertEngine(app.EventLog, app.Store, observability.AlertThresholds{
		AdvisorFailureStreak: globalCfg.Alerts.AdvisorFailureStreak,
		CorruptLookbackHours: globalCfg.Alerts.CorruptLookbackHours,
	})
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Store = app.Store
	cli.Advisor = app.Advisor
	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// openBlobStore selects the persistence backend named in cfg.
func (a *App) openBlobStore(cfg models.StorageConfig) error {
	switch cfg.Backend {
	case models.BackendSQLite:
		path := cfg.SQLitePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.BasePath, path)
		}
		store, err := storage.NewSQLiteBlobStore(path)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
		a.Blobs, a.blobClose = store, store

	case models.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := storage.NewRedisBlobStore(client, cfg.Redis.Prefix)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.Blobs, a.blobClose = store, store

	case models.BackendMemory:
		store := storage.NewMemoryBlobStore()
		a.Blobs, a.blobClose = store, store

	default:
		store := storage.NewFileBlobStore(a.BasePath)
		a.Blobs, a.blobClose = store, store
	}
	return nil
}

// newClassifier returns the HTTP classifier when an endpoint is configured,
// and the offline heuristic otherwise.
func newClassifier(cfg models.AdvisorConfig) integration.PriorityClassifier {
	if cfg.Endpoint != "" && !cfg.Offline {
		return integration.NewHTTPClassifier(cfg.Endpoint, cfg.APIKey, cfg.Timeout)
	}
	return integration.NewOfflineClassifier(time.Now)
}

// Close releases the event log and the blob store. It is safe to call on a
// partially initialized App.
func (a *App) Close() error {
	var firstErr error
	if a.blobClose != nil {
		if err := a.blobClose.Close(); err != nil {
			firstErr = err
		}
		a.blobClose = nil
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ResolveBasePath determines the Fanya Focus data directory. It checks the
// FANYA_HOME env var, then walks up from the current directory looking for
// .fanyaconfig.yaml, then falls back to ~/.fanya.
func ResolveBasePath() string {
	if home := os.Getenv("FANYA_HOME"); home != "" {
		return home
	}
	if dir, err := os.Getwd(); err == nil {
		for {
			if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".fanya")
	}
	return "."
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	level := observability.LevelInfo
	switch eventType {
	case core.EventStoreCorrupt, core.EventSuggestionFailed:
		level = observability.LevelWarn
	}
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}

// classifierAdapter adapts integration.PriorityClassifier to core.Classifier.
type classifierAdapter struct {
	c integration.PriorityClassifier
}

func (a *classifierAdapter) Classify(ctx context.Context, req core.ClassificationRequest) (*core.ClassificationResponse, error) {
	resp, err := a.c.Classify(ctx, integration.PriorityRequest{
		TaskDetails:    req.TaskDetails,
		DueDate:        req.DueDate,
		TaskParameters: req.TaskParameters,
	})
	if err != nil {
		return nil, err
	}
	return &core.ClassificationResponse{
		SuggestedPriority: resp.SuggestedPriority,
		Reasoning:         resp.Reasoning,
	}, nil
}
