// Package core contains the business logic for Fanya Focus: the task store,
// the filter/sort view engine, form validation, the priority advisor client
// and configuration loading.
package core

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/fanya-focus/internal/observability"
	"github.com/valter-silva-au/fanya-focus/pkg/models"
)

// ConfigFileName is the base name of the configuration file, without the
// extension Viper adds while searching.
const ConfigFileName = ".fanyaconfig"

// ConfigurationManager loads and validates .fanyaconfig.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files and FANYA_* environment overrides.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .fanyaconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with sensible defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	alerts := observability.DefaultAlertThresholds()
	return &models.GlobalConfig{
		Storage: models.StorageConfig{
			Backend:    models.BackendFile,
			SQLitePath: "fanya.db",
			Redis: models.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "fanya:",
			},
		},
		Advisor: models.AdvisorConfig{
			Timeout: 20 * time.Second,
		},
		Observability: models.ObservabilityConfig{
			EventLog: true,
		},
		Alerts: models.AlertsConfig{
			AdvisorFailureStreak: alerts.AdvisorFailureStreak,
			CorruptLookbackHours: alerts.CorruptLookbackHours,
		},
	}
}

// LoadGlobalConfig reads .fanyaconfig from the base path. If the file does
// not exist, defaults (plus any environment overrides) are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("FANYA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.sqlite_path", cfg.Storage.SQLitePath)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", cfg.Storage.Redis.Prefix)
	v.SetDefault("advisor.endpoint", cfg.Advisor.Endpoint)
	v.SetDefault("advisor.api_key", cfg.Advisor.APIKey)
	v.SetDefault("advisor.timeout", cfg.Advisor.Timeout)
	v.SetDefault("advisor.offline", cfg.Advisor.Offline)
	v.SetDefault("observability.event_log", cfg.Observability.EventLog)
	v.SetDefault("alerts.advisor_failure_streak", cfg.Alerts.AdvisorFailureStreak)
	v.SetDefault("alerts.corrupt_lookback_hours", cfg.Alerts.CorruptLookbackHours)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.Storage.Backend = strings.ToLower(v.GetString("storage.backend"))
	cfg.Storage.SQLitePath = v.GetString("storage.sqlite_path")
	cfg.Storage.Redis.Addr = v.GetString("storage.redis.addr")
	cfg.Storage.Redis.Password = v.GetString("storage.redis.password")
	cfg.Storage.Redis.DB = v.GetInt("storage.redis.db")
	cfg.Storage.Redis.Prefix = v.GetString("storage.redis.prefix")
	cfg.Advisor.Endpoint = v.GetString("advisor.endpoint")
	cfg.Advisor.APIKey = v.GetString("advisor.api_key")
	cfg.Advisor.Timeout = v.GetDuration("advisor.timeout")
	cfg.Advisor.Offline = v.GetBool("advisor.offline")
	cfg.Observability.EventLog = v.GetBool("observability.event_log")
	cfg.Alerts.AdvisorFailureStreak = v.GetInt("alerts.advisor_failure_streak")
	cfg.Alerts.CorruptLookbackHours = v.GetInt("alerts.corrupt_lookback_hours")

	return cfg, nil
}

var validBackends = map[string]bool{
	models.BackendFile:   true,
	models.BackendSQLite: true,
	models.BackendRedis:  true,
	models.BackendMemory: true,
}

// ValidateConfig checks cfg for invalid values and reports all of them.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf(
			"storage.backend %q is invalid, must be one of: file, sqlite, redis, memory",
			cfg.Storage.Backend,
		))
	}
	if cfg.Storage.Backend == models.BackendSQLite && cfg.Storage.SQLitePath == "" {
		errs = append(errs, "storage.sqlite_path must not be empty when storage.backend is sqlite")
	}
	if cfg.Storage.Backend == models.BackendRedis && cfg.Storage.Redis.Addr == "" {
		errs = append(errs, "storage.redis.addr must not be empty when storage.backend is redis")
	}
	if cfg.Storage.Redis.DB < 0 {
		errs = append(errs, fmt.Sprintf("storage.redis.db must be non-negative, got %d", cfg.Storage.Redis.DB))
	}

	if cfg.Advisor.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("advisor.timeout must be non-negative, got %s", cfg.Advisor.Timeout))
	}
	if cfg.Advisor.Endpoint != "" && !isHTTPURL(cfg.Advisor.Endpoint) {
		errs = append(errs, fmt.Sprintf(
			"advisor.endpoint %q must be an absolute http or https URL",
			cfg.Advisor.Endpoint,
		))
	}

	if cfg.Alerts.AdvisorFailureStreak < 0 {
		errs = append(errs, "alerts.advisor_failure_streak must be non-negative")
	}
	if cfg.Alerts.CorruptLookbackHours < 0 {
		errs = append(errs, "alerts.corrupt_lookback_hours must be non-negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
