package models

import "time"

// Storage backend names accepted in storage.backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// RedisConfig holds connection settings for the redis blob store.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// StorageConfig selects and configures the blob store that holds the task
// collection.
type StorageConfig struct {
	Backend    string      `yaml:"backend" mapstructure:"backend"`
	SQLitePath string      `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// AdvisorConfig configures the priority classification service.
type AdvisorConfig struct {
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Offline  bool          `yaml:"offline" mapstructure:"offline"`
}

// ObservabilityConfig toggles the event log.
type ObservabilityConfig struct {
	EventLog bool `yaml:"event_log" mapstructure:"event_log"`
}

// AlertsConfig sets the alert thresholds. Zero disables the matching alert.
type AlertsConfig struct {
	AdvisorFailureStreak int `yaml:"advisor_failure_streak" mapstructure:"advisor_failure_streak"`
	CorruptLookbackHours int `yaml:"corrupt_lookback_hours" mapstructure:"corrupt_lookback_hours"`
}

// GlobalConfig holds system-wide settings read from .fanyaconfig via Viper.
type GlobalConfig struct {
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Advisor       AdvisorConfig       `yaml:"advisor" mapstructure:"advisor"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Alerts        AlertsConfig        `yaml:"alerts" mapstructure:"alerts"`
}
