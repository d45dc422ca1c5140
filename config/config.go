// Package config loads application settings from defaults, an optional TOML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults.
const (
	DefaultHTTPPort           = 3000
	DefaultDBDriver           = "sqlite"
	DefaultDBPath             = "tasks.db"
	DefaultUpdaterMode        = "conditional"
	DefaultBatchSize          = 100
	DefaultSchedulingType     = "none"
	DefaultCron               = "0 * * * * *"
	DefaultLockTTLSeconds     = 55
	DefaultShutdownTimeoutSec = 30
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "TASKS_CONFIG"

// Config is the full application configuration.
type Config struct {
	HTTP                   HTTPConfig          `toml:"http"`
	Database               DatabaseConfig      `toml:"database"`
	StatusUpdater          StatusUpdaterConfig `toml:"status_updater"`
	Redis                  RedisConfig         `toml:"redis"`
	ShutdownTimeoutSeconds int                 `toml:"shutdown_timeout_seconds"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// DatabaseConfig selects and configures the task store.
type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
	Debug  bool   `toml:"debug"`
}

// StatusUpdaterConfig configures bulk status updates and their schedule.
type StatusUpdaterConfig struct {
	Mode       string           `toml:"mode"`
	BatchSize  int              `toml:"batch_size"`
	Scheduling SchedulingConfig `toml:"scheduling"`
}

// SchedulingConfig enables the cron-driven sweep when Type is "custom".
type SchedulingConfig struct {
	Type string `toml:"type"`
	Cron string `toml:"cron"`
}

// RedisConfig configures the optional distributed sweep lock.
type RedisConfig struct {
	Addr           string `toml:"addr"`
	LockTTLSeconds int    `toml:"lock_ttl_seconds"`
}

// Load builds a Config. An empty path falls back to $TASKS_CONFIG; when both
// are empty no file is read.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.HTTP.Port = DefaultHTTPPort
	cfg.Database.Driver = DefaultDBDriver
	cfg.Database.Path = DefaultDBPath
	cfg.StatusUpdater.Mode = DefaultUpdaterMode
	cfg.StatusUpdater.BatchSize = DefaultBatchSize
	cfg.StatusUpdater.Scheduling.Type = DefaultSchedulingType
	cfg.StatusUpdater.Scheduling.Cron = DefaultCron
	cfg.Redis.LockTTLSeconds = DefaultLockTTLSeconds
	cfg.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSec
}

func loadFromEnv(cfg *Config) error {
	var errs []error
	setInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("HTTP_PORT", &cfg.HTTP.Port)
	setString("DB_DRIVER", &cfg.Database.Driver)
	setString("DB_PATH", &cfg.Database.Path)
	setString("DATABASE_URL", &cfg.Database.URL)
	if v := os.Getenv("DB_DEBUG"); v != "" {
		cfg.Database.Debug = v == "true" || v == "1"
	}
	setString("STATUS_UPDATER_MODE", &cfg.StatusUpdater.Mode)
	setInt("STATUS_UPDATER_BATCH_SIZE", &cfg.StatusUpdater.BatchSize)
	setString("STATUS_UPDATER_SCHEDULING_TYPE", &cfg.StatusUpdater.Scheduling.Type)
	setString("STATUS_UPDATER_CRON", &cfg.StatusUpdater.Scheduling.Cron)
	setString("REDIS_ADDR", &cfg.Redis.Addr)
	setInt("REDIS_LOCK_TTL_SECONDS", &cfg.Redis.LockTTLSeconds)
	setInt("SHUTDOWN_TIMEOUT_SECONDS", &cfg.ShutdownTimeoutSeconds)

	return errors.Join(errs...)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}

	switch c.StatusUpdater.Mode {
	case "query-patch", "conditional":
	default:
		errs = append(errs, fmt.Errorf("status_updater.mode must be query-patch or conditional, got %q", c.StatusUpdater.Mode))
	}
	if c.StatusUpdater.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("status_updater.batch_size must be positive, got %d", c.StatusUpdater.BatchSize))
	}

	switch c.StatusUpdater.Scheduling.Type {
	case "none":
	case "custom":
		if strings.TrimSpace(c.StatusUpdater.Scheduling.Cron) == "" {
			errs = append(errs, errors.New("status_updater.scheduling.cron is required when scheduling type is custom"))
		}
	default:
		errs = append(errs, fmt.Errorf("status_updater.scheduling.type must be none or custom, got %q", c.StatusUpdater.Scheduling.Type))
	}

	if c.Redis.LockTTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("redis.lock_ttl_seconds must be positive, got %d", c.Redis.LockTTLSeconds))
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout_seconds must be positive, got %d", c.ShutdownTimeoutSeconds))
	}

	return errors.Join(errs...)
}

// SchedulingEnabled reports whether the cron sweep should run.
func (c *Config) SchedulingEnabled() bool {
	return c.StatusUpdater.Scheduling.Type == "custom"
}

// ShutdownTimeout returns how long shutdown may take.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LockTTL returns the distributed lock expiry.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}
