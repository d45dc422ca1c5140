package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	ConfigFileEnv, "HTTP_PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "DB_DEBUG",
	"STATUS_UPDATER_MODE", "STATUS_UPDATER_BATCH_SIZE", "STATUS_UPDATER_SCHEDULING_TYPE",
	"STATUS_UPDATER_CRON", "REDIS_ADDR", "REDIS_LOCK_TTL_SECONDS", "SHUTDOWN_TIMEOUT_SECONDS",
}

// clearEnv blanks every variable Load reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, "conditional", cfg.StatusUpdater.Mode)
	assert.Equal(t, DefaultBatchSize, cfg.StatusUpdater.BatchSize)
	assert.False(t, cfg.SchedulingEnabled())
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 55*time.Second, cfg.LockTTL())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tasks.toml")
	content := `
[http]
port = 8080

[status_updater]
mode = "query-patch"
batch_size = 10

[status_updater.scheduling]
type = "custom"
cron = "*/5 * * * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port, "env overrides file")
	assert.Equal(t, "query-patch", cfg.StatusUpdater.Mode)
	assert.Equal(t, 10, cfg.StatusUpdater.BatchSize)
	assert.True(t, cfg.SchedulingEnabled())
	assert.Equal(t, "*/5 * * * * *", cfg.StatusUpdater.Scheduling.Cron)
}

func TestLoad_PathFromEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "tasks.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\npath = \"other.db\"\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad integer", map[string]string{"HTTP_PORT": "abc"}},
		{"port out of range", map[string]string{"HTTP_PORT": "70000"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}},
		{"unknown mode", map[string]string{"STATUS_UPDATER_MODE": "bulk"}},
		{"zero batch size", map[string]string{"STATUS_UPDATER_BATCH_SIZE": "0"}},
		{"unknown scheduling type", map[string]string{"STATUS_UPDATER_SCHEDULING_TYPE": "fixed"}},
		{"negative lock ttl", map[string]string{"REDIS_LOCK_TTL_SECONDS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_NormalisesDriver(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Database.Driver = " Postgres "
	cfg.Database.URL = "postgres://localhost/tasks"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Database.Driver)
}
