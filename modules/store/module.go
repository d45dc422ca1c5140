// Package store provides the task repository implementations and the module
// that owns their database connections.
package store

import (
	"context"
	"fmt"
	"log"

	"github.com/example/task-lifecycle/config"
	"github.com/example/task-lifecycle/domain/task"
	"github.com/go-monolith/mono"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoreModule owns the database connection behind the task repository.
type StoreModule struct {
	cfg  config.DatabaseConfig
	db   *gorm.DB
	pool *pgxpool.Pool
	repo task.Repository
}

// Compile-time interface checks.
var _ mono.Module = (*StoreModule)(nil)
var _ mono.HealthCheckableModule = (*StoreModule)(nil)

// Open connects to the configured database and migrates the schema.
// The connection is opened eagerly so other modules can be wired with the
// repository before the application starts.
func Open(ctx context.Context, cfg config.DatabaseConfig, clock task.Clock) (*StoreModule, error) {
	m := &StoreModule{cfg: cfg}

	switch cfg.Driver {
	case "postgres":
		log.Printf("[store] Connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo := NewPostgresRepository(pool, clock)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		m.pool = pool
		m.repo = repo

	default:
		log.Printf("[store] Connecting to SQLite database: %s", cfg.Path)
		logLevel := logger.Silent
		if cfg.Debug {
			logLevel = logger.Info
		}
		db, err := gorm.Open(sqlite.Open(sqliteDSN(cfg.Path)), &gorm.Config{
			Logger: logger.Default.LogMode(logLevel),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Path == ":memory:" {
			// each connection would otherwise see its own empty database
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get sql.DB: %w", err)
			}
			sqlDB.SetMaxOpenConns(1)
		}
		repo := NewGormRepository(db, clock)
		if err := repo.Migrate(); err != nil {
			return nil, err
		}
		m.db = db
		m.repo = repo
	}

	return m, nil
}

// sqliteDSN adds a busy timeout so concurrent writers wait instead of failing.
func sqliteDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Repository returns the task repository bound to this store.
func (m *StoreModule) Repository() task.Repository {
	return m.repo
}

// Name returns the module name.
func (m *StoreModule) Name() string {
	return "store"
}

// Health pings the underlying database.
func (m *StoreModule) Health(ctx context.Context) mono.HealthStatus {
	switch {
	case m.pool != nil:
		if err := m.pool.Ping(ctx); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("database ping failed: %v", err),
			}
		}
		stat := m.pool.Stat()
		return mono.HealthStatus{
			Healthy: true,
			Message: "operational",
			Details: map[string]any{
				"driver":      "postgres",
				"total_conns": stat.TotalConns(),
				"idle_conns":  stat.IdleConns(),
			},
		}

	case m.db != nil:
		sqlDB, err := m.db.DB()
		if err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("failed to get sql.DB: %v", err),
			}
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("database ping failed: %v", err),
			}
		}
		return mono.HealthStatus{
			Healthy: true,
			Message: "operational",
			Details: map[string]any{
				"driver": "sqlite",
				"path":   m.cfg.Path,
			},
		}
	}

	return mono.HealthStatus{
		Healthy: false,
		Message: "database not initialized",
	}
}

// Start is a no-op; the connection is opened by Open.
func (m *StoreModule) Start(_ context.Context) error {
	log.Printf("[store] Module started (driver=%s)", m.cfg.Driver)
	return nil
}

// Stop closes the database connection.
func (m *StoreModule) Stop(_ context.Context) error {
	if m.pool != nil {
		log.Println("[store] Closing connection pool...")
		m.pool.Close()
		m.pool = nil
		return nil
	}
	if m.db == nil {
		return nil
	}

	log.Println("[store] Closing database connection...")
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.db = nil

	log.Println("[store] Database connection closed")
	return nil
}
