// Package persistence writes terminal execution results and audit records to
// PostgreSQL. Writes are fire-and-forget from the pipeline's point of view:
// a database outage slows nothing down and loses only history, not money.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "persistence").Logger()
	log.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations creates the result and audit tables
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS execution_results (
			signal_id VARCHAR(64) PRIMARY KEY,
			pool_id VARCHAR(64),
			transaction_id VARCHAR(128),
			status VARCHAR(20) NOT NULL,
			executed_quantity DECIMAL(20, 8),
			executed_price DECIMAL(20, 8),
			fees DECIMAL(20, 8),
			latency_ms BIGINT NOT NULL DEFAULT 0,
			reason TEXT,
			executed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_results_status ON execution_results(status)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_results_pool ON execution_results(pool_id)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_results_executed_at ON execution_results(executed_at)`,

		`CREATE TABLE IF NOT EXISTS audit_events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(40) NOT NULL,
			payload JSONB NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events(occurred_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info().Msg("Database migrations completed")
	return nil
}
