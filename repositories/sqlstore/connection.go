package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/uxtrace/uxtrace/config"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver (cgo-free)
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// NewDB creates a new database connection pool for the configured driver
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverPostgres
	}

	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool. SQLite serializes writers, so its
	// pool stays at a single connection.
	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		driver: driver,
		logger: logger,
	}, nil
}

// Driver returns the active driver name
func (db *DB) Driver() string {
	return db.driver
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema. The DDL sticks to the
// dialect both drivers accept: TEXT/BIGINT/INTEGER columns and epoch
// millisecond timestamps instead of native timestamp types.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Sessions table: one row per recorded browsing session
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			visitor_id TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			referrer TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			screen_width INTEGER NOT NULL DEFAULT 0,
			screen_height INTEGER NOT NULL DEFAULT 0,
			viewport_width INTEGER NOT NULL DEFAULT 0,
			viewport_height INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions(fingerprint);

		-- Visitors table: distinct browsers keyed by fingerprint
		CREATE TABLE IF NOT EXISTS visitors (
			fingerprint TEXT PRIMARY KEY,
			visitor_id TEXT NOT NULL,
			visit_count INTEGER NOT NULL DEFAULT 1,
			first_seen BIGINT NOT NULL,
			last_seen BIGINT NOT NULL
		);

		-- Events table: append-only log. No uniqueness constraint so a
		-- re-delivered batch lands as duplicate rows instead of failing.
		CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_events_session_order ON events(session_id, ts, seq);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized")
	return nil
}
