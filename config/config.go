package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete collector configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Ingest        IngestConfig
	Retention     RetentionConfig
	ReadAPI       ReadAPIConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds database configuration for either driver.
// Postgres: ConnectionString (from DATABASE_URL) takes precedence over
// individual fields. SQLite: Path names the database file, with
// ":memory:" supported for tests.
type DatabaseConfig struct {
	Driver           string
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	Path             string // SQLite database file
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// IngestConfig bounds what a single batch delivery may carry.
type IngestConfig struct {
	MaxBodyBytes  int64
	MaxBatchSize  int
	MaxPayloadLen int // per-event serialized payload cap, bytes
}

// RetentionConfig controls expiry of stored sessions.
type RetentionConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
	SweepEnabled  bool
}

// ReadAPIConfig protects the session read/delete endpoints.
// When Secret is empty the read API is open.
type ReadAPIConfig struct {
	Secret string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists (collector/.env when run from project root, .env when run from collector/)
	_ = godotenv.Load("collector/.env")
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     getEnvAsSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: loadDatabaseConfig(),
		Ingest: IngestConfig{
			MaxBodyBytes:  int64(getEnvAsInt("INGEST_MAX_BODY_BYTES", 5<<20)),
			MaxBatchSize:  getEnvAsInt("INGEST_MAX_BATCH_SIZE", 1000),
			MaxPayloadLen: getEnvAsInt("INGEST_MAX_PAYLOAD_BYTES", 1<<20),
		},
		Retention: RetentionConfig{
			MaxAge:        getEnvAsDuration("RETENTION_MAX_AGE", 30*24*time.Hour),
			SweepInterval: getEnvAsDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
			SweepEnabled:  getEnvAsBool("RETENTION_SWEEP_ENABLED", true),
		},
		ReadAPI: ReadAPIConfig{
			Secret: getEnv("READ_API_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("sqlite database path is required: set DB_PATH")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Ingest.MaxBatchSize <= 0 {
		return fmt.Errorf("ingest max batch size must be positive")
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive")
	}

	// Read API must not run open in production
	if c.IsProduction() && c.ReadAPI.Secret == "" {
		return fmt.Errorf("read API secret is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the driver-specific connection string.
// Postgres uses ConnectionString (from DATABASE_URL) when set; otherwise
// builds from individual fields. SQLite returns the database file path.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("driver=sqlite path=%s", c.Path)
	}
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("driver=postgres host=%s port=%s database=%s", host, port, db)
		}
		return "driver=postgres host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("driver=postgres host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DB_DRIVER plus either
// DATABASE_URL / DB_* vars (postgres) or DB_PATH (sqlite)
func loadDatabaseConfig() DatabaseConfig {
	driver := getEnv("DB_DRIVER", DriverPostgres)
	if driver == DriverSQLite {
		return DatabaseConfig{
			Driver:       DriverSQLite,
			Path:         getEnv("DB_PATH", "uxtrace.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 1),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 1),
		}
	}
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			Driver:           DriverPostgres,
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Driver:          DriverPostgres,
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "uxtrace"),
		Password:        getEnv("DB_PASSWORD", "uxtrace"),
		Database:        getEnv("DB_NAME", "uxtrace"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
