package app

import (
	"context"
	"fmt"

	"github.com/uxtrace/uxtrace/auth"
	"github.com/uxtrace/uxtrace/config"
	"github.com/uxtrace/uxtrace/middleware"
	"github.com/uxtrace/uxtrace/repositories"
	"github.com/uxtrace/uxtrace/repositories/sqlstore"
	"github.com/uxtrace/uxtrace/services/ingest"
	"go.uber.org/zap"
)

// Dependencies holds all collector dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *sqlstore.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *sqlstore.RepositoryFactory

	// Repositories
	Sessions  repositories.SessionRepository
	Visitors  repositories.VisitorRepository
	Events    repositories.EventRepository
	TxManager repositories.TransactionManager

	// Services
	Ingest *ingest.Service

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all collector dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()
	deps.initServices(cfg)
	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase opens the configured database and prepares the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := sqlstore.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.InitSchema(ctx); err != nil {
		factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Sessions = repos.Sessions
	d.Visitors = repos.Visitors
	d.Events = repos.Events
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices initializes the ingest service
func (d *Dependencies) initServices(cfg *config.Config) {
	d.Ingest = ingest.NewService(
		&repositories.Repositories{
			Sessions: d.Sessions,
			Visitors: d.Visitors,
			Events:   d.Events,
		},
		d.TxManager,
		cfg.Ingest,
		cfg.Retention,
		d.Logger,
	)
}

// initAuth wires the read-API token validator. With no secret
// configured the read API runs open, which Validate() only allows
// outside production.
func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.ReadAPI.Secret == "" {
		d.Logger.Warn("read API secret not configured, session endpoints are unprotected")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return
	}
	validator := auth.NewHMACValidator(cfg.ReadAPI.Secret)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("read API auth initialized")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
