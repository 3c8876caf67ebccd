package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/app"
	"github.com/uxtrace/uxtrace/config"
	"github.com/uxtrace/uxtrace/middleware"
	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/repositories/sqlstore"
	"github.com/uxtrace/uxtrace/services/ingest"
)

// newTestDeps wires handler dependencies against an in-memory store.
func newTestDeps(t *testing.T) *app.Dependencies {
	t.Helper()
	logger := zap.NewNop()

	cfg := &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   ":memory:",
		},
		Ingest: config.IngestConfig{
			MaxBodyBytes:  1 << 20,
			MaxBatchSize:  100,
			MaxPayloadLen: 64 << 10,
		},
		Retention: config.RetentionConfig{
			MaxAge:        30 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
	}

	factory, err := sqlstore.NewRepositoryFactory(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { factory.Close() })
	require.NoError(t, factory.GetDB().InitSchema(context.Background()))

	repos := factory.NewRepositories()
	txManager := factory.GetTransactionManager()

	return &app.Dependencies{
		Config:         cfg,
		DB:             factory.GetDB(),
		Logger:         logger,
		RepoFactory:    factory,
		Sessions:       repos.Sessions,
		Visitors:       repos.Visitors,
		Events:         repos.Events,
		TxManager:      txManager,
		Ingest:         ingest.NewService(repos, txManager, cfg.Ingest, cfg.Retention, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(nil, logger),
	}
}

func batchBody(t *testing.T, sessionID string, n int) []byte {
	t.Helper()
	events := make([]models.WireEvent, n)
	for i := range events {
		events[i] = models.WireEvent{
			Type:      string(models.EventScroll),
			Timestamp: int64(1000 + i),
			Data:      json.RawMessage(fmt.Sprintf(`{"x":0,"y":%d}`, i)),
		}
	}
	body, err := json.Marshal(models.BatchRequest{
		SessionID: sessionID,
		Events:    events,
		Timestamp: 1700000000000,
		Meta: models.BatchMeta{
			UserAgent:   "ua/1.0",
			Screen:      models.ScreenSize{Width: 1920, Height: 1080},
			URL:         "https://example.test/",
			Fingerprint: "fp-1",
		},
	})
	require.NoError(t, err)
	return body
}
