package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/repositories"
	"go.uber.org/zap"
)

// VisitorRepository implements the repositories.VisitorRepository interface
type VisitorRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewVisitorRepository creates a new visitor repository
func NewVisitorRepository(db *DB, logger *zap.Logger) repositories.VisitorRepository {
	return &VisitorRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the visitor or, when the fingerprint is already known,
// bumps visit_count and last_seen while keeping the original visitor_id
// and first_seen. The stored row is returned either way.
func (r *VisitorRepository) Upsert(ctx context.Context, visitor *models.Visitor) (*models.Visitor, error) {
	query := `
		INSERT INTO visitors (fingerprint, visitor_id, visit_count, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			visit_count = visitors.visit_count + 1,
			last_seen = excluded.last_seen
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		visitor.Fingerprint,
		visitor.VisitorID,
		visitor.VisitCount,
		visitor.FirstSeen.UnixMilli(),
		visitor.LastSeen.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert visitor: %w", err)
	}

	stored, err := r.GetByFingerprint(ctx, visitor.Fingerprint)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("visitor upserted",
		zap.String("fingerprint", stored.Fingerprint),
		zap.Int("visit_count", stored.VisitCount),
	)
	return stored, nil
}

// GetByFingerprint retrieves a visitor by fingerprint
func (r *VisitorRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Visitor, error) {
	query := `
		SELECT fingerprint, visitor_id, visit_count, first_seen, last_seen
		FROM visitors
		WHERE fingerprint = $1
	`

	executor := GetExecutor(ctx, r.db)
	visitor := &models.Visitor{}
	var firstSeen, lastSeen int64

	err := executor.QueryRowContext(ctx, query, fingerprint).Scan(
		&visitor.Fingerprint,
		&visitor.VisitorID,
		&visitor.VisitCount,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("visitor %s: %w", fingerprint, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visitor: %w", err)
	}

	visitor.FirstSeen = time.UnixMilli(firstSeen).UTC()
	visitor.LastSeen = time.UnixMilli(lastSeen).UTC()
	return visitor, nil
}
