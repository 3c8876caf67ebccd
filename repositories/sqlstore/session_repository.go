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

// SessionRepository implements the repositories.SessionRepository interface
type SessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) repositories.SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates the session row on first sight and otherwise touches it.
// Metadata from later batches never overwrites the first-batch values;
// only updated_at and event_count move.
func (r *SessionRepository) Upsert(ctx context.Context, session *models.Session, delta int) error {
	query := `
		INSERT INTO sessions (
			session_id, visitor_id, fingerprint, url, title, referrer, user_agent,
			screen_width, screen_height, viewport_width, viewport_height,
			created_at, updated_at, event_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			event_count = sessions.event_count + excluded.event_count
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		session.SessionID,
		session.VisitorID,
		session.Fingerprint,
		session.URL,
		session.Title,
		session.Referrer,
		session.UserAgent,
		session.ScreenWidth,
		session.ScreenHeight,
		session.ViewportWidth,
		session.ViewportHeight,
		session.CreatedAt.UnixMilli(),
		session.UpdatedAt.UnixMilli(),
		delta,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	r.logger.Debug("session upserted",
		zap.String("session_id", session.SessionID),
		zap.Int("event_delta", delta),
	)
	return nil
}

// GetByID retrieves a session by its identifier
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT s.session_id, s.visitor_id, s.fingerprint, s.url, s.title, s.referrer,
			s.user_agent, s.screen_width, s.screen_height, s.viewport_width,
			s.viewport_height, s.created_at, s.updated_at, s.event_count,
			COALESCE(v.visit_count, 0)
		FROM sessions s
		LEFT JOIN visitors v ON v.fingerprint = s.fingerprint
		WHERE s.session_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	session, err := scanSession(executor.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s: %w", sessionID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// List retrieves sessions most recently updated first, with pagination
func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]*models.Session, int, error) {
	executor := GetExecutor(ctx, r.db)

	var total int
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `
		SELECT s.session_id, s.visitor_id, s.fingerprint, s.url, s.title, s.referrer,
			s.user_agent, s.screen_width, s.screen_height, s.viewport_width,
			s.viewport_height, s.created_at, s.updated_at, s.event_count,
			COALESCE(v.visit_count, 0)
		FROM sessions s
		LEFT JOIN visitors v ON v.fingerprint = s.fingerprint
		ORDER BY s.updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := executor.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, total, nil
}

// Delete removes a session row
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	query := `DELETE FROM sessions WHERE session_id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, repositories.ErrNotFound)
	}

	r.logger.Debug("session deleted", zap.String("session_id", sessionID))
	return nil
}

// DeleteExpired removes sessions last touched before horizon
func (r *SessionRepository) DeleteExpired(ctx context.Context, horizon time.Time) (int, error) {
	query := `DELETE FROM sessions WHERE updated_at < $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, horizon.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	return int(affected), nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var createdAt, updatedAt int64

	err := row.Scan(
		&session.SessionID,
		&session.VisitorID,
		&session.Fingerprint,
		&session.URL,
		&session.Title,
		&session.Referrer,
		&session.UserAgent,
		&session.ScreenWidth,
		&session.ScreenHeight,
		&session.ViewportWidth,
		&session.ViewportHeight,
		&createdAt,
		&updatedAt,
		&session.EventCount,
		&session.VisitCount,
	)
	if err != nil {
		return nil, err
	}

	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return session, nil
}
