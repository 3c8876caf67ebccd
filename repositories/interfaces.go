package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/uxtrace/uxtrace/models"
)

// ErrNotFound is returned when a requested row does not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// SessionRepository persists replay sessions.
type SessionRepository interface {
	// Upsert creates the session row if absent, otherwise bumps
	// updated_at and adds delta to the stored event count.
	Upsert(ctx context.Context, session *models.Session, delta int) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	// List returns sessions most recently updated first, plus the
	// total session count for pagination.
	List(ctx context.Context, limit, offset int) ([]*models.Session, int, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes sessions whose last activity predates
	// horizon and returns how many were removed.
	DeleteExpired(ctx context.Context, horizon time.Time) (int, error)
}

// VisitorRepository tracks distinct visitors by fingerprint.
type VisitorRepository interface {
	// Upsert inserts the visitor or, when the fingerprint is already
	// known, increments visit_count and advances last_seen. It returns
	// the stored visitor either way.
	Upsert(ctx context.Context, visitor *models.Visitor) (*models.Visitor, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.Visitor, error)
}

// EventRepository stores the append-only event log.
type EventRepository interface {
	AppendBatch(ctx context.Context, records []models.EventRecord) error
	// GetBySession returns a session's events ordered by timestamp,
	// then by sequence within the delivering batch.
	GetBySession(ctx context.Context, sessionID string) ([]models.EventRecord, error)
	DeleteBySession(ctx context.Context, sessionID string) (int, error)
	// DeleteOrphaned removes every event whose session row is gone,
	// regardless of the event's own timestamp. Run after a session
	// sweep so clock-skewed events do not outlive their session.
	DeleteOrphaned(ctx context.Context) (int, error)
}

// Repositories bundles all repository instances for injection.
type Repositories struct {
	Sessions SessionRepository
	Visitors VisitorRepository
	Events   EventRepository
}

// Transaction represents an active database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// TransactionManager coordinates multi-repository atomic operations.
// Repositories pick the transaction up from the context, so the same
// repository instance works inside and outside a transaction.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}
