package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/uxtrace/uxtrace/config"
	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/repositories"
	"github.com/uxtrace/uxtrace/services"
	"go.uber.org/zap"
)

// List pagination bounds.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// SessionDetail is a session together with its ordered event log.
type SessionDetail struct {
	Session *models.Session      `json:"session"`
	Events  []models.EventRecord `json:"events"`
}

// SessionPage is one page of the session listing.
type SessionPage struct {
	Sessions []*models.Session `json:"sessions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// Service implements batch ingestion and session read/delete operations.
type Service struct {
	sessions  repositories.SessionRepository
	visitors  repositories.VisitorRepository
	events    repositories.EventRepository
	txManager repositories.TransactionManager
	ingestCfg config.IngestConfig
	retention config.RetentionConfig
	logger    *zap.Logger
	clock     func() time.Time
}

// NewService creates a new ingest service
func NewService(
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
	ingestCfg config.IngestConfig,
	retention config.RetentionConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		sessions:  repos.Sessions,
		visitors:  repos.Visitors,
		events:    repos.Events,
		txManager: txManager,
		ingestCfg: ingestCfg,
		retention: retention,
		logger:    logger,
		clock:     time.Now,
	}
}

// AppendBatch validates and stores one delivered batch atomically.
// Either the session row, the visitor row, and every event land
// together, or nothing does. Re-delivered batches append duplicate
// event rows; they never fail.
func (s *Service) AppendBatch(ctx context.Context, req *models.BatchRequest, clientAddr string) (*models.BatchResponse, error) {
	if err := s.validateBatch(req); err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	fingerprint := req.Meta.Fingerprint
	if fingerprint == "" {
		fingerprint = serverFingerprint(req.Meta, clientAddr)
	}

	records := make([]models.EventRecord, len(req.Events))
	for i, ev := range req.Events {
		records[i] = models.EventRecord{
			SessionID: req.SessionID,
			Timestamp: ev.Timestamp,
			Seq:       i,
			Kind:      ev.Type,
			Data:      ev.Data,
		}
	}

	err := s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		existing, err := s.sessions.GetByID(ctx, req.SessionID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return services.WrapInternal("failed to look up session", err)
		}

		session := s.sessionRow(req, existing, fingerprint, now)

		// Every batch counts as a visit; the visitor row absorbs
		// re-deliveries by incrementing on conflict.
		if fingerprint != "" {
			visitor, err := s.visitors.Upsert(ctx, models.NewVisitor(fingerprint))
			if err != nil {
				return services.WrapInternal("failed to upsert visitor", err)
			}
			if existing == nil {
				session.VisitorID = visitor.VisitorID
			}
		}

		if err := s.sessions.Upsert(ctx, session, len(records)); err != nil {
			return services.WrapInternal("failed to upsert session", err)
		}

		if err := s.events.AppendBatch(ctx, records); err != nil {
			return services.WrapInternal("failed to append events", err)
		}

		return nil
	})
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, services.WrapInternal("batch transaction failed", err)
	}

	s.logger.Info("batch stored",
		zap.String("session_id", req.SessionID),
		zap.Int("events", len(records)),
	)

	return &models.BatchResponse{
		Success:        true,
		EventsReceived: len(records),
	}, nil
}

// GetSession returns a session and its events in replay order
func (s *Service) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	if sessionID == "" {
		return nil, services.ErrMissingSessionID
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrSessionNotFound
		}
		return nil, services.WrapInternal("failed to get session", err)
	}

	events, err := s.events.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, services.WrapInternal("failed to get session events", err)
	}

	return &SessionDetail{Session: session, Events: events}, nil
}

// ListSessions returns sessions most recently active first
func (s *Service) ListSessions(ctx context.Context, limit, offset int) (*SessionPage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := s.sessions.List(ctx, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list sessions", err)
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}

	return &SessionPage{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// DeleteSession removes a session and its event log atomically
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return services.ErrMissingSessionID
	}

	err := s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if _, err := s.events.DeleteBySession(ctx, sessionID); err != nil {
			return services.WrapInternal("failed to delete session events", err)
		}
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrSessionNotFound
			}
			return services.WrapInternal("failed to delete session", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// SweepExpired deletes sessions past the retention horizon together
// with their events and reports how many rows went away.
func (s *Service) SweepExpired(ctx context.Context) (sessions, events int, err error) {
	horizon := s.clock().UTC().Add(-s.retention.MaxAge)

	err = s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		var txErr error
		if sessions, txErr = s.sessions.DeleteExpired(ctx, horizon); txErr != nil {
			return services.WrapInternal("failed to sweep sessions", txErr)
		}
		if events, txErr = s.events.DeleteOrphaned(ctx); txErr != nil {
			return services.WrapInternal("failed to sweep events", txErr)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	if sessions > 0 || events > 0 {
		s.logger.Info("retention sweep completed",
			zap.Int("sessions_deleted", sessions),
			zap.Int("events_deleted", events),
			zap.Time("horizon", horizon),
		)
	}
	return sessions, events, nil
}

// validateBatch enforces shape and size limits before touching storage
func (s *Service) validateBatch(req *models.BatchRequest) error {
	if req.SessionID == "" {
		return services.ErrMissingSessionID
	}
	if len(req.Events) == 0 {
		return services.ErrEmptyBatch
	}
	if len(req.Events) > s.ingestCfg.MaxBatchSize {
		return services.NewDomainError(services.ErrorTypeTooLarge, "batch exceeds configured size limit", nil).
			WithDetail("limit", s.ingestCfg.MaxBatchSize).
			WithDetail("got", len(req.Events))
	}

	for i, ev := range req.Events {
		if !models.EventKind(ev.Type).Valid() {
			return services.NewDomainError(services.ErrorTypeValidation, "unknown event type", nil).
				WithDetail("index", i).
				WithDetail("type", ev.Type)
		}
		if ev.Timestamp <= 0 {
			return services.NewDomainError(services.ErrorTypeValidation, "event timestamp must be positive", nil).
				WithDetail("index", i)
		}
		if s.ingestCfg.MaxPayloadLen > 0 && len(ev.Data) > s.ingestCfg.MaxPayloadLen {
			return services.NewDomainError(services.ErrorTypeTooLarge, "event payload exceeds configured size limit", nil).
				WithDetail("index", i).
				WithDetail("limit", s.ingestCfg.MaxPayloadLen)
		}
	}

	return nil
}

// sessionRow builds the row to upsert. Metadata is taken from the batch
// only when the session is new; later batches never rewrite it.
func (s *Service) sessionRow(req *models.BatchRequest, existing *models.Session, fingerprint string, now time.Time) *models.Session {
	if existing != nil {
		touched := *existing
		touched.UpdatedAt = now
		return &touched
	}

	session := &models.Session{
		SessionID:    req.SessionID,
		Fingerprint:  fingerprint,
		URL:          req.Meta.URL,
		Title:        req.Meta.Title,
		Referrer:     req.Meta.Referrer,
		UserAgent:    req.Meta.UserAgent,
		ScreenWidth:  req.Meta.Screen.Width,
		ScreenHeight: req.Meta.Screen.Height,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Meta.Viewport != nil {
		session.ViewportWidth = req.Meta.Viewport.Width
		session.ViewportHeight = req.Meta.Viewport.Height
	}
	return session
}

// serverFingerprint derives a fallback identity hash when the client
// did not send one. Low entropy is acceptable here; the fingerprint
// only groups repeat visits, it never authenticates anyone.
func serverFingerprint(meta models.BatchMeta, clientAddr string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%dx%d|%s",
		meta.UserAgent, meta.Language, meta.Timezone,
		meta.Screen.Width, meta.Screen.Height, clientAddr,
	)
	return fmt.Sprintf("%016x", h.Sum64())
}
