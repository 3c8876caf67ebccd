package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/repositories"
	"go.uber.org/zap"
)

// insertChunkSize bounds multi-row inserts well below the Postgres
// placeholder limit of 65535.
const insertChunkSize = 500

// EventRepository implements the repositories.EventRepository interface
type EventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB, logger *zap.Logger) repositories.EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// AppendBatch appends event records in the order given. The log carries
// no uniqueness constraint, so re-delivered batches insert duplicate
// rows rather than failing.
func (r *EventRepository) AppendBatch(ctx context.Context, records []models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	executor := GetExecutor(ctx, r.db)

	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO events (session_id, ts, seq, kind, data) VALUES `)
		args := make([]interface{}, 0, len(chunk)*5)
		for i, rec := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 5
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)

			data := rec.Data
			if len(data) == 0 {
				data = []byte("{}")
			}
			args = append(args, rec.SessionID, rec.Timestamp, rec.Seq, rec.Kind, string(data))
		}

		if _, err := executor.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to append events: %w", err)
		}
	}

	r.logger.Debug("events appended",
		zap.String("session_id", records[0].SessionID),
		zap.Int("count", len(records)),
	)
	return nil
}

// GetBySession retrieves a session's events ordered by timestamp, then
// by sequence within the delivering batch
func (r *EventRepository) GetBySession(ctx context.Context, sessionID string) ([]models.EventRecord, error) {
	query := `
		SELECT session_id, ts, seq, kind, data
		FROM events
		WHERE session_id = $1
		ORDER BY ts ASC, seq ASC
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		var data string
		if err := rows.Scan(&rec.SessionID, &rec.Timestamp, &rec.Seq, &rec.Kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Data = []byte(data)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return records, nil
}

// DeleteBySession removes all events for a session
func (r *EventRepository) DeleteBySession(ctx context.Context, sessionID string) (int, error) {
	query := `DELETE FROM events WHERE session_id = $1`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	return int(affected), nil
}

// DeleteOrphaned removes events whose owning session no longer exists.
// Event timestamps are client clocks and can sit ahead of the horizon,
// so orphans are deleted unconditionally.
func (r *EventRepository) DeleteOrphaned(ctx context.Context) (int, error) {
	query := `
		DELETE FROM events
		WHERE session_id NOT IN (SELECT session_id FROM sessions)
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned events: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check delete result: %w", err)
	}

	return int(affected), nil
}
