package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uxtrace/uxtrace/models"
	"github.com/uxtrace/uxtrace/repositories"
)

var visitorColumns = []string{"fingerprint", "visitor_id", "visit_count", "first_seen", "last_seen"}

func TestVisitorRepository_Upsert(t *testing.T) {
	logger := zap.NewNop()
	now := time.UnixMilli(1700000000000).UTC()

	t.Run("returns stored row after upsert", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewVisitorRepository(db, logger)

		visitor := &models.Visitor{
			VisitorID:   "visitor-1",
			Fingerprint: "fp-1",
			VisitCount:  1,
			FirstSeen:   now,
			LastSeen:    now,
		}

		mock.ExpectExec("INSERT INTO visitors").
			WithArgs("fp-1", "visitor-1", 1, now.UnixMilli(), now.UnixMilli()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// The conflict path bumped the count; the read-back reflects it.
		mock.ExpectQuery("SELECT (.+) FROM visitors").
			WithArgs("fp-1").
			WillReturnRows(sqlmock.NewRows(visitorColumns).
				AddRow("fp-1", "visitor-0", 4, 1690000000000, now.UnixMilli()))

		stored, err := repo.Upsert(context.Background(), visitor)
		require.NoError(t, err)
		assert.Equal(t, "visitor-0", stored.VisitorID, "the original identity wins on conflict")
		assert.Equal(t, 4, stored.VisitCount)
		assert.Equal(t, time.UnixMilli(1690000000000).UTC(), stored.FirstSeen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps exec errors", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewVisitorRepository(db, logger)

		mock.ExpectExec("INSERT INTO visitors").WillReturnError(assert.AnError)

		_, err := repo.Upsert(context.Background(), models.NewVisitor("fp-1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert visitor")
	})
}

func TestVisitorRepository_GetByFingerprint(t *testing.T) {
	t.Run("unknown fingerprint is ErrNotFound", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewVisitorRepository(db, zap.NewNop())

		mock.ExpectQuery("SELECT (.+) FROM visitors").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(visitorColumns))

		_, err := repo.GetByFingerprint(context.Background(), "nope")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}
