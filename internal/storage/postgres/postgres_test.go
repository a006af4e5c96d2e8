package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/behzadon/podium/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewJournal(sqlx.NewDb(db, "postgres"), zap.NewNop()), mock
}

var (
	insertAttempt = regexp.QuoteMeta("INSERT INTO share_attempts")
	selectAttempt = regexp.QuoteMeta("FROM share_attempts")
)

func TestRecordShareAttempt(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2023, 11, 14, 12, 0, 0, 0, time.UTC)
	attempt := &domain.ShareAttempt{
		ID:            uuid.New(),
		UserID:        "42",
		VoteID:        "v1",
		PostRef:       "0xabc",
		Status:        domain.ShareVerified,
		PointsAwarded: 3,
		CreatedAt:     createdAt,
	}

	t.Run("success", func(t *testing.T) {
		j, mock := newTestJournal(t)
		mock.ExpectExec(insertAttempt).
			WithArgs(attempt.ID, "42", "v1", "0xabc", "verified", 3, false, "", createdAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, j.RecordShareAttempt(ctx, attempt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fills id and timestamp", func(t *testing.T) {
		j, mock := newTestJournal(t)
		mock.ExpectExec(insertAttempt).
			WithArgs(sqlmock.AnyArg(), "42", "v1", "", "skipped", 0, false, "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		a := &domain.ShareAttempt{UserID: "42", VoteID: "v1", Status: domain.ShareSkipped}
		require.NoError(t, j.RecordShareAttempt(ctx, a))
		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.False(t, a.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		j, mock := newTestJournal(t)
		dbErr := errors.New("connection reset")
		mock.ExpectExec(insertAttempt).WillReturnError(dbErr)

		err := j.RecordShareAttempt(ctx, attempt)
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestListShareAttempts(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "user_id", "vote_id", "post_ref", "status", "points_awarded", "already_shared", "message", "created_at"}
	id1, id2 := uuid.New(), uuid.New()
	t1 := time.Date(2023, 11, 14, 12, 5, 0, 0, time.UTC)
	t2 := time.Date(2023, 11, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"explicit limit", 5, 5},
		{"default limit", 0, domain.DefaultHistoryLimit},
		{"capped limit", 1000, domain.MaxHistoryLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, mock := newTestJournal(t)
			rows := sqlmock.NewRows(columns).
				AddRow(id1.String(), "42", "v1", "0xdef", "verified", 3, false, "", t1).
				AddRow(id2.String(), "42", "v1", "", "failed", 0, false, "share was not completed", t2)
			mock.ExpectQuery(selectAttempt).WithArgs("42", "v1", tt.wantLimit).WillReturnRows(rows)

			attempts, err := j.ListShareAttempts(ctx, "42", "v1", tt.limit)
			require.NoError(t, err)
			require.Len(t, attempts, 2)
			assert.Equal(t, id1, attempts[0].ID)
			assert.Equal(t, domain.ShareVerified, attempts[0].Status)
			assert.Equal(t, 3, attempts[0].PointsAwarded)
			assert.Equal(t, domain.ShareFailed, attempts[1].Status)
			assert.Equal(t, "share was not completed", attempts[1].Message)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListShareAttempts_Empty(t *testing.T) {
	j, mock := newTestJournal(t)
	mock.ExpectQuery(selectAttempt).
		WithArgs("42", "v9", domain.DefaultHistoryLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	attempts, err := j.ListShareAttempts(context.Background(), "42", "v9", 0)
	require.NoError(t, err)
	assert.NotNil(t, attempts)
	assert.Empty(t, attempts)
}
