package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/behzadon/podium/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Journal stores share attempts in the share_attempts table.
type Journal struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewJournal(db *sqlx.DB, logger *zap.Logger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
	}
}

func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func (j *Journal) RecordShareAttempt(ctx context.Context, attempt *domain.ShareAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO share_attempts (id, user_id, vote_id, post_ref, status, points_awarded, already_shared, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := j.db.ExecContext(ctx, query,
		attempt.ID, attempt.UserID, attempt.VoteID, attempt.PostRef,
		string(attempt.Status), attempt.PointsAwarded, attempt.AlreadyShared,
		attempt.Message, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record share attempt: %w", err)
	}

	j.logger.Debug("share attempt recorded",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("vote_id", attempt.VoteID),
		zap.String("status", string(attempt.Status)),
	)
	return nil
}

// ListShareAttempts returns the newest attempts of userID for voteID first.
func (j *Journal) ListShareAttempts(ctx context.Context, userID, voteID string, limit int) ([]domain.ShareAttempt, error) {
	if limit <= 0 {
		limit = domain.DefaultHistoryLimit
	}
	if limit > domain.MaxHistoryLimit {
		limit = domain.MaxHistoryLimit
	}

	query := `
		SELECT id, user_id, vote_id, post_ref, status, points_awarded, already_shared, message, created_at
		FROM share_attempts
		WHERE user_id = $1 AND vote_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	attempts := []domain.ShareAttempt{}
	if err := j.db.SelectContext(ctx, &attempts, query, userID, voteID, limit); err != nil {
		return nil, fmt.Errorf("list share attempts: %w", err)
	}
	return attempts, nil
}
