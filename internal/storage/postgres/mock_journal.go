package postgres

import (
	"context"

	"github.com/behzadon/podium/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) RecordShareAttempt(ctx context.Context, attempt *domain.ShareAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockJournal) ListShareAttempts(ctx context.Context, userID, voteID string, limit int) ([]domain.ShareAttempt, error) {
	args := m.Called(ctx, userID, voteID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ShareAttempt), args.Error(1)
}
