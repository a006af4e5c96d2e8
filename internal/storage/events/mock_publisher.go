package events

import (
	"context"

	"github.com/behzadon/podium/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishVoteSubmitted(ctx context.Context, event domain.VoteSubmitted) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishShareCompleted(ctx context.Context, event domain.ShareCompleted) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
