package cache

import (
	"context"

	"github.com/behzadon/podium/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockUserCache struct {
	mock.Mock
}

func (m *MockUserCache) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserCache) Generation(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserCache) SetUser(ctx context.Context, user *domain.User, generation int64) error {
	args := m.Called(ctx, user, generation)
	return args.Error(0)
}

func (m *MockUserCache) InvalidateUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
