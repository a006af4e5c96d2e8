package gateway

import (
	"context"

	"github.com/behzadon/podium/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) FetchCurrentUser(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockGateway) FetchVoteByDate(ctx context.Context, unixDate int64) (*domain.Vote, error) {
	args := m.Called(ctx, unixDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vote), args.Error(1)
}

func (m *MockGateway) SubmitVote(ctx context.Context, brandIDs [3]int) (*domain.Vote, error) {
	args := m.Called(ctx, brandIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vote), args.Error(1)
}

func (m *MockGateway) VerifyShare(ctx context.Context, postRef, voteID string) (*domain.ShareVerification, error) {
	args := m.Called(ctx, postRef, voteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShareVerification), args.Error(1)
}
