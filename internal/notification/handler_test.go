package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/behzadon/podium/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockNotificationService struct {
	mock.Mock
}

func (m *mockNotificationService) SendNotification(ctx context.Context, userID string, title, message string) error {
	return m.Called(ctx, userID, title, message).Error(0)
}

func TestHandleVoteSubmitted(t *testing.T) {
	ctx := context.Background()
	svc := new(mockNotificationService)
	h := NewNotificationHandler(svc, zap.NewNop())

	svc.On("SendNotification", ctx, "42", "Your podium is in",
		"Alpha took gold on your podium. Share it to earn bonus points!").Return(nil)

	err := h.HandleVoteSubmitted(ctx, &domain.VoteSubmitted{
		UserID: "42",
		Vote: domain.Vote{
			ID:     "v1",
			Brand1: domain.BrandRef{ID: 1, Name: "Alpha"},
			Brand2: domain.BrandRef{ID: 2, Name: "Beta"},
			Brand3: domain.BrandRef{ID: 3, Name: "Gamma"},
		},
	})
	assert.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestHandleShareCompleted(t *testing.T) {
	tests := []struct {
		name      string
		event     domain.ShareCompleted
		setupMock func(*mockNotificationService)
		wantErr   bool
	}{
		{
			name:  "verified with points notifies",
			event: domain.ShareCompleted{UserID: "42", VoteID: "v1", Status: domain.ShareVerified, PointsAwarded: 3},
			setupMock: func(m *mockNotificationService) {
				m.On("SendNotification", mock.Anything, "42", "Bonus points", "Your share was verified: +3 points.").Return(nil)
			},
		},
		{
			name:  "repeat verification is silent",
			event: domain.ShareCompleted{UserID: "42", VoteID: "v1", Status: domain.ShareVerified, AlreadyShared: true},
		},
		{
			name:  "skip is silent",
			event: domain.ShareCompleted{UserID: "42", VoteID: "v1", Status: domain.ShareSkipped},
		},
		{
			name:  "delivery failure is returned",
			event: domain.ShareCompleted{UserID: "42", VoteID: "v1", Status: domain.ShareVerified, PointsAwarded: 3},
			setupMock: func(m *mockNotificationService) {
				m.On("SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("push gateway down"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockNotificationService)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}
			h := NewNotificationHandler(svc, zap.NewNop())

			err := h.HandleShareCompleted(context.Background(), &tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.setupMock == nil {
				svc.AssertNotCalled(t, "SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			svc.AssertExpectations(t)
		})
	}
}
