package notification

import (
	"context"
	"fmt"

	"github.com/behzadon/podium/internal/domain"
	"github.com/behzadon/podium/internal/storage/events"
	"go.uber.org/zap"
)

type NotificationService interface {
	SendNotification(ctx context.Context, userID string, title, message string) error
}

type NotificationHandler struct {
	notificationService NotificationService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService NotificationService, logger *zap.Logger) events.EventHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
	}
}

// HandleVoteSubmitted reminds the voter that sharing the podium earns bonus
// points.
func (h *NotificationHandler) HandleVoteSubmitted(ctx context.Context, event *domain.VoteSubmitted) error {
	podium := domain.DisplayOrder(&event.Vote)
	h.logger.Info("Vote submitted",
		zap.String("user_id", event.UserID),
		zap.String("vote_id", event.Vote.ID),
		zap.String("first", podium.First().Name),
	)

	message := fmt.Sprintf("%s took gold on your podium. Share it to earn bonus points!", podium.First().Name)
	return h.notificationService.SendNotification(ctx, event.UserID, "Your podium is in", message)
}

func (h *NotificationHandler) HandleShareCompleted(ctx context.Context, event *domain.ShareCompleted) error {
	h.logger.Info("Share completed",
		zap.String("user_id", event.UserID),
		zap.String("vote_id", event.VoteID),
		zap.String("status", string(event.Status)),
		zap.Int("points_awarded", event.PointsAwarded),
		zap.Bool("already_shared", event.AlreadyShared),
	)

	switch {
	case event.Status == domain.ShareSkipped:
		return nil
	case event.AlreadyShared || event.PointsAwarded == 0:
		// Repeat verifications award nothing; the first one already notified.
		return nil
	default:
		message := fmt.Sprintf("Your share was verified: +%d points.", event.PointsAwarded)
		return h.notificationService.SendNotification(ctx, event.UserID, "Bonus points", message)
	}
}
