package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogNotificationService writes notifications to the log instead of delivering
// them.
type LogNotificationService struct {
	Logger *zap.Logger
}

func (s *LogNotificationService) SendNotification(ctx context.Context, userID string, title, message string) error {
	s.Logger.Info("Notification sent",
		zap.String("user_id", userID),
		zap.String("title", title),
		zap.String("message", message),
	)
	return nil
}
