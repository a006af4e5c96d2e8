package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/behzadon/podium/internal/logging"
	"github.com/behzadon/podium/internal/notification"
	"github.com/behzadon/podium/internal/storage/events"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notificationConsumerCmd = &cobra.Command{
	Use:   "notification-consumer",
	Short: "Start the notification consumer",
	Long:  `Start the consumer that turns vote and share events into user notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		cfg := GetConfig()

		zapLogger, err := logging.New(cfg.Server.Env)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() {
			if err := zapLogger.Sync(); err != nil {
				zapLogger.Error("Failed to sync logger", zap.Error(err))
			}
		}()

		logger := logging.NewLogger(zapLogger)

		handler := notification.NewNotificationHandler(&notification.LogNotificationService{
			Logger: zapLogger,
		}, zapLogger)

		consumer, err := events.NewRabbitMQConsumer(
			cfg.RabbitMQ.Host,
			cfg.RabbitMQ.Port,
			cfg.RabbitMQ.User,
			cfg.RabbitMQ.Password,
			cfg.RabbitMQ.VHost,
			cfg.RabbitMQ.Queue,
			handler,
			zapLogger,
		)
		if err != nil {
			return fmt.Errorf("create RabbitMQ consumer: %w", err)
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ consumer", err)
			}
		}()

		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}

		logger.Info("Notification consumer started", zap.String("queue", cfg.RabbitMQ.Queue))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down notification consumer...")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationConsumerCmd)
}
