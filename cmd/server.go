package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/behzadon/podium/internal/api"
	"github.com/behzadon/podium/internal/auth"
	"github.com/behzadon/podium/internal/config"
	"github.com/behzadon/podium/internal/engagement"
	"github.com/behzadon/podium/internal/gateway"
	"github.com/behzadon/podium/internal/host"
	"github.com/behzadon/podium/internal/logging"
	"github.com/behzadon/podium/internal/share"
	"github.com/behzadon/podium/internal/storage/cache"
	"github.com/behzadon/podium/internal/storage/events"
	"github.com/behzadon/podium/internal/storage/postgres"
	"github.com/behzadon/podium/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const sweepInterval = time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the podium server",
	Long:  `Start the podium HTTP server with the specified configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
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

		db, err := postgres.Connect(cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", err)
			}
		}()

		if cfg.Migration.AutoMigrate {
			logger.Info("Auto-migration is enabled, running migrations...")
			if err := runMigrations("up"); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("Migrations completed successfully")
		} else {
			logger.Info("Auto-migration is disabled, skipping migrations")
		}

		redisClient, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
		logger.Info("Successfully connected to Redis")

		publisher, err := newPublisher(cfg, redisClient, zapLogger)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close event publisher", err)
			}
		}()
		logger.Info("Publishing engagement events", zap.String("driver", cfg.Events.Driver))

		gw := gateway.NewHTTPGateway(cfg.Backend.BaseURL, nil, gateway.BreakerSettings{
			MaxFailures:   cfg.Backend.BreakerFailures,
			OpenTimeout:   cfg.Backend.BreakerOpenTimeout,
			CountInterval: cfg.Backend.BreakerCountInterval,
		}, zapLogger)
		userStore := store.New(gw, cache.NewRedisCache(redisClient, cfg.Redis.UserTTL), zapLogger)
		journal := postgres.NewJournal(db, zapLogger)
		composer := host.NewHTTPComposer(cfg.Host.ComposeURL, cfg.Host.APIKey, nil, zapLogger)
		coordinator := share.NewCoordinator(composer, gw, journal, publisher, cfg.Host.AppURL, zapLogger)

		registry := engagement.NewRegistry(engagement.Deps{
			Store:     userStore,
			Submitter: gw,
			Sharer:    coordinator,
			Publisher: publisher,
			Logger:    zapLogger,
		}, cfg.Flow.IdleTTL)

		sweepCtx, stopSweep := context.WithCancel(ctx)
		defer stopSweep()
		go registry.Run(sweepCtx, sweepInterval)

		jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Issuer)
		handler := api.NewHandler(registry, journal, redisClient, zapLogger)

		if cfg.Server.Env != "development" {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := gin.New()
		engine.Use(gin.Recovery())
		engine.Use(logger.GinLogger())
		handler.RegisterRoutes(engine, jwtManager)

		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
		}

		go func() {
			logger.Info("Starting server",
				zap.Int("port", cfg.Server.Port),
			)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("Failed to start server", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", err)
			return fmt.Errorf("server shutdown: %w", err)
		}

		logger.Info("Server exited properly")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func newPublisher(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (events.Publisher, error) {
	if cfg.Events.Driver == config.EventsDriverRedis {
		return events.NewRedisPublisher(redisClient, cfg.Events.RedisChannel, logger), nil
	}
	publisher, err := events.NewRabbitMQPublisher(
		cfg.RabbitMQ.Host,
		cfg.RabbitMQ.Port,
		cfg.RabbitMQ.User,
		cfg.RabbitMQ.Password,
		cfg.RabbitMQ.VHost,
		cfg.RabbitMQ.Queue,
		logger,
	)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}
