package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Host      HostConfig      `mapstructure:"host"`
	Flow      FlowConfig      `mapstructure:"flow"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Events    EventsConfig    `mapstructure:"events"`
	Migration MigrationConfig `mapstructure:"migration"`
	JWT       JWTConfig       `mapstructure:"jwt"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

// BackendConfig points at the authoritative brand-voting API.
type BackendConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	BreakerFailures      uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout   time.Duration `mapstructure:"breaker_open_timeout"`
	BreakerCountInterval time.Duration `mapstructure:"breaker_count_interval"`
}

// HostConfig describes the social network the mini app is embedded in.
type HostConfig struct {
	ComposeURL string `mapstructure:"compose_url"`
	APIKey     string `mapstructure:"api_key"`
	AppURL     string `mapstructure:"app_url"`
}

type FlowConfig struct {
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.DBName,
		c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	UserTTL  time.Duration `mapstructure:"user_ttl"`
}

type RabbitMQConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

const (
	EventsDriverRabbitMQ = "rabbitmq"
	EventsDriverRedis    = "redis"
)

// EventsConfig selects where engagement events are published. The
// notification consumer always reads from RabbitMQ.
type EventsConfig struct {
	Driver       string `mapstructure:"driver"`
	RedisChannel string `mapstructure:"redis_channel"`
}

type MigrationConfig struct {
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	Dir         string `mapstructure:"dir"`
}

type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	Issuer    string `mapstructure:"issuer"`
}

func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := bindEnvs(v); err != nil {
		return nil, fmt.Errorf("bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("backend.breaker_failures", 5)
	v.SetDefault("backend.breaker_open_timeout", 30*time.Second)
	v.SetDefault("backend.breaker_count_interval", time.Minute)
	v.SetDefault("flow.idle_ttl", 30*time.Minute)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.user_ttl", 5*time.Minute)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.queue", "podium_events")
	v.SetDefault("events.driver", EventsDriverRabbitMQ)
	v.SetDefault("events.redis_channel", "podium:events")
	v.SetDefault("migration.auto_migrate", false)
	v.SetDefault("migration.dir", "migrations")
}

func bindEnvs(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":                    "PODIUM_SERVER_PORT",
		"server.env":                     "PODIUM_SERVER_ENV",
		"backend.base_url":               "PODIUM_BACKEND_BASE_URL",
		"backend.breaker_failures":       "PODIUM_BACKEND_BREAKER_FAILURES",
		"backend.breaker_open_timeout":   "PODIUM_BACKEND_BREAKER_OPEN_TIMEOUT",
		"backend.breaker_count_interval": "PODIUM_BACKEND_BREAKER_COUNT_INTERVAL",
		"host.compose_url":               "PODIUM_HOST_COMPOSE_URL",
		"host.api_key":                   "PODIUM_HOST_API_KEY",
		"host.app_url":                   "PODIUM_HOST_APP_URL",
		"flow.idle_ttl":                  "PODIUM_FLOW_IDLE_TTL",
		"postgres.host":                  "PODIUM_POSTGRES_HOST",
		"postgres.port":                  "PODIUM_POSTGRES_PORT",
		"postgres.user":                  "PODIUM_POSTGRES_USER",
		"postgres.password":              "PODIUM_POSTGRES_PASSWORD",
		"postgres.dbname":                "PODIUM_POSTGRES_DBNAME",
		"postgres.sslmode":               "PODIUM_POSTGRES_SSLMODE",
		"redis.host":                     "PODIUM_REDIS_HOST",
		"redis.port":                     "PODIUM_REDIS_PORT",
		"redis.password":                 "PODIUM_REDIS_PASSWORD",
		"redis.db":                       "PODIUM_REDIS_DB",
		"redis.user_ttl":                 "PODIUM_REDIS_USER_TTL",
		"rabbitmq.host":                  "PODIUM_RABBITMQ_HOST",
		"rabbitmq.port":                  "PODIUM_RABBITMQ_PORT",
		"rabbitmq.user":                  "PODIUM_RABBITMQ_USER",
		"rabbitmq.password":              "PODIUM_RABBITMQ_PASSWORD",
		"rabbitmq.vhost":                 "PODIUM_RABBITMQ_VHOST",
		"rabbitmq.queue":                 "PODIUM_RABBITMQ_QUEUE",
		"events.driver":                  "PODIUM_EVENTS_DRIVER",
		"events.redis_channel":           "PODIUM_EVENTS_REDIS_CHANNEL",
		"migration.auto_migrate":         "PODIUM_MIGRATION_AUTO_MIGRATE",
		"migration.dir":                  "PODIUM_MIGRATION_DIR",
		"jwt.secret_key":                 "PODIUM_JWT_SECRET_KEY",
		"jwt.issuer":                     "PODIUM_JWT_ISSUER",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be greater than 0")
	}
	if cfg.Server.Env == "" {
		return fmt.Errorf("server.env is required")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if _, err := url.ParseRequestURI(cfg.Backend.BaseURL); err != nil {
		return fmt.Errorf("backend.base_url is invalid: %w", err)
	}
	if cfg.Backend.BreakerFailures == 0 {
		return fmt.Errorf("backend.breaker_failures must be greater than 0")
	}

	if cfg.Host.ComposeURL == "" {
		return fmt.Errorf("host.compose_url is required")
	}
	if cfg.Host.AppURL == "" {
		return fmt.Errorf("host.app_url is required")
	}

	if cfg.Flow.IdleTTL <= 0 {
		return fmt.Errorf("flow.idle_ttl must be greater than 0")
	}

	if cfg.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if cfg.Postgres.Port <= 0 {
		return fmt.Errorf("postgres.port must be greater than 0")
	}
	if cfg.Postgres.User == "" {
		return fmt.Errorf("postgres.user is required")
	}
	if cfg.Postgres.DBName == "" {
		return fmt.Errorf("postgres.dbname is required")
	}

	if cfg.Redis.Host == "" {
		return fmt.Errorf("redis.host is required")
	}
	if cfg.Redis.Port <= 0 {
		return fmt.Errorf("redis.port must be greater than 0")
	}
	if cfg.Redis.UserTTL <= 0 {
		return fmt.Errorf("redis.user_ttl must be greater than 0")
	}

	if cfg.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq.host is required")
	}
	if cfg.RabbitMQ.Port <= 0 {
		return fmt.Errorf("rabbitmq.port must be greater than 0")
	}
	if cfg.RabbitMQ.User == "" {
		return fmt.Errorf("rabbitmq.user is required")
	}

	switch cfg.Events.Driver {
	case EventsDriverRabbitMQ, EventsDriverRedis:
	default:
		return fmt.Errorf("events.driver must be %q or %q", EventsDriverRabbitMQ, EventsDriverRedis)
	}

	if cfg.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key is required")
	}

	return nil
}
