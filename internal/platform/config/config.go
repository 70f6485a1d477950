package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const minTokenSecretLength = 32

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	AppURL      string `env:"APP_URL" default:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	TokenSecret      string        `env:"LIVECHAT_TOKEN_SECRET"`
	SessionTTL       time.Duration `env:"LIVECHAT_SESSION_TTL" default:"24h"`
	MaxMessageLength int           `env:"LIVECHAT_MAX_MESSAGE_LENGTH" default:"500"`
	PublishTimeout   time.Duration `env:"LIVECHAT_PUBLISH_TIMEOUT" default:"500ms"`

	SessionRateLimitPerSecond float64 `env:"SESSION_RATE_LIMIT_PER_SECOND" default:"0.2"`
	SessionRateLimitBurst     int     `env:"SESSION_RATE_LIMIT_BURST" default:"5"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"LIVECHAT_TOKEN_SECRET", cfg.TokenSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.TokenSecret) < minTokenSecretLength {
		return fmt.Errorf("LIVECHAT_TOKEN_SECRET must be at least %d characters", minTokenSecretLength)
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("LIVECHAT_SESSION_TTL must be positive")
	}
	if cfg.MaxMessageLength <= 0 {
		return errors.New("LIVECHAT_MAX_MESSAGE_LENGTH must be positive")
	}
	if cfg.PublishTimeout <= 0 {
		return errors.New("LIVECHAT_PUBLISH_TIMEOUT must be positive")
	}
	if cfg.SessionRateLimitPerSecond <= 0 || cfg.SessionRateLimitBurst <= 0 {
		return errors.New("SESSION_RATE_LIMIT_PER_SECOND and SESSION_RATE_LIMIT_BURST must be positive")
	}
	if cfg.MaxWebSocketConnections <= 0 || cfg.MaxConnectionsPerIP <= 0 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive")
	}

	return nil
}
