package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/playperu/tasting/internal/coordinator"
	"github.com/playperu/tasting/internal/tasting"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/tasting.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	// RedisURL enables cross-node fan-out. Empty keeps broadcast in-process.
	RedisURL string `env:"REDIS_URL"`

	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	NosingSeconds              int           `env:"NOSING_SECONDS" envDefault:"60"`
	PalateResetSeconds         int           `env:"PALATE_RESET_SECONDS" envDefault:"180"`
	TimerRetryBackoff          time.Duration `env:"TIMER_RETRY_BACKOFF" envDefault:"2s"`
	PauseOnModeratorDisconnect bool          `env:"PAUSE_ON_MODERATOR_DISCONNECT" envDefault:"false"`
	OutboxSize                 int           `env:"OUTBOX_SIZE" envDefault:"256"`

	WSMessagesPerSecond float64 `env:"WS_MESSAGES_PER_SECOND" envDefault:"10"`
	WSBurst             int     `env:"WS_BURST" envDefault:"20"`
	// Join attempts per client IP. Zero disables the limit.
	JoinPerSecond float64 `env:"JOIN_PER_SECOND" envDefault:"1"`
	JoinBurst     int     `env:"JOIN_BURST" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.NosingSeconds < 0 || cfg.PalateResetSeconds < 0 || cfg.TimerRetryBackoff < 0 || cfg.TokenTTL < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}
	if cfg.WSMessagesPerSecond < 0 || cfg.JoinPerSecond < 0 {
		return nil, fmt.Errorf("rate limits must not be negative")
	}
	return &cfg, nil
}

// Coordinator derives the coordinator settings.
func (c *Config) Coordinator() coordinator.Config {
	cc := coordinator.DefaultConfig()
	cc.Durations = tasting.PhaseDurations{
		Nosing:      time.Duration(c.NosingSeconds) * time.Second,
		PalateReset: time.Duration(c.PalateResetSeconds) * time.Second,
	}
	cc.TimerRetryBackoff = c.TimerRetryBackoff
	cc.PauseOnModeratorDisconnect = c.PauseOnModeratorDisconnect
	cc.OutboxSize = c.OutboxSize
	return cc
}
