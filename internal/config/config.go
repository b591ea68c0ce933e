package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/playperu/panoround/internal/engine"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	HTTPAddr  string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	Store     string     `env:"STORE" envDefault:"sqlite"`
	DBPath    string     `env:"DB_PATH" envDefault:"data/rooms.db"`
	TokenCost int        `env:"TOKEN_COST" envDefault:"10"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"3s"`
	LivenessThreshold time.Duration `env:"LIVENESS_THRESHOLD" envDefault:"10s"`
	GracePeriod       time.Duration `env:"GRACE_PERIOD" envDefault:"15s"`
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"10s"`
	RecoveryMargin    time.Duration `env:"RECOVERY_MARGIN" envDefault:"5s"`
	TickInterval      time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	EmptyRoomTTL      time.Duration `env:"EMPTY_ROOM_TTL" envDefault:"10m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Store != StoreMemory && cfg.Store != StoreSQLite {
		return nil, fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StoreSQLite, cfg.Store)
	}
	for name, d := range map[string]time.Duration{
		"HEARTBEAT_INTERVAL": cfg.HeartbeatInterval,
		"CLEANUP_INTERVAL":   cfg.CleanupInterval,
		"TICK_INTERVAL":      cfg.TickInterval,
		"EMPTY_ROOM_TTL":     cfg.EmptyRoomTTL,
		"SWEEP_INTERVAL":     cfg.SweepInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", name)
		}
	}
	return &cfg, nil
}

// Engine returns the timing knobs for the room engine.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		HeartbeatInterval: c.HeartbeatInterval,
		LivenessThreshold: c.LivenessThreshold,
		GracePeriod:       c.GracePeriod,
		CleanupInterval:   c.CleanupInterval,
		RecoveryMargin:    c.RecoveryMargin,
		TickInterval:      c.TickInterval,
		EmptyRoomTTL:      c.EmptyRoomTTL,
		SweepInterval:     c.SweepInterval,
	}
}
