package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Scheduling engine knobs.
	EmergencyReserveFraction float64 `mapstructure:"EMERGENCY_RESERVE_FRACTION"`
	BookingMaxAttempts       int     `mapstructure:"BOOKING_MAX_ATTEMPTS"`
	BookingBackoffMs         int     `mapstructure:"BOOKING_BACKOFF_MS"`
	DefaultSlotMinutes       int     `mapstructure:"DEFAULT_SLOT_MINUTES"`
	NoShowStreakThreshold    int     `mapstructure:"NO_SHOW_STREAK_THRESHOLD"`

	// Event dispatch.
	EventBufferSize  int `mapstructure:"EVENT_BUFFER_SIZE"`
	EventWorkerCount int `mapstructure:"EVENT_WORKER_COUNT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("EMERGENCY_RESERVE_FRACTION", 0.2)
	v.SetDefault("BOOKING_MAX_ATTEMPTS", 3)
	v.SetDefault("BOOKING_BACKOFF_MS", 25)
	v.SetDefault("DEFAULT_SLOT_MINUTES", 30)
	v.SetDefault("NO_SHOW_STREAK_THRESHOLD", 3)
	v.SetDefault("EVENT_BUFFER_SIZE", 256)
	v.SetDefault("EVENT_WORKER_COUNT", 2)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("EMERGENCY_RESERVE_FRACTION")
	v.BindEnv("BOOKING_MAX_ATTEMPTS")
	v.BindEnv("BOOKING_BACKOFF_MS")
	v.BindEnv("DEFAULT_SLOT_MINUTES")
	v.BindEnv("NO_SHOW_STREAK_THRESHOLD")
	v.BindEnv("EVENT_BUFFER_SIZE")
	v.BindEnv("EVENT_WORKER_COUNT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EmergencyReserveFraction < 0 || cfg.EmergencyReserveFraction >= 1 {
		return nil, fmt.Errorf("EMERGENCY_RESERVE_FRACTION must be in [0, 1), got %v", cfg.EmergencyReserveFraction)
	}
	if cfg.BookingMaxAttempts < 1 {
		return nil, fmt.Errorf("BOOKING_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
