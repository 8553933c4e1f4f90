package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StorageDriver  string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32  `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string `mapstructure:"DB_SCHEMA"`
	MigrationsAuto bool   `mapstructure:"MIGRATIONS_AUTO"`

	RedisURL             string        `mapstructure:"REDIS_URL"`
	BookingAttemptLimit  int           `mapstructure:"BOOKING_ATTEMPT_LIMIT"`
	BookingAttemptWindow time.Duration `mapstructure:"BOOKING_ATTEMPT_WINDOW"`
	ClinicTimezone       string        `mapstructure:"CLINIC_TIMEZONE"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORAGE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA", "MIGRATIONS_AUTO",
	"REDIS_URL", "BOOKING_ATTEMPT_LIMIT", "BOOKING_ATTEMPT_WINDOW", "CLINIC_TIMEZONE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("MIGRATIONS_AUTO", false)
	v.SetDefault("BOOKING_ATTEMPT_LIMIT", 10)
	v.SetDefault("BOOKING_ATTEMPT_WINDOW", "1h")
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Location returns the clinic time zone used to decide which dates are past.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration can run.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max > 0",
				c.DBMinConns, c.DBMaxConns)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StorageDriver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.BookingAttemptLimit <= 0 {
		return fmt.Errorf("BOOKING_ATTEMPT_LIMIT must be positive, got %d", c.BookingAttemptLimit)
	}
	if c.BookingAttemptWindow <= 0 {
		return fmt.Errorf("BOOKING_ATTEMPT_WINDOW must be positive, got %s", c.BookingAttemptWindow)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}
