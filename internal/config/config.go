package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/kitalmartial-lang/medipatient-backend/pkg/caldate"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	JWTTTL           time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SlotLockTTL      time.Duration `mapstructure:"SLOT_LOCK_TTL"`
	KafkaBrokers     []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string        `mapstructure:"KAFKA_TOPIC"`
	WebhookURL       string        `mapstructure:"WEBHOOK_URL"`
	WebhookSecret    string        `mapstructure:"WEBHOOK_SECRET"`
	DayStart         string        `mapstructure:"SCHEDULE_DAY_START"`
	DayEnd           string        `mapstructure:"SCHEDULE_DAY_END"`
	SlotMinutes      int           `mapstructure:"SCHEDULE_SLOT_MINUTES"`
	ExpiringSoonDays int           `mapstructure:"EXPIRING_SOON_DAYS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
}

// SlotWindow is the daily working window used to generate appointment slots,
// expressed as offsets from midnight.
type SlotWindow struct {
	Start time.Duration
	End   time.Duration
	Step  time.Duration
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REDIS_URL", "SLOT_LOCK_TTL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "WEBHOOK_URL", "WEBHOOK_SECRET",
	"SCHEDULE_DAY_START", "SCHEDULE_DAY_END", "SCHEDULE_SLOT_MINUTES",
	"EXPIRING_SOON_DAYS", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	// .env.local is a developer override file; variables already present in
	// the environment win over it.
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			return nil, fmt.Errorf("load .env.local: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "medipatient")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("SLOT_LOCK_TTL", "5s")
	v.SetDefault("KAFKA_TOPIC", "medipatient.events")
	v.SetDefault("SCHEDULE_DAY_START", "09:00")
	v.SetDefault("SCHEDULE_DAY_END", "17:00")
	v.SetDefault("SCHEDULE_SLOT_MINUTES", 30)
	v.SetDefault("EXPIRING_SOON_DAYS", 30)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("server is running in DEVELOPMENT mode (ENV=development); do not use this configuration in production")
	}

	return cfg, nil
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlotWindow returns the parsed schedule window.
func (c *Config) SlotWindow() (SlotWindow, error) {
	start, err := caldate.ParseClock(c.DayStart)
	if err != nil {
		return SlotWindow{}, fmt.Errorf("SCHEDULE_DAY_START: %w", err)
	}
	end, err := caldate.ParseClock(c.DayEnd)
	if err != nil {
		return SlotWindow{}, fmt.Errorf("SCHEDULE_DAY_END: %w", err)
	}
	if end <= start {
		return SlotWindow{}, errors.New("SCHEDULE_DAY_END must be after SCHEDULE_DAY_START")
	}
	if c.SlotMinutes <= 0 {
		return SlotWindow{}, fmt.Errorf("SCHEDULE_SLOT_MINUTES must be positive, got %d", c.SlotMinutes)
	}
	return SlotWindow{Start: start, End: end, Step: time.Duration(c.SlotMinutes) * time.Minute}, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory.
func (c *Config) Validate() error {
	if _, err := c.SlotWindow(); err != nil {
		return err
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production, got %d", len(c.JWTSecret))
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.ExpiringSoonDays < 0 {
		return fmt.Errorf("EXPIRING_SOON_DAYS must not be negative")
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	return nil
}
