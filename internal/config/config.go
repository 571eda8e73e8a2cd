// Package config gathers process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"repair_shop_backend/internal/database"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/pkg/utils"

	"github.com/joho/godotenv"
)

const (
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
)

type Config struct {
	Port     string
	LogLevel string

	DB          database.Config
	SchemaPath  string
	LockTimeout time.Duration

	JWTSecret     string
	JWTTTL        time.Duration
	JWTRefreshTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SequenceBackend string
	TicketPrefix    string
	PurchasePrefix  string
	TicketLockTTL   time.Duration

	SMTP            notifications.SMTPConfig
	NotifyQueueSize int

	CORSOrigins []string
}

// Load reads envFile (".env" when empty) if it exists, then the environment.
// A missing default .env is not an error; a missing explicit file is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:     utils.Getenv("PORT", "8080"),
		LogLevel: utils.Getenv("LOG_LEVEL", "info"),
		DB: database.Config{
			Host:     utils.Getenv("DB_HOST", "localhost"),
			Port:     utils.Getenv("DB_PORT", "5432"),
			User:     utils.Getenv("DB_USER", "repair_shop"),
			Password: utils.Getenv("DB_PASSWORD", "repair_shop"),
			Name:     utils.Getenv("DB_NAME", "repair_shop"),
			SSLMode:  utils.Getenv("DB_SSLMODE", "disable"),
			MaxOpen:  utils.GetenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdle:  utils.GetenvInt("DB_MAX_IDLE_CONNS", 5),
		},
		SchemaPath:  utils.Getenv("DB_SCHEMA_PATH", ""),
		LockTimeout: utils.GetenvDuration("DB_LOCK_TIMEOUT", 5*time.Second),

		JWTSecret:     utils.Getenv("JWT_SECRET", ""),
		JWTTTL:        utils.GetenvDuration("JWT_TTL", 12*time.Hour),
		JWTRefreshTTL: utils.GetenvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),

		RedisAddr:     utils.Getenv("REDIS_ADDR", ""),
		RedisPassword: utils.Getenv("REDIS_PASSWORD", ""),
		RedisDB:       utils.GetenvInt("REDIS_DB", 0),

		SequenceBackend: strings.ToLower(utils.Getenv("SEQUENCE_BACKEND", SequencePostgres)),
		TicketPrefix:    strings.ToUpper(utils.Getenv("TICKET_CODE_PREFIX", ticketcode.DefaultTicketPrefix)),
		PurchasePrefix:  strings.ToUpper(utils.Getenv("PURCHASE_CODE_PREFIX", ticketcode.DefaultPurchasePrefix)),
		TicketLockTTL:   utils.GetenvDuration("TICKET_LOCK_TTL", 15*time.Second),

		SMTP: notifications.SMTPConfig{
			Host:     utils.Getenv("SMTP_HOST", ""),
			Port:     utils.GetenvInt("SMTP_PORT", 587),
			Username: utils.Getenv("SMTP_USER", ""),
			Password: utils.Getenv("SMTP_PASSWORD", ""),
			From:     utils.Getenv("SMTP_FROM", ""),
			ShopName: utils.Getenv("SHOP_NAME", ""),
		},
		NotifyQueueSize: utils.GetenvInt("NOTIFY_QUEUE_SIZE", 100),

		CORSOrigins: splitList(utils.Getenv("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SequenceBackend {
	case SequencePostgres:
	case SequenceRedis:
		if c.RedisAddr == "" {
			return errors.New("SEQUENCE_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown SEQUENCE_BACKEND %q: want %s or %s", c.SequenceBackend, SequencePostgres, SequenceRedis)
	}
	if !ticketcode.ValidPrefix(c.TicketPrefix) {
		return fmt.Errorf("invalid TICKET_CODE_PREFIX %q", c.TicketPrefix)
	}
	if !ticketcode.ValidPrefix(c.PurchasePrefix) {
		return fmt.Errorf("invalid PURCHASE_CODE_PREFIX %q", c.PurchasePrefix)
	}
	if c.NotifyQueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	return nil
}

// SMTPEnabled reports whether mail notifications can be sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.From != ""
}

// RedisEnabled reports whether a Redis server is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
