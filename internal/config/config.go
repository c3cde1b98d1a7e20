// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/api and cmd/coachos.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// --------------------------------------------------------------------------
// Mail transports
// --------------------------------------------------------------------------

const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
	TransportAMQP = "amqp"
)

// shortestLeadTime is the 1h reminder. A tick period longer than this would
// let sessions skip the remind1h window entirely.
const shortestLeadTime = time.Hour

// --------------------------------------------------------------------------
// Config is populated from environment variables.
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	LogLevel    slog.Level

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool

	// Reminder job
	TickPeriod            time.Duration
	ReminderCron          string
	ReminderWorkerEnabled bool
	SessionTimezone       string
	StoreTimeout          time.Duration
	SendTimeout           time.Duration
	CronSecret            string

	// Dashboard authentication
	AuthJWTSecret string

	// Background tasks
	StatsRefreshInterval      time.Duration
	NewSessionCatchUpInterval time.Duration
	NewSessionListenerEnabled bool

	// Mail transport
	MailTransport  string
	MailFrom       string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	AMQPQueue      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("SUPABASE_DB_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or SUPABASE_DB_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8080)),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envLevel("LOG_LEVEL", slog.LevelInfo),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),

		TickPeriod:            envDuration("REMINDER_TICK_PERIOD", time.Hour),
		ReminderCron:          os.Getenv("REMINDER_CRON"),
		ReminderWorkerEnabled: envBool("REMINDER_WORKER_ENABLED", true),
		SessionTimezone:       envOr("SESSION_TIMEZONE", "Europe/Paris"),
		StoreTimeout:          envDuration("STORE_TIMEOUT", 10*time.Second),
		SendTimeout:           envDuration("SEND_TIMEOUT", 15*time.Second),
		CronSecret:            envOr("CRON_SECRET", ""),

		AuthJWTSecret: envOr("AUTH_JWT_SECRET", envOr("SUPABASE_JWT_SECRET", "")),

		StatsRefreshInterval:      envDuration("STATS_REFRESH_INTERVAL", 15*time.Minute),
		NewSessionCatchUpInterval: envDuration("NEW_SESSION_CATCHUP_INTERVAL", 15*time.Minute),
		NewSessionListenerEnabled: envBool("NEW_SESSION_LISTENER_ENABLED", true),

		MailTransport:  strings.ToLower(envOr("MAIL_TRANSPORT", TransportLog)),
		MailFrom:       envOr("MAIL_FROM", "MyCareCoach <no-reply@mycarecoach.fr>"),
		SMTPHost:       envOr("SMTP_HOST", ""),
		SMTPPort:       envInt("SMTP_PORT", 587),
		SMTPUsername:   envOr("SMTP_USERNAME", ""),
		SMTPPassword:   envOr("SMTP_PASSWORD", ""),
		AMQPURL:        envOr("AMQP_URL", ""),
		AMQPExchange:   envOr("AMQP_EXCHANGE", "coachos.mail"),
		AMQPRoutingKey: envOr("AMQP_ROUTING_KEY", "reminder"),
		AMQPQueue:      envOr("AMQP_QUEUE", "coachos.mail.outbound"),
	}

	if cfg.ReminderCron == "" {
		cfg.ReminderCron = cronForPeriod(cfg.TickPeriod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.TickPeriod <= 0 {
		return fmt.Errorf("REMINDER_TICK_PERIOD must be positive")
	}
	if c.TickPeriod > shortestLeadTime {
		return fmt.Errorf("REMINDER_TICK_PERIOD %s exceeds the shortest lead time %s", c.TickPeriod, shortestLeadTime)
	}
	if err := checkCronCadence(c.ReminderCron, c.TickPeriod); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.SessionTimezone); err != nil {
		return fmt.Errorf("SESSION_TIMEZONE %q: %w", c.SessionTimezone, err)
	}
	if c.IsProduction() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET or SUPABASE_JWT_SECRET is required in production")
	}
	switch c.MailTransport {
	case TransportLog:
	case TransportSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_TRANSPORT=smtp")
		}
	case TransportAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when MAIL_TRANSPORT=amqp")
		}
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}
	return nil
}

// cronForPeriod returns the standard schedule firing on every period
// boundary, or "" when the period has no such schedule.
func cronForPeriod(period time.Duration) string {
	switch {
	case period == time.Hour:
		return "0 * * * *"
	case period > 0 && period < time.Hour && period%time.Minute == 0 && time.Hour%period == 0:
		return fmt.Sprintf("*/%d * * * *", int(period/time.Minute))
	}
	return ""
}

// checkCronCadence rejects a schedule whose runs are not exactly period
// apart. Sparser runs leave windows unevaluated; denser ones are wasted.
func checkCronCadence(spec string, period time.Duration) error {
	if spec == "" {
		return fmt.Errorf("REMINDER_CRON is required for REMINDER_TICK_PERIOD %s", period)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("REMINDER_CRON %q: %w", spec, err)
	}
	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	prev := sched.Next(from)
	if prev.IsZero() {
		return fmt.Errorf("REMINDER_CRON %q never fires", spec)
	}
	for until := from.Add(48 * time.Hour); prev.Before(until); {
		next := sched.Next(prev)
		if gap := next.Sub(prev); gap != period {
			return fmt.Errorf("REMINDER_CRON %q runs %s apart at %s, REMINDER_TICK_PERIOD is %s",
				spec, gap, prev.Format(time.RFC3339), period)
		}
		prev = next
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location returns the timezone sessions are scheduled in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SessionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
