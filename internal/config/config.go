package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	StoreDriver    string
	MongoURI       string
	DBName         string
	UseTransaction bool
	JWTSecret      string
	AccessTokenTTL time.Duration
	CORSOrigins    []string
	AuthRateLimit  string
	Location       *time.Location
	Log            LogConfig
	Mail           MailConfig
	Notify         NotifyConfig
	Redis          RedisConfig
	Scheduler      SchedulerConfig
	Google         GoogleConfig
	PasswordReset  PasswordResetConfig

	// EnvFileErr holds the .env load error; the file is optional.
	EnvFileErr error
}

type LogConfig struct {
	Level    string
	Encoding string
}

type MailConfig struct {
	AdminEmail string
	SMTPHost   string
	SMTPPort   int
	User       string
	Password   string
	FromName   string
}

// Enabled reports whether SMTP credentials are present.
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" && m.User != ""
}

type NotifyConfig struct {
	QueueSize   int
	Workers     int
	MaxAttempts int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type SchedulerConfig struct {
	Enabled bool
	Daily   string
	Weekly  string
}

// GoogleConfig enables Google sign-in when ClientID is set.
type GoogleConfig struct {
	ClientID string
	CertsURL string
}

type PasswordResetConfig struct {
	URL      string
	TokenTTL time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	loadErr := godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "5002")
	v.SetDefault("STORE_DRIVER", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://127.0.0.1:27017")
	v.SetDefault("DB_NAME", "supermarketDB")
	v.SetDefault("MONGO_TRANSACTIONS", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_RATE_LIMIT", "10-M")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_USER", "")
	v.SetDefault("EMAIL_PASSWORD", "")
	v.SetDefault("MAIL_FROM_NAME", "EasyManager")
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_CHANNEL", "easymanager:events")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("CRON_DAILY", "0 9 * * *")
	v.SetDefault("CRON_WEEKLY", "0 10 * * 0")
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CERTS_URL", "https://www.googleapis.com/oauth2/v3/certs")
	v.SetDefault("PASSWORD_RESET_URL", "http://localhost:3000/reset-password")
	v.SetDefault("RESET_TOKEN_TTL", "1h")

	ttl, err := time.ParseDuration(v.GetString("ACCESS_TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("parsing ACCESS_TOKEN_TTL: %w", err)
	}

	resetTTL, err := time.ParseDuration(v.GetString("RESET_TOKEN_TTL"))
	if err != nil {
		return nil, fmt.Errorf("parsing RESET_TOKEN_TTL: %w", err)
	}

	loc, err := time.LoadLocation(v.GetString("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("loading TIMEZONE: %w", err)
	}

	driver := strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER")))
	if driver != "mongo" && driver != "memory" {
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", driver)
	}

	cfg := &Config{
		Port:           strings.TrimPrefix(strings.TrimSpace(v.GetString("PORT")), ":"),
		StoreDriver:    driver,
		MongoURI:       v.GetString("MONGO_URI"),
		DBName:         v.GetString("DB_NAME"),
		UseTransaction: v.GetBool("MONGO_TRANSACTIONS"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		AccessTokenTTL: ttl,
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		AuthRateLimit:  v.GetString("AUTH_RATE_LIMIT"),
		Location:       loc,
		Log: LogConfig{
			Level:    v.GetString("LOG_LEVEL"),
			Encoding: v.GetString("LOG_ENCODING"),
		},
		Mail: MailConfig{
			AdminEmail: strings.TrimSpace(v.GetString("ADMIN_EMAIL")),
			SMTPHost:   v.GetString("SMTP_HOST"),
			SMTPPort:   v.GetInt("SMTP_PORT"),
			User:       v.GetString("EMAIL_USER"),
			Password:   v.GetString("EMAIL_PASSWORD"),
			FromName:   v.GetString("MAIL_FROM_NAME"),
		},
		Notify: NotifyConfig{
			QueueSize:   positive(v.GetInt("NOTIFY_QUEUE_SIZE"), 256),
			Workers:     positive(v.GetInt("NOTIFY_WORKERS"), 2),
			MaxAttempts: positive(v.GetInt("NOTIFY_MAX_ATTEMPTS"), 3),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			Channel:  v.GetString("REDIS_CHANNEL"),
		},
		Scheduler: SchedulerConfig{
			Enabled: v.GetBool("SCHEDULER_ENABLED"),
			Daily:   v.GetString("CRON_DAILY"),
			Weekly:  v.GetString("CRON_WEEKLY"),
		},
		Google: GoogleConfig{
			ClientID: strings.TrimSpace(v.GetString("GOOGLE_CLIENT_ID")),
			CertsURL: v.GetString("GOOGLE_CERTS_URL"),
		},
		PasswordReset: PasswordResetConfig{
			URL:      strings.TrimSpace(v.GetString("PASSWORD_RESET_URL")),
			TokenTTL: resetTTL,
		},
		EnvFileErr: loadErr,
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func positive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
