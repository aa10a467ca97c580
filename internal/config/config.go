package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const placeholderAPIKey = "your-api-key-here"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	LogLevel       string
	LogFormat      string
	HTTPListenAddr string

	TelegramBotToken      string
	TelegramAPIBase       string
	TelegramWebhookSecret string
	TelegramTimeout       time.Duration
	PublicBaseURL         string
	WebhookPath           string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	NLUBaseURL     string
	NLUEndpoint    string
	NLUAPIKey      string
	NLUTimeout     time.Duration
	NLUMaxRetries  int
	NLUBackoff     time.Duration
	NLUMaxBackoff  time.Duration
	NLUTemperature float64
	NLUMaxTokens   int

	SessionTTL         time.Duration
	UpdateMaxAge       time.Duration
	WebhookMaxBody     int64
	ConfirmSecret      string
	DefaultCurrency    string
	MetricsNamespace   string
	ClassifyRateLimit  int
	ClassifyRateWindow time.Duration
}

// Load returns configuration populated from environment variables with fallbacks.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:                getenvDefault("APP_ENV", "development"),
		LogLevel:              getenvDefault("LOG_LEVEL", "info"),
		LogFormat:             getenvDefault("LOG_FORMAT", "text"),
		HTTPListenAddr:        getenvDefault("HTTP_LISTEN_ADDR", ":8080"),
		TelegramBotToken:      trimmedEnv("TELEGRAM_BOT_TOKEN"),
		TelegramAPIBase:       getenvDefault("TELEGRAM_API_BASE", "https://api.telegram.org"),
		TelegramWebhookSecret: trimmedEnv("TELEGRAM_WEBHOOK_SECRET"),
		PublicBaseURL:         getenvDefault("PUBLIC_BASE_URL", ""),
		WebhookPath:           getenvDefault("WEBHOOK_PATH", "/telegram/webhook"),
		StoreDriver:           strings.ToLower(getenvDefault("STORE_DRIVER", "postgres")),
		DatabaseURL:           trimmedEnv("DATABASE_URL"),
		SQLitePath:            getenvDefault("SQLITE_PATH", "data/finbot.db"),
		RedisAddr:             trimmedEnv("REDIS_ADDR"),
		RedisPassword:         trimmedEnv("REDIS_PASSWORD"),
		NLUBaseURL:            getenvDefault("NLU_BASE_URL", "https://toolkit.rork.com"),
		NLUEndpoint:           getenvDefault("NLU_ENDPOINT", "/text/llm/"),
		NLUAPIKey:             trimmedEnv("NLU_API_KEY"),
		ConfirmSecret:         trimmedEnv("CONFIRM_SECRET"),
		DefaultCurrency:       strings.ToUpper(getenvDefault("DEFAULT_CURRENCY", "EGP")),
		MetricsNamespace:      getenvDefault("METRICS_NAMESPACE", "finbot"),
	}

	var err error
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"TELEGRAM_TIMEOUT", "10s", &cfg.TelegramTimeout},
		{"NLU_TIMEOUT", "5s", &cfg.NLUTimeout},
		{"NLU_BACKOFF", "1s", &cfg.NLUBackoff},
		{"NLU_MAX_BACKOFF", "30s", &cfg.NLUMaxBackoff},
		{"SESSION_TTL", "5m", &cfg.SessionTTL},
		{"UPDATE_MAX_AGE", "5m", &cfg.UpdateMaxAge},
		{"CLASSIFY_RATE_WINDOW", "1m", &cfg.ClassifyRateWindow},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getenvDefault(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("invalid %s duration: %w", d.key, err)
		}
		if *d.dst <= 0 {
			return nil, fmt.Errorf("invalid %s duration: must be positive", d.key)
		}
	}

	if cfg.NLUMaxRetries, err = strconv.Atoi(getenvDefault("NLU_MAX_RETRIES", "3")); err != nil {
		return nil, fmt.Errorf("invalid NLU_MAX_RETRIES value: %w", err)
	}
	if cfg.NLUMaxRetries < 1 {
		cfg.NLUMaxRetries = 1
	}

	if cfg.NLUMaxTokens, err = strconv.Atoi(getenvDefault("NLU_MAX_TOKENS", "1000")); err != nil {
		return nil, fmt.Errorf("invalid NLU_MAX_TOKENS value: %w", err)
	}

	if cfg.NLUTemperature, err = strconv.ParseFloat(getenvDefault("NLU_TEMPERATURE", "0.7"), 64); err != nil {
		return nil, fmt.Errorf("invalid NLU_TEMPERATURE value: %w", err)
	}

	if cfg.ClassifyRateLimit, err = strconv.Atoi(getenvDefault("CLASSIFY_RATE_LIMIT", "30")); err != nil {
		return nil, fmt.Errorf("invalid CLASSIFY_RATE_LIMIT value: %w", err)
	}

	if cfg.WebhookMaxBody, err = strconv.ParseInt(getenvDefault("WEBHOOK_MAX_BODY", "1048576"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_MAX_BODY value: %w", err)
	}
	if cfg.WebhookMaxBody <= 0 {
		return nil, fmt.Errorf("invalid WEBHOOK_MAX_BODY value: must be positive")
	}

	if redisDBStr := getenvDefault("REDIS_DB", "0"); redisDBStr != "" {
		db, convErr := strconv.Atoi(redisDBStr)
		if convErr != nil {
			return nil, fmt.Errorf("invalid REDIS_DB value: %w", convErr)
		}
		cfg.RedisDB = db
	}

	cfg.RedisTLS = strings.EqualFold(getenvDefault("REDIS_TLS", "false"), "true")

	if cfg.NLUAPIKey == placeholderAPIKey {
		cfg.NLUAPIKey = ""
	}

	if cfg.PublicBaseURL != "" {
		if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
			return nil, fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
		}
		cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		cfg.WebhookPath = "/" + cfg.WebhookPath
	}

	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want postgres or sqlite", cfg.StoreDriver)
	}

	if cfg.ConfirmSecret == "" {
		sum := sha256.Sum256([]byte("finbot-confirm:" + cfg.TelegramBotToken))
		cfg.ConfirmSecret = hex.EncodeToString(sum[:])
	}

	cfg.TelegramAPIBase = strings.TrimRight(cfg.TelegramAPIBase, "/")
	cfg.NLUBaseURL = strings.TrimRight(cfg.NLUBaseURL, "/")

	return cfg, nil
}

// WebhookURL is the public URL Telegram should post updates to.
func (c *Config) WebhookURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + c.WebhookPath
}

func getenvDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func trimmedEnv(key string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return ""
}
