package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "postgres://localhost/finbot")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPListenAddr)
	require.Equal(t, "postgres", cfg.StoreDriver)
	require.Equal(t, 5*time.Second, cfg.NLUTimeout)
	require.Equal(t, 3, cfg.NLUMaxRetries)
	require.Equal(t, time.Second, cfg.NLUBackoff)
	require.Equal(t, 5*time.Minute, cfg.SessionTTL)
	require.Equal(t, 5*time.Minute, cfg.UpdateMaxAge)
	require.Equal(t, int64(1<<20), cfg.WebhookMaxBody)
	require.Equal(t, "EGP", cfg.DefaultCurrency)
	require.NotEmpty(t, cfg.ConfirmSecret)
	require.Empty(t, cfg.WebhookURL())
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/finbot")

	_, err := Load()
	require.ErrorContains(t, err, "TELEGRAM_BOT_TOKEN is required")
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL is required")
}

func TestLoad_SQLiteDriver(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "/tmp/x.db", cfg.SQLitePath)
}

func TestLoad_InvalidDuration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NLU_TIMEOUT", "soon")

	_, err := Load()
	require.ErrorContains(t, err, "invalid NLU_TIMEOUT duration")
}

func TestLoad_PlaceholderAPIKeyIsIgnored(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("NLU_API_KEY", "your-api-key-here")

	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.NLUAPIKey)
}

func TestLoad_WebhookURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://bot.example.com/")
	t.Setenv("WEBHOOK_PATH", "hook")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://bot.example.com/hook", cfg.WebhookURL())
}
