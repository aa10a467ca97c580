package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finbot/internal/cache"
	"finbot/internal/config"
	"finbot/internal/confirm"
	"finbot/internal/convo"
	"finbot/internal/handlers"
	"finbot/internal/logging"
	"finbot/internal/metrics"
	"finbot/internal/nlu"
	"finbot/internal/repo"
	"finbot/internal/session"
	"finbot/internal/telegram"
)

const shutdownTimeout = 10 * time.Second

func main() {
	setWebhook := flag.Bool("set-webhook", false, "register PUBLIC_BASE_URL+WEBHOOK_PATH with Telegram and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *setWebhook); err != nil {
		logger.Error("finbot stopped", "error", logging.Redact(err.Error(), cfg.TelegramBotToken, cfg.NLUAPIKey))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, setWebhook bool) error {
	m := metrics.New(cfg.MetricsNamespace, nil)
	tg := telegram.New(telegram.Config{
		BaseURL: cfg.TelegramAPIBase,
		Token:   cfg.TelegramBotToken,
		Timeout: cfg.TelegramTimeout,
	}, logger, m)

	if setWebhook {
		url := cfg.WebhookURL()
		if url == "" {
			return errors.New("PUBLIC_BASE_URL is required for -set-webhook")
		}
		if err := tg.SetWebhook(ctx, url, cfg.TelegramWebhookSecret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		logger.Info("webhook registered", "url", url)
		return nil
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		sessionStore session.Store
		ledger       confirm.Ledger
		limiter      nlu.Limiter
		deduper      handlers.Deduper
	)
	if cfg.RedisAddr != "" {
		rdb, err := cache.New(ctx, cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TLS:      cfg.RedisTLS,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb.Client(), session.IdleTTL)
		ledger = confirm.NewRedisLedger(rdb)
		limiter = nlu.NewRedisLimiter(rdb, cfg.ClassifyRateLimit, cfg.ClassifyRateWindow)
		deduper = handlers.NewRedisDeduper(rdb, handlers.DedupeTTL)
		logger.Info("using redis for sessions and dedupe", "addr", cfg.RedisAddr)
	} else {
		sessionStore = session.NewMemoryStore(session.IdleTTL)
		ledger = confirm.NewMemoryLedger()
		limiter = nlu.NewMemoryLimiter(cfg.ClassifyRateLimit, cfg.ClassifyRateWindow)
		deduper = handlers.NewMemoryDeduper(handlers.DedupeTTL)
		logger.Warn("REDIS_ADDR not set, keeping sessions in memory")
	}

	catalog, err := nlu.LoadCatalog()
	if err != nil {
		return fmt.Errorf("load function catalog: %w", err)
	}
	classifier := nlu.New(nlu.Config{
		BaseURL:     cfg.NLUBaseURL,
		Endpoint:    cfg.NLUEndpoint,
		APIKey:      cfg.NLUAPIKey,
		Timeout:     cfg.NLUTimeout,
		MaxRetries:  cfg.NLUMaxRetries,
		Backoff:     cfg.NLUBackoff,
		MaxBackoff:  cfg.NLUMaxBackoff,
		Temperature: cfg.NLUTemperature,
		MaxTokens:   cfg.NLUMaxTokens,
	}, m, logger)

	engine := convo.New(convo.Options{
		Store:       store,
		Sessions:    session.NewManager(sessionStore, cfg.SessionTTL),
		Classifier:  classifier,
		Catalog:     catalog,
		Limiter:     limiter,
		Codec:       confirm.NewCodec(cfg.ConfirmSecret),
		Ledger:      ledger,
		Sender:      tg,
		Metrics:     m,
		Logger:      logger,
		Currency:    cfg.DefaultCurrency,
		Temperature: cfg.NLUTemperature,
		MaxTokens:   cfg.NLUMaxTokens,
	})

	// a job covers every classifier attempt plus the store and send calls
	jobTimeout := time.Duration(cfg.NLUMaxRetries)*(cfg.NLUTimeout+cfg.NLUMaxBackoff) + 30*time.Second
	dispatcher := handlers.NewDispatcher(engine, handlers.DispatcherConfig{JobTimeout: jobTimeout}, m, logger)
	webhook := handlers.NewWebhook(handlers.WebhookConfig{
		Secret:  cfg.TelegramWebhookSecret,
		MaxBody: cfg.WebhookMaxBody,
		MaxAge:  cfg.UpdateMaxAge,
	}, deduper, dispatcher, m, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           handlers.NewRouter(cfg.WebhookPath, webhook, m, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPListenAddr, "webhook_path", cfg.WebhookPath, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("dispatcher drain incomplete", "error", err)
	}
	logger.Info("finbot stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := repo.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	default:
		s, err := repo.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil
	}
}
