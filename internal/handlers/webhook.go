// Package handlers serves the Telegram webhook and hands validated updates to
// the per-user dispatcher.
package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"finbot/internal/convo"
	"finbot/internal/logging"
	"finbot/internal/metrics"
	"finbot/internal/telegram"
)

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Submitter queues a normalized event for processing.
type Submitter interface {
	Submit(traceID string, ev convo.Event) error
}

// WebhookConfig configures request validation.
type WebhookConfig struct {
	Secret  string
	MaxBody int64
	MaxAge  time.Duration
}

// Webhook validates Telegram updates and acknowledges them immediately. The
// response never depends on how processing turns out.
type Webhook struct {
	cfg        WebhookConfig
	dedupe     Deduper
	dispatcher Submitter
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewWebhook(cfg WebhookConfig, dedupe Deduper, dispatcher Submitter, m *metrics.Metrics, logger *slog.Logger) *Webhook {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	return &Webhook{
		cfg:        cfg,
		dedupe:     dedupe,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With("component", "webhook"),
		now:        time.Now,
	}
}

// Ingestion outcomes reported on the WebhookUpdates metric.
const (
	outcomeAccepted  = "accepted"
	outcomeIgnored   = "ignored"
	outcomeStale     = "stale"
	outcomeDuplicate = "duplicate"
	outcomeDropped   = "dropped"
	outcomeRejected  = "rejected"
)

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := h.now()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reject(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		h.reject(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	if h.cfg.Secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.Secret)) != 1 {
			h.logger.Warn("webhook secret mismatch", "remote_addr", r.RemoteAddr)
			h.reject(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBody+1))
	if err != nil {
		h.reject(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.cfg.MaxBody {
		h.reject(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.reject(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if update.UpdateID <= 0 {
		h.reject(w, http.StatusBadRequest, "missing update_id")
		return
	}

	traceID := logging.NewTraceID()
	ctx := logging.WithTraceID(r.Context(), traceID)
	logger := logging.WithTrace(ctx, h.logger).With("update_id", update.UpdateID)

	ev := Normalize(update, start)
	outcome := outcomeAccepted
	switch {
	case ev.Kind == convo.KindUnknown:
		outcome = outcomeIgnored
		logger.Debug("ignoring unsupported update")
	case ev.Kind == convo.KindMessage && start.Sub(ev.Timestamp) > h.cfg.MaxAge:
		outcome = outcomeStale
		logger.Info("ignoring stale update", "age", start.Sub(ev.Timestamp).Round(time.Second))
	default:
		first, err := h.dedupe.First(ctx, dedupeKey(update.UpdateID))
		if err != nil {
			// fail open
			logger.Warn("dedupe check failed", "error", err)
			first = true
		}
		if !first {
			outcome = outcomeDuplicate
			logger.Info("duplicate update")
			break
		}
		if err := h.dispatcher.Submit(traceID, ev); err != nil {
			outcome = outcomeDropped
			logger.Error("failed to queue update", "error", err, "user_id", ev.UserID)
			if h.metrics != nil {
				h.metrics.Errors.WithLabelValues("webhook").Inc()
			}
		}
	}

	h.count(string(ev.Kind), outcome)
	w.Header().Set("X-Processing-Time", strconv.FormatInt(h.now().Sub(start).Milliseconds(), 10)+"ms")
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Webhook) reject(w http.ResponseWriter, status int, message string) {
	h.count(string(convo.KindUnknown), outcomeRejected)
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Webhook) count(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookUpdates.WithLabelValues(kind, outcome).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
