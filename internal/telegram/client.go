// Package telegram is a small typed client for the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finbot/internal/logging"
	"finbot/internal/metrics"
)

const (
	// MaxMessageRunes is the Bot API limit on message text.
	MaxMessageRunes = 4096

	ParseModeMarkdown = "Markdown"
)

var (
	// ErrUnauthorized indicates Telegram rejected the bot token.
	ErrUnauthorized = errors.New("telegram invalid bot token")
	// ErrFloodWait indicates Telegram asked the bot to slow down.
	ErrFloodWait = errors.New("telegram flood wait")
)

// APIError is a failed Bot API call.
type APIError struct {
	Method      string
	Status      int
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %s (code=%d, retry after %s)", e.Method, e.Description, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %s (code=%d)", e.Method, e.Description, e.Code)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case ErrFloodWait:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

// Client calls the Bot API over HTTPS.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// responseEnvelope mirrors the Bot API response shape.
type responseEnvelope struct {
	OK          bool
	Result      json.RawMessage
	Description string
	ErrorCode   int
	RetryAfter  int
}

func (r *responseEnvelope) UnmarshalJSON(data []byte) error {
	var a struct {
		OK          json.RawMessage `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
		ErrorCode   json.RawMessage `json:"error_code"`
		Parameters  struct {
			RetryAfter json.RawMessage `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	r.Result = a.Result
	r.Description = strings.TrimSpace(a.Description)
	if len(a.OK) != 0 {
		var b bool
		if err := json.Unmarshal(a.OK, &b); err == nil {
			r.OK = b
		} else {
			r.OK = strings.EqualFold(trimQuotes(a.OK), "true")
		}
	}
	r.ErrorCode = rawInt(a.ErrorCode)
	r.RetryAfter = rawInt(a.Parameters.RetryAfter)
	return nil
}

func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "telegram"),
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// SendMessage posts text to a chat. Text longer than the Bot API limit is
// truncated. When Telegram cannot parse the markup the message is resent as
// plain text.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) (*Message, error) {
	payload := map[string]any{
		"chat_id": msg.ChatID,
		"text":    Truncate(msg.Text, MaxMessageRunes),
	}
	if msg.ParseMode != "" {
		payload["parse_mode"] = msg.ParseMode
	}
	if msg.Keyboard != nil {
		payload["reply_markup"] = msg.Keyboard
	}

	var sent Message
	err := c.call(ctx, "sendMessage", payload, &sent)
	if err != nil && msg.ParseMode != "" && isEntityParseError(err) {
		c.logger.Warn("markdown rejected, resending as plain text", "chat_id", msg.ChatID)
		delete(payload, "parse_mode")
		err = c.call(ctx, "sendMessage", payload, &sent)
	}
	if err != nil {
		return nil, err
	}
	return &sent, nil
}

// AnswerCallbackQuery acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = Truncate(text, 200)
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// EditMessageText replaces the text of a sent message and drops its keyboard
// unless one is given.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       Truncate(text, MaxMessageRunes),
		"parse_mode": ParseModeMarkdown,
	}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	err := c.call(ctx, "editMessageText", payload, nil)
	if err != nil && isEntityParseError(err) {
		delete(payload, "parse_mode")
		err = c.call(ctx, "editMessageText", payload, nil)
	}
	return err
}

// SetWebhook registers url for updates. A non-empty secret is echoed back by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

func (c *Client) call(ctx context.Context, method string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "finbot/telegram-client")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.observe(method, "error", start)
		// url.Error carries the request URL, which contains the token
		return fmt.Errorf("telegram %s request: %s", method, logging.Redact(err.Error(), c.token))
	}
	defer res.Body.Close()
	c.observe(method, strconv.Itoa(res.StatusCode), start)

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env responseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if res.StatusCode >= 400 {
			return classifyHTTPError(method, res.StatusCode, responseEnvelope{Description: snippet(raw)})
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if res.StatusCode >= 400 || !env.OK {
		return classifyHTTPError(method, res.StatusCode, env)
	}
	if dest == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, dest); err != nil {
		// answerCallbackQuery and friends return a bare true
		if string(env.Result) == "true" {
			return nil
		}
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.TelegramRequests.WithLabelValues(method, status).Inc()
	c.metrics.TelegramLatency.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

func classifyHTTPError(method string, status int, env responseEnvelope) error {
	code := env.ErrorCode
	if code == 0 {
		code = status
	}
	desc := env.Description
	if desc == "" {
		desc = http.StatusText(code)
	}
	apiErr := &APIError{Method: method, Status: status, Code: code, Description: desc}
	if code == http.StatusTooManyRequests && env.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(env.RetryAfter) * time.Second
	}
	return apiErr
}

func isEntityParseError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Description), "can't parse entities")
}

// Truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func trimQuotes(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func rawInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(trimQuotes(raw))
	return n
}
