// Package nlu talks to the language-model service that classifies user
// messages into finance intents, and parses its replies.
package nlu

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
	"finbot/internal/retry"
)

const maxResponseBody = 1 << 20

// Config holds classifier client settings.
type Config struct {
	BaseURL     string
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	Temperature float64
	MaxTokens   int
}

// Client calls the model endpoint with per-attempt timeouts and retries.
type Client struct {
	httpClient *http.Client
	cfg        Config
	url        string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a classifier client.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		url:        strings.TrimRight(cfg.BaseURL, "/") + cfg.Endpoint,
		metrics:    m,
		logger:     logger.With("component", "nlu"),
	}
}

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one classification call.
type Request struct {
	Message      string
	SystemPrompt string
	History      []Message
	Functions    []Function
	// Temperature and MaxTokens override the client defaults when non-zero.
	Temperature float64
	MaxTokens   int
}

// FunctionCall is the structured call chosen by the model. Arguments is the
// raw JSON text.
type FunctionCall struct {
	Name      string
	Arguments string
}

// RawResponse is the model reply before parsing.
type RawResponse struct {
	Content      string
	FunctionCall *FunctionCall
	Usage        *Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type llmRequest struct {
	Messages     []Message  `json:"messages"`
	Temperature  float64    `json:"temperature"`
	MaxTokens    int        `json:"max_tokens"`
	Functions    []Function `json:"functions,omitempty"`
	FunctionCall string     `json:"function_call,omitempty"`
}

// Classify sends req and returns the model reply. Errors are *Failure.
func (c *Client) Classify(ctx context.Context, req Request) (*RawResponse, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, &Failure{Kind: KindInvalidResponse, Err: fmt.Errorf("marshal request: %w", err)}
	}

	logger := logging.WithTrace(ctx, c.logger)
	var out *RawResponse
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  c.cfg.MaxRetries,
		InitialDelay: c.cfg.Backoff,
		MaxDelay:     c.cfg.MaxBackoff,
		ShouldRetry: func(err error) bool {
			var f *Failure
			return errors.As(err, &f) && f.Retryable()
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.metrics.ClassifierRetries.Inc()
			logger.Warn("classifier attempt failed, retrying",
				"attempt", attempt, "max_attempts", c.cfg.MaxRetries, "wait", wait,
				"error", logging.Redact(err.Error(), c.cfg.APIKey))
		},
	}, func(ctx context.Context) error {
		resp, err := c.attempt(ctx, body)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		c.metrics.ClassifierRequests.WithLabelValues("success").Inc()
		return out, nil
	case errors.As(err, &exhausted):
		c.metrics.ClassifierRequests.WithLabelValues(string(KindRetriesExhausted)).Inc()
		logger.Error("classifier retries exhausted", "attempts", exhausted.Attempts,
			"error", logging.Redact(exhausted.Last.Error(), c.cfg.APIKey))
		return nil, &Failure{Kind: KindRetriesExhausted, Err: err}
	}

	var f *Failure
	if !errors.As(err, &f) {
		// parent context cancelled while waiting
		f = &Failure{Kind: KindTimeout, Err: err}
	}
	c.metrics.ClassifierRequests.WithLabelValues(string(f.Kind)).Inc()
	logger.Error("classifier request failed", "kind", f.Kind, "status", f.Status,
		"error", logging.Redact(f.Error(), c.cfg.APIKey))
	return nil, f
}

func (c *Client) buildRequest(req Request) llmRequest {
	temperature := c.cfg.Temperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens != 0 {
		maxTokens = req.MaxTokens
	}

	messages := make([]Message, 0, len(req.History)+2)
	messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	messages = append(messages, req.History...)
	messages = append(messages, Message{Role: "user", Content: req.Message})

	out := llmRequest{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if len(req.Functions) > 0 {
		out.Functions = req.Functions
		out.FunctionCall = "auto"
	}
	return out
}

func (c *Client) attempt(ctx context.Context, body []byte) (*RawResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &Failure{Kind: KindClientRejected, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ClassifierLatency.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Failure{Kind: KindTimeout, Err: fmt.Errorf("no response within %s: %w", c.cfg.Timeout, err)}
		}
		return nil, &Failure{Kind: KindNetworkError, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.metrics.ClassifierLatency.WithLabelValues(strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &Failure{Kind: KindTimeout, Status: resp.StatusCode, Err: err}
		}
		return nil, &Failure{Kind: KindNetworkError, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Failure{
			Kind:       KindRateLimited,
			Status:     resp.StatusCode,
			Err:        errors.New("rate limited"),
			retryAfter: c.capWait(parseRetryAfter(resp.Header.Get("Retry-After"))),
		}
	case resp.StatusCode >= 500:
		return nil, &Failure{Kind: KindServerUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("server error: %s", snippet(payload))}
	case resp.StatusCode >= 400:
		return nil, &Failure{Kind: KindClientRejected, Status: resp.StatusCode, Err: fmt.Errorf("client error: %s", snippet(payload))}
	}

	out, err := decodeResponse(payload)
	if err != nil {
		return nil, &Failure{Kind: KindInvalidResponse, Status: resp.StatusCode, Err: err}
	}
	return out, nil
}

// decodeResponse accepts the flat toolkit shape and the OpenAI choices shape.
func decodeResponse(payload []byte) (*RawResponse, error) {
	var env struct {
		Completion   json.RawMessage  `json:"completion"`
		Content      json.RawMessage  `json:"content"`
		Message      json.RawMessage  `json:"message"`
		Response     json.RawMessage  `json:"response"`
		FunctionCall *rawFunctionCall `json:"function_call"`
		Choices      []struct {
			Message struct {
				Content      string           `json:"content"`
				FunctionCall *rawFunctionCall `json:"function_call"`
			} `json:"message"`
		} `json:"choices"`
		Usage *Usage `json:"usage"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode response: %w (snippet=%q)", err, snippet(payload))
	}

	out := &RawResponse{Usage: env.Usage}
	for _, candidate := range []json.RawMessage{env.Completion, env.Content, env.Message, env.Response} {
		if s := rawString(candidate); s != "" {
			out.Content = s
			break
		}
	}
	fc := env.FunctionCall
	if len(env.Choices) > 0 {
		if out.Content == "" {
			out.Content = env.Choices[0].Message.Content
		}
		if fc == nil {
			fc = env.Choices[0].Message.FunctionCall
		}
	}
	if fc != nil && fc.Name != "" {
		out.FunctionCall = &FunctionCall{Name: fc.Name, Arguments: fc.arguments()}
	}
	if out.Content == "" && out.FunctionCall == nil {
		return nil, errors.New("response has neither content nor function call")
	}
	return out, nil
}

type rawFunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// arguments returns the JSON text of the call arguments. Some providers send
// a JSON string, others an object.
func (f *rawFunctionCall) arguments() string {
	if len(f.Arguments) == 0 || string(f.Arguments) == "null" {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(f.Arguments, &s); err == nil {
		return s
	}
	return string(f.Arguments)
}

// rawString returns v when it is a JSON string, otherwise "".
func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func (c *Client) capWait(d time.Duration) time.Duration {
	if c.cfg.MaxBackoff > 0 && d > c.cfg.MaxBackoff {
		return c.cfg.MaxBackoff
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
