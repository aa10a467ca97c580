package nlu

import (
	"errors"
	"fmt"
	"time"

	"finbot/internal/i18n"
)

// Kind classifies a classifier failure.
type Kind string

const (
	KindRateLimited       Kind = "rate_limited"
	KindServerUnavailable Kind = "server_unavailable"
	KindTimeout           Kind = "timeout"
	KindNetworkError      Kind = "network_error"
	KindClientRejected    Kind = "client_rejected"
	KindInvalidResponse   Kind = "invalid_response"
	KindRetriesExhausted  Kind = "retries_exhausted"
)

var kindMessages = map[Kind]i18n.Text{
	KindRateLimited:       i18n.RateLimited,
	KindServerUnavailable: i18n.ServerUnavailable,
	KindTimeout:           i18n.Timeout,
	KindNetworkError:      i18n.NetworkError,
	KindClientRejected:    i18n.ClientRejected,
	KindInvalidResponse:   i18n.InvalidResponse,
	KindRetriesExhausted:  i18n.RetriesExhausted,
}

// Failure is the error type returned by the classifier client and parser.
type Failure struct {
	Kind   Kind
	Status int
	Err    error

	retryAfter time.Duration
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("classifier %s (status %d): %v", f.Kind, f.Status, f.Err)
	}
	return fmt.Sprintf("classifier %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// RetryAfter reports the server's 429 wait hint.
func (f *Failure) RetryAfter() (time.Duration, bool) {
	return f.retryAfter, f.retryAfter > 0
}

// Retryable reports whether another attempt may succeed.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindRateLimited, KindServerUnavailable, KindTimeout, KindNetworkError:
		return true
	}
	return false
}

// Message is the user-facing text for the failure.
func (f *Failure) Message() i18n.Text {
	if t, ok := kindMessages[f.Kind]; ok {
		return t
	}
	return i18n.ServerUnavailable
}

// KindOf returns the failure kind carried by err, or "" when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// MessageFor maps any classifier error onto a user-facing message.
func MessageFor(err error) i18n.Text {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message()
	}
	return i18n.ServerUnavailable
}
