// Package apperr maps failures to a small set of domain codes with bilingual messages.
package apperr

import (
	"errors"
	"fmt"

	"finbot/internal/i18n"
)

type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL_ERROR"
)

var defaultMessages = map[Code]i18n.Text{
	CodeNotFound:     i18n.NotFound,
	CodeForbidden:    i18n.Forbidden,
	CodeInvalidInput: i18n.InvalidInput,
	CodeConflict:     i18n.Conflict,
	CodeInternal:     i18n.InternalError,
}

// Error is a domain failure that is safe to show to the user via Message.
type Error struct {
	Code    Code
	Message i18n.Text
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("apperr: %s", e.Code)
	}
	return fmt.Sprintf("apperr: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an Error with the default message for code.
func New(code Code, err error) *Error {
	return &Error{Code: code, Message: MessageFor(code), Err: err}
}

// Wrap returns an Error with a custom message.
func Wrap(code Code, msg i18n.Text, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return New(CodeInternal, err)
}

// MessageFor returns the default message for code.
func MessageFor(code Code) i18n.Text {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return i18n.InternalError
}

// FromError returns err as an *Error, wrapping unknown failures as internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// CodeOf returns the domain code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	if e := FromError(err); e != nil {
		return e.Code
	}
	return ""
}
