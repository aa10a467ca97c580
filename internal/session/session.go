// Package session keeps per-user conversational state: the account-creation
// wizard and the transaction waiting for confirmation. A user has at most one
// active session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/domain"
)

// IdleTTL bounds how long an untouched session survives in a store.
const IdleTTL = 24 * time.Hour

var (
	ErrNoSession   = errors.New("no active session")
	ErrInvalidStep = errors.New("invalid wizard step")
)

// Session is either *AccountCreation or *PendingConfirmation.
type Session interface {
	kind() string
}

type Step string

const (
	StepAwaitingType    Step = "awaiting_type"
	StepAwaitingName    Step = "awaiting_name"
	StepAwaitingBalance Step = "awaiting_balance"
)

// AccountCreation is the wizard state. Fields fill in step order.
type AccountCreation struct {
	Step    Step               `json:"step"`
	Type    domain.AccountType `json:"type,omitempty"`
	Name    string             `json:"name,omitempty"`
	Balance *decimal.Decimal   `json:"balance,omitempty"`
}

func (*AccountCreation) kind() string { return kindAccountCreation }

func (a *AccountCreation) valid() bool {
	switch a.Step {
	case StepAwaitingType:
		return true
	case StepAwaitingName:
		return a.Type != ""
	case StepAwaitingBalance:
		return a.Type != "" && a.Name != ""
	}
	return false
}

// PendingConfirmation holds a draft transaction and its signed callback token.
type PendingConfirmation struct {
	Draft     domain.Draft `json:"draft"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (*PendingConfirmation) kind() string { return kindPending }

// Expired reports whether the confirmation window has passed at now.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

const (
	kindAccountCreation = "account_creation"
	kindPending         = "pending_confirmation"
)

// UpdateFunc receives the current session (nil when absent) and returns its
// replacement. Returning nil clears the session.
type UpdateFunc func(current Session) (Session, error)

// Store is a keyed session store. Update is atomic per key.
type Store interface {
	Get(ctx context.Context, userID string) (Session, error)
	Set(ctx context.Context, userID string, s Session) error
	Clear(ctx context.Context, userID string) error
	Update(ctx context.Context, userID string, fn UpdateFunc) (Session, error)
}

type record struct {
	Kind            string               `json:"kind"`
	AccountCreation *AccountCreation     `json:"account_creation,omitempty"`
	Pending         *PendingConfirmation `json:"pending,omitempty"`
}

func encode(s Session) ([]byte, error) {
	var rec record
	switch v := s.(type) {
	case *AccountCreation:
		rec = record{Kind: kindAccountCreation, AccountCreation: v}
	case *PendingConfirmation:
		rec = record{Kind: kindPending, Pending: v}
	default:
		return nil, fmt.Errorf("unknown session type %T", s)
	}
	return json.Marshal(rec)
}

func decode(raw []byte) (Session, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	switch rec.Kind {
	case kindAccountCreation:
		if rec.AccountCreation != nil {
			return rec.AccountCreation, nil
		}
	case kindPending:
		if rec.Pending != nil {
			return rec.Pending, nil
		}
	}
	return nil, fmt.Errorf("decode session: unknown kind %q", rec.Kind)
}

// clone returns a deep copy so callers never share a stored value.
func clone(s Session) Session {
	switch v := s.(type) {
	case *AccountCreation:
		c := *v
		if v.Balance != nil {
			b := *v.Balance
			c.Balance = &b
		}
		return &c
	case *PendingConfirmation:
		c := *v
		return &c
	}
	return nil
}
