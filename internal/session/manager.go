package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/domain"
)

// Manager offers typed operations over a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager whose confirmations expire after ttl.
func NewManager(store Store, ttl time.Duration) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL is the confirmation window.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the live session, evicting an expired confirmation.
func (m *Manager) Get(ctx context.Context, userID string) (Session, error) {
	s, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p, ok := s.(*PendingConfirmation); ok && p.Expired(m.now()) {
		if err := m.evictExpired(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s, nil
}

// Clear drops whatever session the user has.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	return m.store.Clear(ctx, userID)
}

// StartAccountCreation replaces any session with a fresh wizard.
func (m *Manager) StartAccountCreation(ctx context.Context, userID string) (*AccountCreation, error) {
	ac := &AccountCreation{Step: StepAwaitingType}
	if err := m.store.Set(ctx, userID, ac); err != nil {
		return nil, err
	}
	return ac, nil
}

// AccountUpdate carries the field collected at one wizard step.
type AccountUpdate struct {
	Type    domain.AccountType
	Name    string
	Balance *decimal.Decimal
}

// AdvanceAccountCreation merges upd into the wizard and moves to the next
// step. It fails with ErrInvalidStep if upd supplies a field the current step
// does not collect, and ErrNoSession if no wizard is active.
func (m *Manager) AdvanceAccountCreation(ctx context.Context, userID string, upd AccountUpdate) (*AccountCreation, error) {
	s, err := m.store.Update(ctx, userID, func(cur Session) (Session, error) {
		ac, ok := cur.(*AccountCreation)
		if !ok {
			return cur, ErrNoSession
		}
		next := *ac
		switch ac.Step {
		case StepAwaitingType:
			if upd.Type == "" {
				return cur, ErrInvalidStep
			}
			next.Type = upd.Type
			next.Step = StepAwaitingName
		case StepAwaitingName:
			if upd.Name == "" {
				return cur, ErrInvalidStep
			}
			next.Name = upd.Name
			next.Step = StepAwaitingBalance
		case StepAwaitingBalance:
			if upd.Balance == nil {
				return cur, ErrInvalidStep
			}
			b := *upd.Balance
			next.Balance = &b
		}
		if !next.valid() {
			return cur, ErrInvalidStep
		}
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	return s.(*AccountCreation), nil
}

// GetAccountCreation returns the active wizard, if any.
func (m *Manager) GetAccountCreation(ctx context.Context, userID string) (*AccountCreation, error) {
	s, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ac, _ := s.(*AccountCreation)
	return ac, nil
}

// SetPendingConfirmation replaces the user's session with a pending draft
// that expires after the manager TTL.
func (m *Manager) SetPendingConfirmation(ctx context.Context, userID string, draft domain.Draft, token string) (*PendingConfirmation, error) {
	p := &PendingConfirmation{
		Draft:     draft,
		Token:     token,
		ExpiresAt: m.now().Add(m.ttl),
	}
	if err := m.store.Set(ctx, userID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPendingConfirmation returns the live pending draft. An expired one is
// cleared and reported as absent.
func (m *Manager) GetPendingConfirmation(ctx context.Context, userID string) (*PendingConfirmation, error) {
	s, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, _ := s.(*PendingConfirmation)
	return p, nil
}

// TakePendingConfirmation atomically removes and returns the pending draft
// with the given id. It returns nil when there is no live draft with that id;
// a different pending draft is left in place.
func (m *Manager) TakePendingConfirmation(ctx context.Context, userID, draftID string) (*PendingConfirmation, error) {
	var taken *PendingConfirmation
	_, err := m.store.Update(ctx, userID, func(cur Session) (Session, error) {
		p, ok := cur.(*PendingConfirmation)
		if !ok {
			return cur, nil
		}
		if p.Expired(m.now()) {
			return nil, nil
		}
		if p.Draft.ID != draftID {
			return cur, nil
		}
		taken = p
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// ClearPendingConfirmation drops the pending draft. A wizard is left alone.
func (m *Manager) ClearPendingConfirmation(ctx context.Context, userID string) error {
	_, err := m.store.Update(ctx, userID, func(cur Session) (Session, error) {
		if _, ok := cur.(*PendingConfirmation); ok {
			return nil, nil
		}
		return cur, nil
	})
	return err
}

func (m *Manager) evictExpired(ctx context.Context, userID string) error {
	_, err := m.store.Update(ctx, userID, func(cur Session) (Session, error) {
		if p, ok := cur.(*PendingConfirmation); ok && p.Expired(m.now()) {
			return nil, nil
		}
		return cur, nil
	})
	return err
}
