// Package repo is the persistent store for users, accounts, transactions and
// conversation history.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/apperr"
	"finbot/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("record belongs to another user")
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the data-store contract consumed by the conversation engine.
type Store interface {
	CreateOrGetUser(ctx context.Context, profile UserProfile) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, telegramID int64) (*domain.User, error)

	CreateAccount(ctx context.Context, in NewAccount) (*domain.Account, error)
	GetUserAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	SetDefaultAccount(ctx context.Context, userID, accountID string) error

	// CreateTransaction inserts the transaction and applies it to the account
	// balance atomically. It returns the updated account.
	CreateTransaction(ctx context.Context, in NewTransaction) (*domain.Transaction, *domain.Account, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
	SearchTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)

	InsertMessage(ctx context.Context, msg MessageRecord) error
	RecentMessages(ctx context.Context, userID string, limit int) ([]MessageRecord, error)

	Close() error
}

// UserProfile is what the chat platform tells us about a user.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
	Language   string
}

type NewAccount struct {
	UserID   string
	Name     string
	Type     domain.AccountType
	Balance  decimal.Decimal
	Currency string
}

type NewTransaction struct {
	UserID      string
	AccountID   string
	Type        domain.TxType
	Amount      decimal.Decimal
	Description string
	Category    string
	Currency    string
	Date        string
	// DraftID makes the insert idempotent. Empty means no idempotency key.
	DraftID string
}

// TransactionFilter narrows SearchTransactions. Zero values do not filter.
type TransactionFilter struct {
	UserID    string
	AccountID string
	Type      domain.TxType
	Category  string
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	// FromDate and ToDate are inclusive YYYY-MM-DD bounds.
	FromDate string
	ToDate   string
	Limit    int
}

// MessageRecord is one line of conversation history.
type MessageRecord struct {
	UserID    string
	Direction string
	Type      string
	Content   string
	Intent    string
	CreatedAt time.Time
}

const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ToAppError maps store failures onto domain error codes.
func ToAppError(err error) *apperr.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperr.New(apperr.CodeNotFound, err)
	case errors.Is(err, ErrForbidden):
		return apperr.New(apperr.CodeForbidden, err)
	case errors.Is(err, ErrDuplicate):
		return apperr.New(apperr.CodeConflict, err)
	default:
		return apperr.FromError(err)
	}
}

func validateNewAccount(in NewAccount) error {
	name := strings.TrimSpace(in.Name)
	if in.UserID == "" || name == "" || len([]rune(name)) > 50 {
		return apperr.New(apperr.CodeInvalidInput, errors.New("invalid account name"))
	}
	switch in.Type {
	case domain.AccountBank, domain.AccountCash, domain.AccountCredit:
	default:
		return apperr.New(apperr.CodeInvalidInput, errors.New("invalid account type"))
	}
	if in.Balance.IsNegative() && !in.Type.AllowsNegative() {
		return apperr.New(apperr.CodeInvalidInput, errors.New("negative balance"))
	}
	return nil
}

func validateNewTransaction(in NewTransaction) error {
	if in.UserID == "" || in.AccountID == "" {
		return apperr.New(apperr.CodeInvalidInput, errors.New("missing user or account"))
	}
	if !in.Type.Valid() {
		return apperr.New(apperr.CodeInvalidInput, errors.New("invalid transaction type"))
	}
	if !in.Amount.IsPositive() {
		return apperr.New(apperr.CodeInvalidInput, errors.New("amount must be positive"))
	}
	return nil
}

func matchesAmount(f TransactionFilter, amount decimal.Decimal) bool {
	if f.MinAmount != nil && amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	return true
}

func txDate(date string, now time.Time) string {
	if _, err := time.Parse(domain.DateLayout, date); err == nil {
		return date
	}
	return now.UTC().Format(domain.DateLayout)
}
