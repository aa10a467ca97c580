// Package domain holds the finance records shared by the store, session and router.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for transaction dates.
const DateLayout = "2006-01-02"

type AccountType string

const (
	AccountBank   AccountType = "bank"
	AccountCash   AccountType = "cash"
	AccountCredit AccountType = "credit"
)

// AllowsNegative reports whether an account of this type may hold debt.
func (t AccountType) AllowsNegative() bool {
	return t == AccountCredit
}

// Emoji returns the icon shown next to accounts of this type.
func (t AccountType) Emoji() string {
	switch t {
	case AccountBank:
		return "🏦"
	case AccountCash:
		return "💵"
	case AccountCredit:
		return "💳"
	default:
		return "💰"
	}
}

// ParseAccountType recognises English and Arabic account type keywords.
func ParseAccountType(input string) (AccountType, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	switch {
	case strings.Contains(s, "bank"), strings.Contains(s, "بنك"):
		return AccountBank, true
	case strings.Contains(s, "cash"), strings.Contains(s, "نقد"):
		return AccountCash, true
	case strings.Contains(s, "credit"), strings.Contains(s, "ائتمان"), strings.Contains(s, "إئتمان"):
		return AccountCredit, true
	}
	return "", false
}

type TxType string

const (
	Expense TxType = "expense"
	Income  TxType = "income"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	return t == Expense || t == Income
}

// Signed returns amount with the sign it applies to a balance.
func (t TxType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

type User struct {
	ID         string
	TelegramID int64
	Username   string
	FirstName  string
	Language   string
	CreatedAt  time.Time
}

type Account struct {
	ID        string
	UserID    string
	Name      string
	Type      AccountType
	Balance   decimal.Decimal
	Currency  string
	IsDefault bool
	CreatedAt time.Time
}

type Transaction struct {
	ID          string
	UserID      string
	AccountID   string
	Type        TxType
	Amount      decimal.Decimal
	Description string
	Category    string
	Currency    string
	Date        string
	DraftID     string
	CreatedAt   time.Time
}

// Draft is a fully formed transaction waiting for the user's confirmation.
type Draft struct {
	ID          string          `json:"id"`
	UserID      string          `json:"uid"`
	Type        TxType          `json:"t"`
	Amount      decimal.Decimal `json:"amt"`
	Description string          `json:"desc"`
	Category    string          `json:"cat"`
	AccountID   string          `json:"acc"`
	AccountName string          `json:"accn"`
	Currency    string          `json:"cur"`
	Date        string          `json:"date"`
	CreatedAt   time.Time       `json:"at"`
}

// Equal compares drafts by value.
func (d Draft) Equal(o Draft) bool {
	return d.ID == o.ID &&
		d.UserID == o.UserID &&
		d.Type == o.Type &&
		d.Amount.Equal(o.Amount) &&
		d.Description == o.Description &&
		d.Category == o.Category &&
		d.AccountID == o.AccountID &&
		d.AccountName == o.AccountName &&
		d.Currency == o.Currency &&
		d.Date == o.Date &&
		d.CreatedAt.Equal(o.CreatedAt)
}

// DefaultAccount returns the account flagged default, else the oldest one.
func DefaultAccount(accounts []Account) (Account, bool) {
	if len(accounts) == 0 {
		return Account{}, false
	}
	for _, a := range accounts {
		if a.IsDefault {
			return a, true
		}
	}
	oldest := accounts[0]
	for _, a := range accounts[1:] {
		if a.CreatedAt.Before(oldest.CreatedAt) {
			oldest = a
		}
	}
	return oldest, true
}

// FindAccount matches an account by id or case-insensitive name.
func FindAccount(accounts []Account, ref string) (Account, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Account{}, false
	}
	for _, a := range accounts {
		if a.ID == ref || strings.EqualFold(a.Name, ref) {
			return a, true
		}
	}
	return Account{}, false
}

// FormatMoney renders an amount with two decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
