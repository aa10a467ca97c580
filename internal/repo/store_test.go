package repo

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finbot/internal/apperr"
	"finbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "finbot.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestUser(t *testing.T, s Store) *domain.User {
	t.Helper()
	u, err := s.CreateOrGetUser(context.Background(), UserProfile{
		TelegramID: int64(uuid.New().ID()),
		Username:   "sara",
		FirstName:  "Sara",
		Language:   "en",
	})
	require.NoError(t, err)
	return u
}

// storeContract exercises behaviour every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("user upsert keeps identity", func(t *testing.T) {
		tgID := int64(uuid.New().ID())
		first, err := s.CreateOrGetUser(ctx, UserProfile{TelegramID: tgID, FirstName: "A", Language: "ar"})
		require.NoError(t, err)
		second, err := s.CreateOrGetUser(ctx, UserProfile{TelegramID: tgID, FirstName: "B", Language: "en"})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "B", second.FirstName)
		require.Equal(t, "ar", second.Language)

		got, err := s.GetUserByExternalID(ctx, tgID)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		_, err = s.GetUserByExternalID(ctx, -1)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("first account becomes default", func(t *testing.T) {
		u := newTestUser(t, s)
		a1, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Balance: decimal.NewFromInt(1000), Currency: "EGP"})
		require.NoError(t, err)
		require.True(t, a1.IsDefault)
		a2, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "Wallet", Type: domain.AccountCash, Balance: decimal.Zero, Currency: "EGP"})
		require.NoError(t, err)
		require.False(t, a2.IsDefault)

		accounts, err := s.GetUserAccounts(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, accounts, 2)
		require.Equal(t, "CIB", accounts[0].Name)
		require.True(t, accounts[0].Balance.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("negative balance only for credit", func(t *testing.T) {
		u := newTestUser(t, s)
		_, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "Cash", Type: domain.AccountCash, Balance: decimal.NewFromInt(-5), Currency: "EGP"})
		require.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

		acc, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "Visa", Type: domain.AccountCredit, Balance: decimal.NewFromInt(-500), Currency: "EGP"})
		require.NoError(t, err)
		require.True(t, acc.Balance.Equal(decimal.NewFromInt(-500)))
	})

	t.Run("set default account", func(t *testing.T) {
		u := newTestUser(t, s)
		other := newTestUser(t, s)
		a1, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Currency: "EGP"})
		require.NoError(t, err)
		a2, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "Wallet", Type: domain.AccountCash, Currency: "EGP"})
		require.NoError(t, err)

		require.NoError(t, s.SetDefaultAccount(ctx, u.ID, a2.ID))
		accounts, err := s.GetUserAccounts(ctx, u.ID)
		require.NoError(t, err)
		def, ok := domain.DefaultAccount(accounts)
		require.True(t, ok)
		require.Equal(t, a2.ID, def.ID)

		require.ErrorIs(t, s.SetDefaultAccount(ctx, other.ID, a1.ID), ErrForbidden)
		require.ErrorIs(t, s.SetDefaultAccount(ctx, u.ID, uuid.NewString()), ErrNotFound)
	})

	t.Run("transaction updates balance", func(t *testing.T) {
		u := newTestUser(t, s)
		acc, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Balance: decimal.NewFromInt(1000), Currency: "EGP"})
		require.NoError(t, err)

		tx, updated, err := s.CreateTransaction(ctx, NewTransaction{
			UserID: u.ID, AccountID: acc.ID, Type: domain.Expense,
			Amount: decimal.RequireFromString("50.25"), Description: "coffee",
			Category: string(domain.CategoryFood), Currency: "EGP", Date: "2026-10-01",
			DraftID: uuid.NewString(),
		})
		require.NoError(t, err)
		require.Equal(t, "2026-10-01", tx.Date)
		require.Equal(t, "949.75", domain.FormatMoney(updated.Balance))

		_, updated, err = s.CreateTransaction(ctx, NewTransaction{
			UserID: u.ID, AccountID: acc.ID, Type: domain.Income,
			Amount: decimal.NewFromInt(100), Description: "gift",
			Category: string(domain.CategoryGift), Currency: "EGP",
		})
		require.NoError(t, err)
		require.Equal(t, "1049.75", domain.FormatMoney(updated.Balance))
	})

	t.Run("duplicate draft is rejected", func(t *testing.T) {
		u := newTestUser(t, s)
		acc, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Balance: decimal.NewFromInt(100), Currency: "EGP"})
		require.NoError(t, err)

		in := NewTransaction{
			UserID: u.ID, AccountID: acc.ID, Type: domain.Expense,
			Amount: decimal.NewFromInt(10), Description: "taxi",
			Category: string(domain.CategoryTransport), Currency: "EGP",
			DraftID: uuid.NewString(),
		}
		_, _, err = s.CreateTransaction(ctx, in)
		require.NoError(t, err)
		_, _, err = s.CreateTransaction(ctx, in)
		require.ErrorIs(t, err, ErrDuplicate)

		accounts, err := s.GetUserAccounts(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "90.00", domain.FormatMoney(accounts[0].Balance))
	})

	t.Run("transaction on foreign account", func(t *testing.T) {
		owner := newTestUser(t, s)
		intruder := newTestUser(t, s)
		acc, err := s.CreateAccount(ctx, NewAccount{UserID: owner.ID, Name: "CIB", Type: domain.AccountBank, Currency: "EGP"})
		require.NoError(t, err)

		_, _, err = s.CreateTransaction(ctx, NewTransaction{
			UserID: intruder.ID, AccountID: acc.ID, Type: domain.Expense,
			Amount: decimal.NewFromInt(1), Description: "x", Category: "Other", Currency: "EGP",
		})
		require.ErrorIs(t, err, ErrForbidden)
		require.Equal(t, apperr.CodeForbidden, ToAppError(err).Code)
	})

	t.Run("search filters", func(t *testing.T) {
		u := newTestUser(t, s)
		acc, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Balance: decimal.NewFromInt(5000), Currency: "EGP"})
		require.NoError(t, err)

		seed := []struct {
			typ  domain.TxType
			amt  int64
			cat  string
			date string
		}{
			{domain.Expense, 50, domain.CategoryFood, "2026-09-01"},
			{domain.Expense, 300, domain.CategoryShopping, "2026-09-15"},
			{domain.Expense, 120, domain.CategoryFood, "2026-10-02"},
			{domain.Income, 2000, domain.CategorySalary, "2026-10-01"},
		}
		for _, row := range seed {
			_, _, err := s.CreateTransaction(ctx, NewTransaction{
				UserID: u.ID, AccountID: acc.ID, Type: row.typ,
				Amount: decimal.NewFromInt(row.amt), Description: row.cat,
				Category: row.cat, Currency: "EGP", Date: row.date,
			})
			require.NoError(t, err)
		}

		food, err := s.SearchTransactions(ctx, TransactionFilter{UserID: u.ID, Category: "food"})
		require.NoError(t, err)
		require.Len(t, food, 2)
		require.Equal(t, "2026-10-02", food[0].Date)

		minAmt := decimal.NewFromInt(100)
		big, err := s.SearchTransactions(ctx, TransactionFilter{UserID: u.ID, Type: domain.Expense, MinAmount: &minAmt})
		require.NoError(t, err)
		require.Len(t, big, 2)

		sept, err := s.SearchTransactions(ctx, TransactionFilter{UserID: u.ID, FromDate: "2026-09-01", ToDate: "2026-09-30"})
		require.NoError(t, err)
		require.Len(t, sept, 2)

		recent, err := s.RecentTransactions(ctx, u.ID, 1)
		require.NoError(t, err)
		require.Len(t, recent, 1)
	})

	t.Run("concurrent expenses keep balance consistent", func(t *testing.T) {
		u := newTestUser(t, s)
		acc, err := s.CreateAccount(ctx, NewAccount{UserID: u.ID, Name: "CIB", Type: domain.AccountBank, Balance: decimal.NewFromInt(100), Currency: "EGP"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.CreateTransaction(ctx, NewTransaction{
					UserID: u.ID, AccountID: acc.ID, Type: domain.Expense,
					Amount: decimal.NewFromInt(1), Description: "tea", Category: "Other", Currency: "EGP",
				})
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		accounts, err := s.GetUserAccounts(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "90.00", domain.FormatMoney(accounts[0].Balance))
	})

	t.Run("recent messages oldest first", func(t *testing.T) {
		u := newTestUser(t, s)
		for _, c := range []string{"one", "two", "three"} {
			require.NoError(t, s.InsertMessage(ctx, MessageRecord{UserID: u.ID, Direction: DirectionIncoming, Type: "text", Content: c}))
		}
		msgs, err := s.RecentMessages(ctx, u.ID, 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		require.Equal(t, "two", msgs[0].Content)
		require.Equal(t, "three", msgs[1].Content)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, openTestSQLite(t))
}

func TestSQLite_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finbot.db")
	s, err := OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
