package confirm

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finbot/internal/cache"
	"finbot/internal/domain"
)

func testDraft() domain.Draft {
	return domain.Draft{
		ID:          NewDraftID(),
		UserID:      "user-1",
		Type:        domain.Expense,
		Amount:      decimal.RequireFromString("50.25"),
		Description: "قهوة coffee",
		Category:    domain.CategoryFood,
		AccountID:   "acc-1",
		AccountName: "Main Bank",
		Currency:    "EGP",
		Date:        "2026-10-19",
		CreatedAt:   time.Date(2026, 10, 19, 9, 30, 0, 123, time.FixedZone("EET", 2*3600)),
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec("secret")
	drafts := []domain.Draft{testDraft(), {ID: "x", Type: domain.Income, Amount: decimal.NewFromInt(9000)}}
	for _, d := range drafts {
		token, err := c.Encode(d)
		require.NoError(t, err)
		got, err := c.Decode(token)
		require.NoError(t, err)
		require.True(t, d.Equal(got), "%+v != %+v", d, got)
	}
}

func TestCodec_RejectsTampering(t *testing.T) {
	c := NewCodec("secret")
	token, err := c.Encode(testDraft())
	require.NoError(t, err)

	payload, sig, _ := strings.Cut(token, ".")
	forged := testDraft()
	forged.Amount = decimal.NewFromInt(1)
	other, err := c.Encode(forged)
	require.NoError(t, err)
	otherPayload, _, _ := strings.Cut(other, ".")

	for _, bad := range []string{
		"",
		payload,
		payload + ".",
		otherPayload + "." + sig,
		payload + "." + sig + "x",
		payload + ".!!!",
	} {
		_, err := c.Decode(bad)
		require.ErrorIs(t, err, ErrBadToken, bad)
	}

	_, err = NewCodec("other").Decode(token)
	require.ErrorIs(t, err, ErrBadToken)
}

func TestCallback_RoundTrip(t *testing.T) {
	cb := Callback{Action: ConfirmIncome, UserID: 9007199254740, DraftID: NewDraftID()}
	data := cb.String()
	require.LessOrEqual(t, len(data), MaxCallbackData)

	got, err := ParseCallback(data)
	require.NoError(t, err)
	require.Equal(t, cb, got)
	require.True(t, got.Action.IsConfirm())
	require.Equal(t, domain.Income, got.Action.TxType())
}

func TestParseCallback_Invalid(t *testing.T) {
	for _, data := range []string{
		"",
		"confirm_expense:1",
		"approve:1:abc",
		"confirm_expense:abc:def",
		"cancel_expense:1:",
		"confirm_expense:1:" + strings.Repeat("a", 60),
	} {
		_, err := ParseCallback(data)
		require.ErrorIs(t, err, ErrBadCallback, data)
	}
}

func TestActionsFor(t *testing.T) {
	confirm, cancel := ActionsFor(domain.Expense)
	require.Equal(t, ConfirmExpense, confirm)
	require.Equal(t, CancelExpense, cancel)
	require.False(t, cancel.IsConfirm())

	confirm, cancel = ActionsFor(domain.Income)
	require.Equal(t, ConfirmIncome, confirm)
	require.Equal(t, CancelIncome, cancel)
}

func runLedgerSuite(t *testing.T, l Ledger) {
	ctx := context.Background()

	t.Run("first claim wins", func(t *testing.T) {
		id := NewDraftID()
		_, ok, err := l.Lookup(ctx, id)
		require.NoError(t, err)
		require.False(t, ok)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.Claim(ctx, id)
				require.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())

		outcome, ok, err := l.Lookup(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, OutcomeClaimed, outcome)

		require.NoError(t, l.Settle(ctx, id, OutcomeCommitted))
		outcome, _, err = l.Lookup(ctx, id)
		require.NoError(t, err)
		require.Equal(t, OutcomeCommitted, outcome)

		ok, err = l.Claim(ctx, id)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("release frees the draft", func(t *testing.T) {
		id := NewDraftID()
		ok, err := l.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.Release(ctx, id))
		ok, err = l.Claim(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, l.Release(ctx, id))
	})
}

func TestMemoryLedger(t *testing.T) {
	runLedgerSuite(t, NewMemoryLedger())
}

func TestMemoryLedger_ClaimsExpire(t *testing.T) {
	l := NewMemoryLedger()
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := l.Claim(ctx, "d")
	require.True(t, ok)
	now = now.Add(ClaimTTL)
	_, found, _ := l.Lookup(ctx, "d")
	require.False(t, found)
	ok, _ = l.Claim(ctx, "d")
	require.True(t, ok)
}

func TestRedisLedger(t *testing.T) {
	addr := os.Getenv("FINBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FINBOT_TEST_REDIS_ADDR not set")
	}
	r, err := cache.New(context.Background(), cache.Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	runLedgerSuite(t, NewRedisLedger(r))
}
