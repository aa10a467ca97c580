package convo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finbot/internal/confirm"
	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/metrics"
	"finbot/internal/nlu"
	"finbot/internal/repo"
	"finbot/internal/session"
	"finbot/internal/telegram"
)

const testTelegramID = 1001

type fakeSender struct {
	mu      sync.Mutex
	sent    []telegram.OutgoingMessage
	answers []string
	edits   []string
}

func (f *fakeSender) SendMessage(_ context.Context, msg telegram.OutgoingMessage) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return &telegram.Message{MessageID: int64(len(f.sent)), Chat: telegram.Chat{ID: msg.ChatID}, Text: msg.Text}, nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) EditMessageText(_ context.Context, _, _ int64, text string, _ *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	f.edits = append(f.edits, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) last() telegram.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return telegram.OutgoingMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) lastAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1]
}

func (f *fakeSender) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

type fakeClassifier struct {
	calls   atomic.Int32
	respond func(req nlu.Request) (*nlu.RawResponse, error)
}

func (f *fakeClassifier) Classify(_ context.Context, req nlu.Request) (*nlu.RawResponse, error) {
	f.calls.Add(1)
	if f.respond == nil {
		return &nlu.RawResponse{Content: "?"}, nil
	}
	return f.respond(req)
}

func call(name, args string) func(nlu.Request) (*nlu.RawResponse, error) {
	return func(nlu.Request) (*nlu.RawResponse, error) {
		return &nlu.RawResponse{FunctionCall: &nlu.FunctionCall{Name: name, Arguments: args}}, nil
	}
}

type harness struct {
	engine     *Engine
	store      *repo.SQLite
	sessions   *session.Manager
	sender     *fakeSender
	classifier *fakeClassifier
	now        time.Time
	nextUpdate int64
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "finbot.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	catalog, err := nlu.LoadCatalog()
	require.NoError(t, err)

	h := &harness{
		store:      store,
		sender:     &fakeSender{},
		classifier: &fakeClassifier{},
		now:        time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.sessions = session.NewManager(session.NewMemoryStore(session.IdleTTL), 5*time.Minute).WithClock(clock)

	opts := Options{
		Store:       store,
		Sessions:    h.sessions,
		Classifier:  h.classifier,
		Catalog:     catalog,
		Codec:       confirm.NewCodec("test-secret"),
		Ledger:      confirm.NewMemoryLedger(),
		Sender:      h.sender,
		Metrics:     metrics.New("test", nil),
		Logger:      logger,
		Currency:    "EGP",
		Temperature: 0.7,
		MaxTokens:   1000,
		Now:         clock,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.engine = New(opts)
	return h
}

func (h *harness) say(t *testing.T, text string) telegram.OutgoingMessage {
	t.Helper()
	h.nextUpdate++
	_ = h.engine.Handle(context.Background(), Event{
		UpdateID:     h.nextUpdate,
		Kind:         KindMessage,
		UserID:       testTelegramID,
		ChatID:       testTelegramID,
		Timestamp:    h.now,
		Text:         text,
		DisplayName:  "Sara",
		LanguageCode: "en",
	})
	return h.sender.last()
}

func (h *harness) tap(t *testing.T, fromUser int64, data string, messageID int64) {
	t.Helper()
	h.nextUpdate++
	_ = h.engine.Handle(context.Background(), tapEvent(h.nextUpdate, fromUser, data, messageID))
}

func tapEvent(updateID, fromUser int64, data string, messageID int64) Event {
	return Event{
		UpdateID:     updateID,
		Kind:         KindCallback,
		UserID:       fromUser,
		ChatID:       fromUser,
		MessageID:    messageID,
		CallbackID:   "cb",
		CallbackData: data,
		DisplayName:  "Sara",
		LanguageCode: "en",
	}
}

func (h *harness) user(t *testing.T) *domain.User {
	t.Helper()
	u, err := h.store.CreateOrGetUser(context.Background(), repo.UserProfile{TelegramID: testTelegramID, FirstName: "Sara", Language: "en"})
	require.NoError(t, err)
	return u
}

func (h *harness) addAccount(t *testing.T, name string, typ domain.AccountType, balance string) *domain.Account {
	t.Helper()
	acc, err := h.store.CreateAccount(context.Background(), repo.NewAccount{
		UserID:   h.user(t).ID,
		Name:     name,
		Type:     typ,
		Balance:  decimal.RequireFromString(balance),
		Currency: "EGP",
	})
	require.NoError(t, err)
	return acc
}

func (h *harness) accounts(t *testing.T) []domain.Account {
	t.Helper()
	accs, err := h.store.GetUserAccounts(context.Background(), h.user(t).ID)
	require.NoError(t, err)
	return accs
}

func (h *harness) transactions(t *testing.T) []domain.Transaction {
	t.Helper()
	txs, err := h.store.RecentTransactions(context.Background(), h.user(t).ID, 100)
	require.NoError(t, err)
	return txs
}

func (h *harness) session(t *testing.T) session.Session {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), h.user(t).ID)
	require.NoError(t, err)
	return s
}

// buttons returns the confirm and cancel callback data of a prompt.
func buttons(t *testing.T, msg telegram.OutgoingMessage) (confirmData, cancelData string) {
	t.Helper()
	require.NotNil(t, msg.Keyboard, "message has no keyboard: %s", msg.Text)
	row := msg.Keyboard.InlineKeyboard[0]
	require.Len(t, row, 2)
	return row[0].CallbackData, row[1].CallbackData
}

const coffeeArgs = `{"amount":50,"description":"coffee","category":"Food & Drinks","confidence":0.82}`

func TestExpense_ConfirmCommitsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)

	prompt := h.say(t, "paid 50 for coffee")
	require.Contains(t, prompt.Text, "Confirm Expense")
	require.Contains(t, prompt.Text, "50.00 EGP")
	require.Contains(t, prompt.Text, "coffee")
	require.Contains(t, prompt.Text, "Category: Food")
	require.Contains(t, prompt.Text, "Main Bank")

	pending, ok := h.session(t).(*session.PendingConfirmation)
	require.True(t, ok)
	require.Equal(t, domain.Expense, pending.Draft.Type)
	require.True(t, pending.Draft.Amount.Equal(decimal.NewFromInt(50)))
	require.Equal(t, domain.CategoryFood, pending.Draft.Category)
	require.Empty(t, h.transactions(t))

	confirmData, _ := buttons(t, prompt)
	cb, err := confirm.ParseCallback(confirmData)
	require.NoError(t, err)
	require.Equal(t, confirm.ConfirmExpense, cb.Action)
	require.Equal(t, int64(testTelegramID), cb.UserID)
	require.Equal(t, pending.Draft.ID, cb.DraftID)

	h.tap(t, testTelegramID, confirmData, 1)
	require.Contains(t, h.sender.lastEdit(), "New balance: 950.00 EGP")
	require.Nil(t, h.session(t))
	require.Len(t, h.transactions(t), 1)
	require.Equal(t, "950", h.accounts(t)[0].Balance.String())

	h.tap(t, testTelegramID, confirmData, 1)
	require.Equal(t, i18n.AlreadyProcessed.EN, h.sender.lastAnswer())
	require.Len(t, h.transactions(t), 1)
	require.Equal(t, "950", h.accounts(t)[0].Balance.String())
}

func TestExpense_ConcurrentConfirmTaps(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	confirmData, _ := buttons(t, h.say(t, "paid 50 for coffee"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.engine.Handle(context.Background(), tapEvent(int64(100+i), testTelegramID, confirmData, 1))
		}(i)
	}
	wg.Wait()

	require.Len(t, h.transactions(t), 1)
	require.Equal(t, "950", h.accounts(t)[0].Balance.String())
	processed := 0
	for _, a := range h.sender.answers {
		if a == i18n.AlreadyProcessed.EN {
			processed++
		}
	}
	require.Equal(t, 3, processed)
}

func TestIncome_HighConfidenceStillConfirms(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogIncome, `{"amount":9000,"description":"salary","confidence":0.97}`)

	prompt := h.say(t, "got my salary 9000")
	require.Contains(t, prompt.Text, "Confirm Income")
	require.Contains(t, prompt.Text, "Category: Salary")
	require.NotContains(t, prompt.Text, i18n.UnsureNote.EN)
	require.Empty(t, h.transactions(t))

	confirmData, _ := buttons(t, prompt)
	h.tap(t, testTelegramID, confirmData, 1)
	require.Contains(t, h.sender.lastEdit(), "New balance: 10000.00 EGP")
}

func TestExpense_CancelThenConfirmIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	confirmData, cancelData := buttons(t, h.say(t, "paid 50 for coffee"))

	h.tap(t, testTelegramID, cancelData, 1)
	require.Equal(t, i18n.TransactionCancelled.EN, h.sender.lastEdit())
	require.Nil(t, h.session(t))

	h.tap(t, testTelegramID, confirmData, 1)
	require.Equal(t, i18n.AlreadyProcessed.EN, h.sender.lastAnswer())
	require.Empty(t, h.transactions(t))
}

func TestExpense_ExpiredConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	confirmData, _ := buttons(t, h.say(t, "paid 50 for coffee"))

	h.now = h.now.Add(5*time.Minute + time.Second)
	require.Nil(t, h.session(t))

	h.tap(t, testTelegramID, confirmData, 1)
	require.Equal(t, i18n.TransactionExpired.EN, h.sender.lastEdit())
	require.Empty(t, h.transactions(t))

	h.tap(t, testTelegramID, confirmData, 1)
	require.Equal(t, i18n.TransactionExpired.EN, h.sender.lastAnswer())
}

func TestCallback_FromAnotherUser(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	confirmData, _ := buttons(t, h.say(t, "paid 50 for coffee"))

	h.tap(t, 2002, confirmData, 1)
	require.Equal(t, i18n.NotYourAction.EN, h.sender.lastAnswer())
	require.Empty(t, h.transactions(t))
	require.NotNil(t, h.session(t))
}

func TestCallback_GarbageData(t *testing.T) {
	h := newHarness(t, nil)
	h.tap(t, testTelegramID, "approve:everything", 1)
	require.Equal(t, "", h.sender.lastAnswer())
	require.Len(t, h.sender.answers, 1)
}

func TestBoughtSomething_AsksForAmount(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = func(nlu.Request) (*nlu.RawResponse, error) {
		return &nlu.RawResponse{Content: "How much did you spend?"}, nil
	}

	reply := h.say(t, "bought something")
	require.Equal(t, "How much did you spend?\n\nMissing: amount", reply.Text)
	require.Nil(t, reply.Keyboard)
	require.Nil(t, h.session(t))
}

func TestLowConfidence_Clarifies(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, `{"amount":50,"description":"coffee","confidence":0.5}`)

	reply := h.say(t, "coffee maybe")
	require.Equal(t, i18n.DefaultClarification.EN, reply.Text)
	require.Nil(t, h.session(t))
}

func TestMissingAmount_Clarifies(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, `{"description":"coffee","confidence":0.9}`)

	reply := h.say(t, "coffee")
	require.Equal(t, i18n.MissingTransactionDetails.EN+"\n\nMissing: amount", reply.Text)
	require.Nil(t, h.session(t))
}

func TestExpense_WithoutAccounts(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)

	reply := h.say(t, "paid 50 for coffee")
	require.Equal(t, i18n.CreateAccountFirst.EN, reply.Text)
	require.Nil(t, h.session(t))
}

func TestExpense_PendingBlocksSecondDraft(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	h.say(t, "paid 50 for coffee")

	reply := h.say(t, "and 20 for tea")
	require.Equal(t, i18n.PendingExists.EN, reply.Text)

	require.Equal(t, i18n.Cancelled.EN, h.say(t, "/cancel").Text)
	require.Nil(t, h.session(t))
	require.Equal(t, i18n.NothingToCancel.EN, h.say(t, "/cancel").Text)
}

func TestWizard_CreatesAccount(t *testing.T) {
	h := newHarness(t, nil)

	require.Equal(t, i18n.AskAccountType.EN, h.say(t, "create account").Text)
	require.Equal(t, i18n.InvalidAccountType.EN, h.say(t, "crypto").Text)
	require.Equal(t, i18n.AskAccountName.EN, h.say(t, "bank").Text)
	require.Equal(t, i18n.AskInitialBalance.EN, h.say(t, "Main Bank").Text)
	require.Equal(t, i18n.NegativeBalance.EN, h.say(t, "-5").Text)
	require.Equal(t, i18n.InvalidBalance.EN, h.say(t, "lots").Text)

	done := h.say(t, "5000")
	require.Contains(t, done.Text, "Account Created Successfully")
	require.Contains(t, done.Text, "Main Bank")
	require.Contains(t, done.Text, "Balance: 5000.00 EGP")
	require.Nil(t, h.session(t))

	accs := h.accounts(t)
	require.Len(t, accs, 1)
	require.Equal(t, "Main Bank", accs[0].Name)
	require.Equal(t, domain.AccountBank, accs[0].Type)
	require.Equal(t, "5000", accs[0].Balance.String())
	require.True(t, accs[0].IsDefault)
	require.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestWizard_CreditAllowsDebt(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "new account")
	h.say(t, "credit")
	h.say(t, "Visa")
	require.Contains(t, h.say(t, "-1,500").Text, "-1500.00 EGP")
	require.Equal(t, "-1500", h.accounts(t)[0].Balance.String())
}

func TestWizard_ArabicFlow(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, i18n.AskAccountType.AR, h.say(t, "إنشاء حساب").Text)
	require.Equal(t, i18n.AskAccountName.AR, h.say(t, "نقد").Text)
	require.Equal(t, i18n.AskInitialBalance.AR, h.say(t, "محفظتي").Text)
	require.Contains(t, h.say(t, "٥٠٠").Text, "تم إنشاء الحساب بنجاح")
	require.Equal(t, domain.AccountCash, h.accounts(t)[0].Type)
}

func TestWizard_KeywordsAreStepInput(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "create account")
	require.Equal(t, i18n.InvalidAccountType.EN, h.say(t, "my accounts").Text)
	h.say(t, "bank")
	require.Equal(t, i18n.AskInitialBalance.EN, h.say(t, "New Account").Text)
	require.Contains(t, h.say(t, "100").Text, "New Account")

	h.say(t, "add account")
	h.say(t, "cash")
	require.Equal(t, i18n.AskInitialBalance.EN, h.say(t, "accounts").Text)
	require.Equal(t, i18n.Cancelled.EN, h.say(t, "cancel").Text)
	require.Nil(t, h.session(t))

	accs := h.accounts(t)
	require.Len(t, accs, 1)
	require.Equal(t, "New Account", accs[0].Name)
	require.Equal(t, int32(0), h.classifier.calls.Load())
}

type flakyStore struct {
	repo.Store
	failAccounts atomic.Bool
}

func (s *flakyStore) GetUserAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	if s.failAccounts.Load() {
		return nil, errors.New("connection reset")
	}
	return s.Store.GetUserAccounts(ctx, userID)
}

func TestInternalErrorClearsSession(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t, func(o *Options) {
		flaky = &flakyStore{Store: o.Store}
		o.Store = flaky
	})
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, coffeeArgs)
	h.say(t, "paid 50 for coffee")
	require.IsType(t, &session.PendingConfirmation{}, h.session(t))

	flaky.failAccounts.Store(true)
	reply := h.say(t, "/balance")
	require.NotEmpty(t, reply.Text)
	require.NotContains(t, reply.Text, "connection reset")
	require.Nil(t, h.session(t))
}

func TestNotifyFailureClearsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.say(t, "create account")
	h.say(t, "bank")
	require.IsType(t, &session.AccountCreation{}, h.session(t))

	h.engine.NotifyFailure(context.Background(), Event{
		UpdateID:     99,
		Kind:         KindMessage,
		UserID:       testTelegramID,
		ChatID:       testTelegramID,
		Text:         "Main Bank",
		LanguageCode: "en",
	})
	require.Equal(t, i18n.InternalError.EN, h.sender.last().Text)
	require.Nil(t, h.session(t))

	h.say(t, "Main Bank")
	require.Equal(t, int32(1), h.classifier.calls.Load())
}

func TestAccountsAndDefault(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.addAccount(t, "Wallet", domain.AccountCash, "250.50")

	list := h.say(t, "my accounts")
	require.Contains(t, list.Text, "🏦 *Main Bank* (Bank) ⭐ default")
	require.Contains(t, list.Text, "💵 *Wallet* (Cash)")
	require.Contains(t, list.Text, "Total Balance:* 1250.50 EGP")

	require.Equal(t, "⭐ *Wallet* is now your default account.", h.say(t, "set wallet as default").Text)
	for _, acc := range h.accounts(t) {
		require.Equal(t, acc.Name == "Wallet", acc.IsDefault, acc.Name)
	}
	require.Contains(t, h.say(t, "make savings default").Text, "couldn't find")
	require.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestCheckBalance(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	h.addAccount(t, "Wallet", domain.AccountCash, "200")

	h.classifier.respond = call(nlu.IntentCheckBalance, `{"confidence":0.95}`)
	reply := h.say(t, "what's my balance?")
	require.Contains(t, reply.Text, "*Main Bank*: 1000.00 EGP")
	require.Contains(t, reply.Text, "*Wallet*: 200.00 EGP")
	require.Contains(t, reply.Text, "1200.00 EGP")
	require.Nil(t, h.session(t))

	h.classifier.respond = call(nlu.IntentCheckBalance, `{"accountId":"Wallet","confidence":0.95}`)
	reply = h.say(t, "wallet balance")
	require.NotContains(t, reply.Text, "Main Bank")
	require.NotContains(t, reply.Text, "Total")
}

func TestSearchTransactions(t *testing.T) {
	h := newHarness(t, nil)
	acc := h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	ctx := context.Background()
	for _, tx := range []struct {
		typ  domain.TxType
		amt  string
		desc string
		cat  string
		date string
	}{
		{domain.Expense, "50", "coffee", domain.CategoryFood, "2026-10-05"},
		{domain.Expense, "30", "sandwich", domain.CategoryFood, "2026-10-10"},
		{domain.Expense, "100", "taxi", domain.CategoryTransport, "2026-10-11"},
		{domain.Expense, "70", "dinner", domain.CategoryFood, "2026-09-20"},
		{domain.Income, "500", "gift", domain.CategoryGift, "2026-10-12"},
	} {
		_, _, err := h.store.CreateTransaction(ctx, repo.NewTransaction{
			UserID: acc.UserID, AccountID: acc.ID, Type: tx.typ, Amount: decimal.RequireFromString(tx.amt),
			Description: tx.desc, Category: tx.cat, Currency: "EGP", Date: tx.date,
		})
		require.NoError(t, err)
	}

	h.classifier.respond = call(nlu.IntentSearchTransactions,
		`{"type":"expense","category":"Food & Drinks","dateRange":{"start":"this month"},"aggregation":"sum","confidence":0.9}`)
	reply := h.say(t, "how much did I spend on food this month?")
	require.Contains(t, reply.Text, "coffee")
	require.Contains(t, reply.Text, "sandwich")
	require.NotContains(t, reply.Text, "dinner")
	require.NotContains(t, reply.Text, "taxi")
	require.Contains(t, reply.Text, "Total:* 80.00 EGP (2 transactions)")

	h.classifier.respond = call(nlu.IntentSearchTransactions, `{"minAmount":90,"aggregation":"count","confidence":0.9}`)
	reply = h.say(t, "big transactions")
	require.Contains(t, reply.Text, "taxi")
	require.Contains(t, reply.Text, "gift")
	require.Contains(t, reply.Text, "Count:* 2 transactions")

	h.classifier.respond = call(nlu.IntentSearchTransactions, `{"category":"Shopping","confidence":0.9}`)
	require.Equal(t, i18n.SearchNoResults.EN, h.say(t, "shopping?").Text)
}

func TestClassifierFailure_SingleMessageNoSession(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := nlu.New(nlu.Config{
		BaseURL:    srv.URL,
		Endpoint:   "/text/llm/",
		Timeout:    time.Second,
		MaxRetries: 3,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
	}, metrics.New("test", nil), logger)

	h := newHarness(t, func(o *Options) { o.Classifier = client })
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")

	before := len(h.sender.sent)
	reply := h.say(t, "paid 50 for coffee")
	require.Equal(t, i18n.RetriesExhausted.EN, reply.Text)
	require.Len(t, h.sender.sent, before+1)
	require.Equal(t, int32(3), hits.Load())
	require.Nil(t, h.session(t))
}

func TestClassifierRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.classifier.respond = func(nlu.Request) (*nlu.RawResponse, error) {
		return nil, &nlu.Failure{Kind: nlu.KindClientRejected, Status: 400}
	}
	require.Equal(t, i18n.ClientRejected.EN, h.say(t, "hello").Text)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Limiter = nlu.NewMemoryLimiter(1, time.Minute) })
	h.classifier.respond = call(nlu.IntentListAccounts, `{"confidence":0.9}`)

	require.Equal(t, i18n.NoAccounts.EN, h.say(t, "show me everything").Text)
	require.Equal(t, i18n.SlowDown.EN, h.say(t, "show me everything").Text)
	require.Equal(t, int32(1), h.classifier.calls.Load())
}

func TestArabicExpensePrompt(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "البنك", domain.AccountBank, "1000")
	h.classifier.respond = call(nlu.IntentLogExpense, `{"amount":50,"description":"قهوة","confidence":0.9}`)

	prompt := h.say(t, "صرفت 50 على قهوة")
	require.Contains(t, prompt.Text, "تأكيد المصروف")
	require.Contains(t, prompt.Text, "Food")
	confirmData, _ := buttons(t, prompt)
	require.LessOrEqual(t, len(confirmData), confirm.MaxCallbackData)
}

func TestHistoryAndPromptAreSent(t *testing.T) {
	h := newHarness(t, nil)
	h.addAccount(t, "Main Bank", domain.AccountBank, "1000")
	var last nlu.Request
	h.classifier.respond = func(req nlu.Request) (*nlu.RawResponse, error) {
		last = req
		return &nlu.RawResponse{Content: "Could you tell me more?"}, nil
	}

	h.say(t, "hello")
	h.say(t, "again")
	require.Equal(t, "again", last.Message)
	require.Len(t, last.Functions, 6)
	require.Contains(t, last.SystemPrompt, "Main Bank")
	require.Len(t, last.History, 2)
	require.Equal(t, "user", last.History[0].Role)
	require.Equal(t, "hello", last.History[0].Content)
	require.Equal(t, "assistant", last.History[1].Role)
	require.True(t, strings.HasPrefix(last.History[1].Content, "Could you tell me more?"))
}

func TestStartAndHelp(t *testing.T) {
	h := newHarness(t, nil)
	require.Contains(t, h.say(t, "/start").Text, "Welcome, Sara!")
	require.Equal(t, i18n.Help.EN, h.say(t, "/help@finbot").Text)
	require.Equal(t, int32(0), h.classifier.calls.Load())
}
