package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finbot/internal/apperr"
	"finbot/internal/confirm"
	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/logging"
	"finbot/internal/metrics"
	"finbot/internal/nlu"
	"finbot/internal/repo"
	"finbot/internal/session"
	"finbot/internal/telegram"
)

const (
	historyLimit       = 10
	promptTransactions = 3
)

// Sender delivers replies to the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, msg telegram.OutgoingMessage) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) error
}

// Classifier is the language-model call.
type Classifier interface {
	Classify(ctx context.Context, req nlu.Request) (*nlu.RawResponse, error)
}

// EventKind tells messages from button presses.
type EventKind string

const (
	KindMessage  EventKind = "message"
	KindCallback EventKind = "callback"
	KindUnknown  EventKind = "unknown"
)

// Event is a normalised inbound update.
type Event struct {
	UpdateID     int64
	Kind         EventKind
	UserID       int64
	ChatID       int64
	MessageID    int64
	Timestamp    time.Time
	Text         string
	CallbackID   string
	CallbackData string
	DisplayName  string
	Username     string
	LanguageCode string
}

// Options wires the engine's collaborators.
type Options struct {
	Store       repo.Store
	Sessions    *session.Manager
	Classifier  Classifier
	Catalog     *nlu.Catalog
	Limiter     nlu.Limiter
	Codec       *confirm.Codec
	Ledger      confirm.Ledger
	Sender      Sender
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Currency    string
	Temperature float64
	MaxTokens   int
	Now         func() time.Time
}

// Engine turns chat events into replies and ledger mutations.
type Engine struct {
	store       repo.Store
	sessions    *session.Manager
	classifier  Classifier
	catalog     *nlu.Catalog
	limiter     nlu.Limiter
	codec       *confirm.Codec
	ledger      confirm.Ledger
	sender      Sender
	metrics     *metrics.Metrics
	logger      *slog.Logger
	currency    string
	temperature float64
	maxTokens   int
	now         func() time.Time
}

// New creates a conversation engine instance.
func New(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	currency := opts.Currency
	if currency == "" {
		currency = "EGP"
	}
	return &Engine{
		store:       opts.Store,
		sessions:    opts.Sessions,
		classifier:  opts.Classifier,
		catalog:     opts.Catalog,
		limiter:     opts.Limiter,
		codec:       opts.Codec,
		ledger:      opts.Ledger,
		sender:      opts.Sender,
		metrics:     opts.Metrics,
		logger:      opts.Logger.With("component", "convo"),
		currency:    currency,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		now:         now,
	}
}

// turn is the per-event context handed to handlers.
type turn struct {
	ev     Event
	user   *domain.User
	lang   i18n.Lang
	logger *slog.Logger
}

// Handle processes one event. Failures are reported to the user and logged;
// the returned error is for the caller's bookkeeping only.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindMessage:
		return e.HandleMessage(ctx, ev)
	case KindCallback:
		return e.HandleCallback(ctx, ev)
	}
	return nil
}

// HandleMessage handles a text message.
func (e *Engine) HandleMessage(ctx context.Context, ev Event) error {
	t, err := e.begin(ctx, ev)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(ev.Text)

	// history is read before this message is stored so it is not sent twice
	history, err := e.store.RecentMessages(ctx, t.user.ID, historyLimit)
	if err != nil {
		t.logger.Warn("load history failed", "error", err)
	}
	e.logMessage(ctx, repo.MessageRecord{
		UserID:    t.user.ID,
		Direction: repo.DirectionIncoming,
		Type:      "text",
		Content:   text,
	})

	if text == "" {
		return e.reply(ctx, t, i18n.DefaultClarification.In(t.lang), "empty", nil)
	}
	if handled, err := e.interrupt(ctx, t, text); handled {
		return err
	}

	s, err := e.sessions.Get(ctx, t.user.ID)
	if err != nil {
		return e.fail(ctx, t, "session", err)
	}
	if wizard, ok := s.(*session.AccountCreation); ok {
		return e.continueWizard(ctx, t, wizard, text)
	}
	if handled, err := e.preRoute(ctx, t, text); handled {
		return err
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, t.user.ID)
		if err != nil {
			t.logger.Warn("rate limit check failed", "error", err)
		}
		if !allowed {
			return e.reply(ctx, t, i18n.SlowDown.In(t.lang), "rate_limited", nil)
		}
	}

	res, err := e.classify(ctx, t, text, history)
	if err != nil {
		t.logger.Warn("classification failed", "error", err, "kind", nlu.KindOf(err))
		return e.reply(ctx, t, nlu.MessageFor(err).In(t.lang), "classifier_"+string(nlu.KindOf(err)), nil)
	}
	if e.metrics != nil {
		e.metrics.Intents.WithLabelValues(res.Intent, string(res.NextAction)).Inc()
	}
	t.logger.Info("intent classified",
		"intent", res.Intent,
		"confidence", res.Confidence,
		"next_action", res.NextAction,
		"source", res.Source,
	)
	return e.route(ctx, t, res)
}

func (e *Engine) begin(ctx context.Context, ev Event) (*turn, error) {
	logger := logging.WithTrace(ctx, e.logger).With("telegram_id", ev.UserID)
	user, err := e.store.CreateOrGetUser(ctx, repo.UserProfile{
		TelegramID: ev.UserID,
		Username:   ev.Username,
		FirstName:  ev.DisplayName,
		Language:   ev.LanguageCode,
	})
	if err != nil {
		logger.Error("failed upserting user", "error", err)
		e.countStoreError("create_or_get_user")
		lang := i18n.Detect(ev.Text, ev.LanguageCode)
		e.send(ctx, ev.ChatID, apperr.FromError(err).Message.In(lang), nil)
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	lang := i18n.Detect(ev.Text, ev.LanguageCode)
	if ev.Text == "" && ev.LanguageCode == "" {
		lang = i18n.Parse(user.Language)
	}
	return &turn{
		ev:     ev,
		user:   user,
		lang:   lang,
		logger: logger.With("user_id", user.ID),
	}, nil
}

func (e *Engine) classify(ctx context.Context, t *turn, text string, history []repo.MessageRecord) (*nlu.Result, error) {
	accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
	if err != nil {
		t.logger.Warn("load accounts for prompt failed", "error", err)
	}
	recent, err := e.store.RecentTransactions(ctx, t.user.ID, promptTransactions)
	if err != nil {
		t.logger.Warn("load transactions for prompt failed", "error", err)
	}

	prompt := nlu.BuildSystemPrompt(nlu.PromptContext{
		Lang:               t.lang,
		UserName:           nonEmpty(t.user.FirstName, t.user.Username),
		Today:              e.today(),
		Accounts:           accounts,
		RecentTransactions: recent,
	})

	msgs := make([]nlu.Message, 0, len(history))
	for _, h := range history {
		role := "user"
		if h.Direction == repo.DirectionOutgoing {
			role = "assistant"
		}
		if h.Content != "" {
			msgs = append(msgs, nlu.Message{Role: role, Content: h.Content})
		}
	}

	var functions []nlu.Function
	if e.catalog != nil {
		functions = e.catalog.Functions()
	}
	raw, err := e.classifier.Classify(ctx, nlu.Request{
		Message:      text,
		SystemPrompt: prompt,
		History:      msgs,
		Functions:    functions,
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return nlu.Parse(raw)
}

// reply sends text to the chat of the current turn and records it.
func (e *Engine) reply(ctx context.Context, t *turn, text, category string, keyboard *telegram.InlineKeyboardMarkup) error {
	if _, err := e.sendMessage(ctx, t.ev.ChatID, text, keyboard); err != nil {
		t.logger.Error("send reply failed", "error", err, "category", category)
		return err
	}
	e.logMessage(ctx, repo.MessageRecord{
		UserID:    t.user.ID,
		Direction: repo.DirectionOutgoing,
		Type:      category,
		Content:   text,
	})
	return nil
}

// fail reports an unexpected error to the user without leaking its detail.
func (e *Engine) fail(ctx context.Context, t *turn, op string, err error) error {
	appErr := apperr.FromError(repo.ToAppError(err))
	if appErr.Code == apperr.CodeInternal {
		t.logger.Error("operation failed", "op", op, "error", err)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("convo").Inc()
		}
		e.resetSession(ctx, t.user.ID)
	} else {
		t.logger.Warn("operation rejected", "op", op, "code", appErr.Code, "error", err)
	}
	_ = e.reply(ctx, t, appErr.Message.In(t.lang), "error_"+op, nil)
	return fmt.Errorf("%s: %w", op, err)
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	if _, err := e.sendMessage(ctx, chatID, text, keyboard); err != nil {
		logging.WithTrace(ctx, e.logger).Error("send message failed", "error", err, "chat_id", chatID)
	}
}

func (e *Engine) sendMessage(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	return e.sender.SendMessage(ctx, telegram.OutgoingMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: telegram.ParseModeMarkdown,
		Keyboard:  keyboard,
	})
}

// NotifyFailure clears the user's session and tells the chat that processing
// failed. It is used by the dispatcher after a panic, when no turn is
// available.
func (e *Engine) NotifyFailure(ctx context.Context, ev Event) {
	if ev.ChatID == 0 {
		return
	}
	if user, err := e.store.GetUserByExternalID(ctx, ev.UserID); err == nil {
		e.resetSession(ctx, user.ID)
	} else {
		logging.WithTrace(ctx, e.logger).Warn("resolve user after failure", "error", err, "telegram_id", ev.UserID)
	}
	lang := i18n.Detect(ev.Text, ev.LanguageCode)
	e.send(ctx, ev.ChatID, i18n.InternalError.In(lang), nil)
}

// resetSession drops whatever flow the user was in after an unexpected
// failure, so the next message starts clean.
func (e *Engine) resetSession(ctx context.Context, userID string) {
	if err := e.sessions.Clear(ctx, userID); err != nil {
		logging.WithTrace(ctx, e.logger).Warn("clear session after failure", "error", err, "user_id", userID)
	}
}

func (e *Engine) logMessage(ctx context.Context, rec repo.MessageRecord) {
	if err := e.store.InsertMessage(ctx, rec); err != nil {
		e.countStoreError("insert_message")
		logging.WithTrace(ctx, e.logger).Warn("failed logging message", "error", err, "direction", rec.Direction)
	}
}

func (e *Engine) countStoreError(op string) {
	if e.metrics != nil {
		e.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

func (e *Engine) today() string {
	return e.now().UTC().Format(domain.DateLayout)
}

func nonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
