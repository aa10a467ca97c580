package convo

import (
	"context"
	"errors"
	"fmt"

	"finbot/internal/confirm"
	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/logging"
	"finbot/internal/repo"
	"finbot/internal/session"
)

// HandleCallback settles a confirm or cancel tap. The ledger claim makes the
// first tap for a draft the only one that can act on it.
func (e *Engine) HandleCallback(ctx context.Context, ev Event) error {
	logger := logging.WithTrace(ctx, e.logger).With("telegram_id", ev.UserID)
	cb, err := confirm.ParseCallback(ev.CallbackData)
	if err != nil {
		logger.Warn("ignoring callback", "error", err, "data", ev.CallbackData)
		e.answer(ctx, ev, "")
		return nil
	}
	if cb.UserID != ev.UserID {
		lang := i18n.Detect("", ev.LanguageCode)
		logger.Warn("callback from another user", "owner", cb.UserID)
		e.answer(ctx, ev, i18n.NotYourAction.In(lang))
		return nil
	}

	t, err := e.begin(ctx, ev)
	if err != nil {
		e.answer(ctx, ev, "")
		return err
	}
	t.logger = t.logger.With("draft_id", cb.DraftID, "action", cb.Action)

	claimed, err := e.ledger.Claim(ctx, cb.DraftID)
	if err != nil {
		e.answer(ctx, ev, "")
		return e.fail(ctx, t, "claim_draft", err)
	}
	if !claimed {
		return e.settled(ctx, t, cb)
	}

	pending, err := e.sessions.TakePendingConfirmation(ctx, t.user.ID, cb.DraftID)
	if err != nil {
		e.release(ctx, t, cb.DraftID)
		e.answer(ctx, ev, "")
		return e.fail(ctx, t, "session", err)
	}
	if pending == nil {
		return e.expire(ctx, t, cb.DraftID)
	}

	draft, err := e.codec.Decode(pending.Token)
	if err != nil || draft.ID != cb.DraftID || draft.UserID != t.user.ID || draft.Type != cb.Action.TxType() {
		t.logger.Warn("confirmation token rejected", "error", err)
		return e.expire(ctx, t, cb.DraftID)
	}

	if !cb.Action.IsConfirm() {
		e.settle(ctx, t, cb.DraftID, confirm.OutcomeCancelled)
		e.finish(ctx, t, i18n.TransactionCancelled.In(t.lang), "cancelled")
		return nil
	}
	return e.commit(ctx, t, pending, draft)
}

func (e *Engine) commit(ctx context.Context, t *turn, pending *session.PendingConfirmation, draft domain.Draft) error {
	_, account, err := e.store.CreateTransaction(ctx, repo.NewTransaction{
		UserID:      draft.UserID,
		AccountID:   draft.AccountID,
		Type:        draft.Type,
		Amount:      draft.Amount,
		Description: draft.Description,
		Category:    draft.Category,
		Currency:    draft.Currency,
		Date:        draft.Date,
		DraftID:     draft.ID,
	})
	switch {
	case errors.Is(err, repo.ErrDuplicate):
		e.settle(ctx, t, draft.ID, confirm.OutcomeCommitted)
		e.countConfirmation("duplicate")
		e.answer(ctx, t.ev, i18n.AlreadyProcessed.In(t.lang))
		return nil
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrForbidden):
		e.countStoreError("create_transaction")
		e.settle(ctx, t, draft.ID, confirm.OutcomeCancelled)
		e.answer(ctx, t.ev, "")
		return e.fail(ctx, t, "create_transaction", err)
	case err != nil:
		// give the draft back so the user can tap confirm again
		e.countStoreError("create_transaction")
		e.release(ctx, t, draft.ID)
		if _, restoreErr := e.sessions.SetPendingConfirmation(ctx, t.user.ID, pending.Draft, pending.Token); restoreErr != nil {
			t.logger.Warn("restore pending confirmation failed", "error", restoreErr)
		}
		t.logger.Error("commit transaction failed", "error", err)
		e.countConfirmation("failed")
		e.answer(ctx, t.ev, i18n.TransactionFailed.In(t.lang))
		return fmt.Errorf("create transaction: %w", err)
	}

	e.settle(ctx, t, draft.ID, confirm.OutcomeCommitted)
	tmpl := i18n.ExpenseLogged
	if draft.Type == domain.Income {
		tmpl = i18n.IncomeLogged
	}
	text := tmpl.Format(t.lang,
		domain.FormatMoney(draft.Amount),
		draft.Currency,
		draft.Description,
		draft.AccountName,
		domain.FormatMoney(account.Balance),
	)
	t.logger.Info("transaction committed", "account_id", account.ID, "balance", account.Balance.String())
	e.finish(ctx, t, text, "committed")
	return nil
}

// settled answers a tap on a draft that another tap already claimed.
func (e *Engine) settled(ctx context.Context, t *turn, cb confirm.Callback) error {
	outcome, _, err := e.ledger.Lookup(ctx, cb.DraftID)
	if err != nil {
		t.logger.Warn("lookup draft outcome failed", "error", err)
	}
	if outcome == confirm.OutcomeExpired {
		e.countConfirmation("expired")
		e.answer(ctx, t.ev, i18n.TransactionExpired.In(t.lang))
		return nil
	}
	e.countConfirmation("already_processed")
	e.answer(ctx, t.ev, i18n.AlreadyProcessed.In(t.lang))
	return nil
}

func (e *Engine) expire(ctx context.Context, t *turn, draftID string) error {
	e.settle(ctx, t, draftID, confirm.OutcomeExpired)
	e.finish(ctx, t, i18n.TransactionExpired.In(t.lang), "expired")
	return nil
}

// finish answers the tap and replaces the confirmation message, dropping its
// buttons.
func (e *Engine) finish(ctx context.Context, t *turn, text, outcome string) {
	e.countConfirmation(outcome)
	e.answer(ctx, t.ev, "")
	if t.ev.MessageID == 0 {
		_ = e.reply(ctx, t, text, "confirmation_"+outcome, nil)
		return
	}
	if err := e.sender.EditMessageText(ctx, t.ev.ChatID, t.ev.MessageID, text, nil); err != nil {
		t.logger.Warn("edit confirmation message failed", "error", err)
		_ = e.reply(ctx, t, text, "confirmation_"+outcome, nil)
		return
	}
	e.logMessage(ctx, repo.MessageRecord{
		UserID:    t.user.ID,
		Direction: repo.DirectionOutgoing,
		Type:      "confirmation_" + outcome,
		Content:   text,
	})
}

func (e *Engine) settle(ctx context.Context, t *turn, draftID string, outcome confirm.Outcome) {
	if err := e.ledger.Settle(ctx, draftID, outcome); err != nil {
		t.logger.Warn("record draft outcome failed", "error", err, "outcome", outcome)
	}
}

func (e *Engine) release(ctx context.Context, t *turn, draftID string) {
	if err := e.ledger.Release(ctx, draftID); err != nil {
		t.logger.Warn("release draft claim failed", "error", err)
	}
}

func (e *Engine) answer(ctx context.Context, ev Event, text string) {
	if ev.CallbackID == "" {
		return
	}
	if err := e.sender.AnswerCallbackQuery(ctx, ev.CallbackID, text); err != nil {
		logging.WithTrace(ctx, e.logger).Warn("answer callback failed", "error", err)
	}
}

func (e *Engine) countConfirmation(outcome string) {
	if e.metrics != nil {
		e.metrics.Confirmations.WithLabelValues(outcome).Inc()
	}
}
