package convo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"finbot/internal/confirm"
	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/nlu"
	"finbot/internal/telegram"
)

// route applies the classified intent. Money-moving intents always go through
// confirmation; the confidence tier only changes the wording of the prompt.
func (e *Engine) route(ctx context.Context, t *turn, res *nlu.Result) error {
	if res.NextAction == nlu.ActionClarify {
		return e.clarify(ctx, t, res)
	}
	switch res.Intent {
	case nlu.IntentLogExpense:
		return e.draftTransaction(ctx, t, res, domain.Expense)
	case nlu.IntentLogIncome:
		return e.draftTransaction(ctx, t, res, domain.Income)
	case nlu.IntentCheckBalance:
		return e.checkBalance(ctx, t, res.Entities.String("accountId"))
	case nlu.IntentListAccounts:
		return e.listAccounts(ctx, t)
	case nlu.IntentSearchTransactions:
		return e.searchTransactions(ctx, t, res.Entities)
	default:
		return e.clarify(ctx, t, res)
	}
}

func (e *Engine) clarify(ctx context.Context, t *turn, res *nlu.Result) error {
	question := res.Entities.String("question")
	if question == "" || res.Intent != nlu.IntentAskClarification {
		question = i18n.DefaultClarification.In(t.lang)
	}
	if missing := res.Entities.Strings("missingInfo"); len(missing) > 0 {
		question += i18n.MissingFields.Format(t.lang, strings.Join(missing, ", "))
	}
	return e.reply(ctx, t, question, "clarification", nil)
}

// draftTransaction turns a log_expense/log_income result into a pending
// confirmation with confirm and cancel buttons.
func (e *Engine) draftTransaction(ctx context.Context, t *turn, res *nlu.Result, txType domain.TxType) error {
	args := e.normalizeArgs(res)
	if e.catalog != nil {
		if err := e.catalog.Validate(res.Intent, args); err != nil {
			var argErr *nlu.ArgumentError
			if !errors.As(err, &argErr) {
				return e.fail(ctx, t, "validate", err)
			}
			t.logger.Info("transaction arguments incomplete", "error", err)
			text := i18n.MissingTransactionDetails.In(t.lang)
			if len(argErr.Missing) > 0 {
				text += i18n.MissingFields.Format(t.lang, strings.Join(argErr.Missing, ", "))
			}
			return e.reply(ctx, t, text, "missing_fields", nil)
		}
	}

	amount, ok := args.Decimal("amount")
	description := args.String("description")
	if !ok || !amount.IsPositive() || description == "" {
		return e.reply(ctx, t, i18n.MissingTransactionDetails.In(t.lang), "missing_fields", nil)
	}

	accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
	if err != nil {
		e.countStoreError("get_user_accounts")
		return e.fail(ctx, t, "get_user_accounts", err)
	}
	account, ok := pickAccount(accounts, args.String("accountId"))
	if !ok {
		return e.reply(ctx, t, i18n.CreateAccountFirst.In(t.lang), "no_accounts", nil)
	}

	pending, err := e.sessions.GetPendingConfirmation(ctx, t.user.ID)
	if err != nil {
		return e.fail(ctx, t, "session", err)
	}
	if pending != nil {
		return e.reply(ctx, t, i18n.PendingExists.In(t.lang), "pending_exists", nil)
	}

	category := args.String("category")
	if category == "" {
		category = nlu.GuessCategory(txType, description)
	} else {
		category = domain.NormalizeCategory(txType, category)
	}

	draft := domain.Draft{
		ID:          confirm.NewDraftID(),
		UserID:      t.user.ID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		Category:    category,
		AccountID:   account.ID,
		AccountName: account.Name,
		Currency:    nonEmpty(account.Currency, e.currency),
		Date:        resolveDate(args.String("date"), e.now()),
		CreatedAt:   e.now().UTC(),
	}
	token, err := e.codec.Encode(draft)
	if err != nil {
		return e.fail(ctx, t, "encode_draft", err)
	}
	if _, err := e.sessions.SetPendingConfirmation(ctx, t.user.ID, draft, token); err != nil {
		return e.fail(ctx, t, "session", err)
	}
	if e.metrics != nil {
		e.metrics.Confirmations.WithLabelValues("prompted").Inc()
	}
	t.logger.Info("draft created", "draft_id", draft.ID, "type", draft.Type, "amount", draft.Amount.String())

	msg := confirmText(draft, t.lang)
	if res.NextAction != nlu.ActionExecute {
		msg += i18n.UnsureNote.In(t.lang)
	}
	return e.reply(ctx, t, msg, "confirm_prompt", confirmKeyboard(draft, t.ev.UserID, t.lang))
}

// normalizeArgs copies the entities into the shape the catalog validates:
// amounts become numbers and a missing confidence is taken from the result.
func (e *Engine) normalizeArgs(res *nlu.Result) nlu.Entities {
	args := make(nlu.Entities, len(res.Entities)+1)
	for k, v := range res.Entities {
		args[k] = v
	}
	if _, ok := args["confidence"]; !ok {
		args["confidence"] = res.Confidence
	}
	if raw, present := args["amount"]; present {
		if d, ok := args.Decimal("amount"); ok {
			args["amount"] = json.Number(d.String())
		} else if s, isString := raw.(string); isString && strings.TrimSpace(s) == "" {
			delete(args, "amount")
		}
	}
	return args
}

func pickAccount(accounts []domain.Account, ref string) (domain.Account, bool) {
	switch strings.ToLower(strings.TrimSpace(ref)) {
	case "", "default", "all":
	default:
		if acc, ok := matchAccount(accounts, ref); ok {
			return acc, true
		}
	}
	return domain.DefaultAccount(accounts)
}

// resolveDate maps the model's date field to YYYY-MM-DD, defaulting to today.
func resolveDate(value string, now time.Time) string {
	v := strings.ToLower(strings.TrimSpace(value))
	today := now.UTC()
	switch v {
	case "", "today", "now", "اليوم":
		return today.Format(domain.DateLayout)
	case "yesterday", "أمس", "امس", "البارحة":
		return today.AddDate(0, 0, -1).Format(domain.DateLayout)
	}
	if d, err := time.Parse(domain.DateLayout, v); err == nil {
		return d.Format(domain.DateLayout)
	}
	if d, err := time.Parse(time.RFC3339, value); err == nil {
		return d.UTC().Format(domain.DateLayout)
	}
	return today.Format(domain.DateLayout)
}

func confirmText(d domain.Draft, lang i18n.Lang) string {
	tmpl := i18n.ConfirmExpense
	if d.Type == domain.Income {
		tmpl = i18n.ConfirmIncome
	}
	return tmpl.Format(lang,
		domain.FormatMoney(d.Amount),
		d.Currency,
		d.Description,
		d.Category,
		d.AccountName,
		d.Date,
	)
}

func confirmKeyboard(d domain.Draft, telegramID int64, lang i18n.Lang) *telegram.InlineKeyboardMarkup {
	ok, cancel := confirm.ActionsFor(d.Type)
	return telegram.Row(
		telegram.InlineKeyboardButton{
			Text:         i18n.ConfirmButton.In(lang),
			CallbackData: confirm.Callback{Action: ok, UserID: telegramID, DraftID: d.ID}.String(),
		},
		telegram.InlineKeyboardButton{
			Text:         i18n.CancelButton.In(lang),
			CallbackData: confirm.Callback{Action: cancel, UserID: telegramID, DraftID: d.ID}.String(),
		},
	)
}
