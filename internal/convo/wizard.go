package convo

import (
	"context"
	"errors"
	"strings"

	"finbot/internal/apperr"
	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/repo"
	"finbot/internal/session"
)

const maxAccountName = 50

func (e *Engine) startWizard(ctx context.Context, t *turn) error {
	if _, err := e.sessions.StartAccountCreation(ctx, t.user.ID); err != nil {
		return e.fail(ctx, t, "start_wizard", err)
	}
	e.countWizard(session.StepAwaitingType, "started")
	return e.reply(ctx, t, i18n.AskAccountType.In(t.lang), "wizard_type", nil)
}

// continueWizard feeds text to the current wizard step. Invalid input
// re-prompts the same step.
func (e *Engine) continueWizard(ctx context.Context, t *turn, wizard *session.AccountCreation, text string) error {
	switch wizard.Step {
	case session.StepAwaitingType:
		accType, ok := domain.ParseAccountType(text)
		if !ok {
			e.countWizard(wizard.Step, "invalid")
			return e.reply(ctx, t, i18n.InvalidAccountType.In(t.lang), "wizard_type_invalid", nil)
		}
		if _, err := e.sessions.AdvanceAccountCreation(ctx, t.user.ID, session.AccountUpdate{Type: accType}); err != nil {
			return e.restartWizard(ctx, t, err)
		}
		e.countWizard(wizard.Step, "ok")
		return e.reply(ctx, t, i18n.AskAccountName.In(t.lang), "wizard_name", nil)

	case session.StepAwaitingName:
		name := strings.Trim(strings.TrimSpace(text), `"'`)
		if n := len([]rune(name)); n == 0 || n > maxAccountName {
			e.countWizard(wizard.Step, "invalid")
			return e.reply(ctx, t, i18n.InvalidAccountName.In(t.lang), "wizard_name_invalid", nil)
		}
		if _, err := e.sessions.AdvanceAccountCreation(ctx, t.user.ID, session.AccountUpdate{Name: name}); err != nil {
			return e.restartWizard(ctx, t, err)
		}
		e.countWizard(wizard.Step, "ok")
		return e.reply(ctx, t, i18n.AskInitialBalance.In(t.lang), "wizard_balance", nil)

	case session.StepAwaitingBalance:
		balance, err := parseAmount(text)
		if err != nil {
			e.countWizard(wizard.Step, "invalid")
			return e.reply(ctx, t, i18n.InvalidBalance.In(t.lang), "wizard_balance_invalid", nil)
		}
		if balance.IsNegative() && !wizard.Type.AllowsNegative() {
			e.countWizard(wizard.Step, "invalid")
			return e.reply(ctx, t, i18n.NegativeBalance.In(t.lang), "wizard_balance_negative", nil)
		}
		done, err := e.sessions.AdvanceAccountCreation(ctx, t.user.ID, session.AccountUpdate{Balance: &balance})
		if err != nil {
			return e.restartWizard(ctx, t, err)
		}
		return e.finishWizard(ctx, t, done)
	}
	return e.restartWizard(ctx, t, session.ErrInvalidStep)
}

func (e *Engine) finishWizard(ctx context.Context, t *turn, wizard *session.AccountCreation) error {
	acc, err := e.store.CreateAccount(ctx, repo.NewAccount{
		UserID:   t.user.ID,
		Name:     wizard.Name,
		Type:     wizard.Type,
		Balance:  *wizard.Balance,
		Currency: e.currency,
	})
	if err != nil {
		e.countStoreError("create_account")
		e.countWizard(session.StepAwaitingBalance, "failed")
		if clearErr := e.sessions.Clear(ctx, t.user.ID); clearErr != nil {
			t.logger.Warn("clear wizard failed", "error", clearErr)
		}
		if apperr.CodeOf(repo.ToAppError(err)) == apperr.CodeInternal {
			t.logger.Error("create account failed", "error", err)
			return e.reply(ctx, t, i18n.WizardRestart.In(t.lang), "wizard_failed", nil)
		}
		return e.fail(ctx, t, "create_account", err)
	}
	if err := e.sessions.Clear(ctx, t.user.ID); err != nil {
		t.logger.Warn("clear wizard failed", "error", err)
	}
	e.countWizard(session.StepAwaitingBalance, "created")
	t.logger.Info("account created", "account_id", acc.ID, "type", acc.Type)

	text := i18n.AccountCreated.Format(t.lang,
		acc.Type.Emoji(),
		acc.Name,
		accountTypeName(acc.Type, t.lang),
		domain.FormatMoney(acc.Balance),
		acc.Currency,
	)
	return e.reply(ctx, t, text, "account_created", nil)
}

// restartWizard resets a wizard whose state no longer matches the input.
func (e *Engine) restartWizard(ctx context.Context, t *turn, cause error) error {
	if !errors.Is(cause, session.ErrInvalidStep) && !errors.Is(cause, session.ErrNoSession) {
		return e.fail(ctx, t, "wizard", cause)
	}
	t.logger.Warn("wizard state mismatch, resetting", "error", cause)
	if err := e.sessions.Clear(ctx, t.user.ID); err != nil {
		t.logger.Warn("clear wizard failed", "error", err)
	}
	e.countWizard("reset", "restart")
	return e.reply(ctx, t, i18n.WizardRestart.In(t.lang), "wizard_restart", nil)
}

func (e *Engine) countWizard(step session.Step, outcome string) {
	if e.metrics != nil {
		e.metrics.WizardSteps.WithLabelValues(string(step), outcome).Inc()
	}
}

func accountTypeName(t domain.AccountType, lang i18n.Lang) string {
	if name, ok := i18n.AccountTypeNames[string(t)]; ok {
		return name.In(lang)
	}
	return string(t)
}
