package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finbot/internal/domain"
	"finbot/internal/i18n"
	"finbot/internal/nlu"
	"finbot/internal/repo"
)

const (
	searchListLimit = 10
	searchScanLimit = 500
)

func (e *Engine) checkBalance(ctx context.Context, t *turn, ref string) error {
	accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
	if err != nil {
		e.countStoreError("get_user_accounts")
		return e.fail(ctx, t, "get_user_accounts", err)
	}
	if len(accounts) == 0 {
		return e.reply(ctx, t, i18n.NoAccounts.In(t.lang), "balance_empty", nil)
	}
	if r := strings.ToLower(strings.TrimSpace(ref)); r != "" && r != "all" && r != "default" {
		if acc, ok := matchAccount(accounts, ref); ok {
			accounts = []domain.Account{acc}
		}
	}

	var sb strings.Builder
	sb.WriteString(i18n.BalanceHeader.In(t.lang))
	for _, acc := range accounts {
		fmt.Fprintf(&sb, "%s *%s*: %s %s", acc.Type.Emoji(), acc.Name, domain.FormatMoney(acc.Balance), acc.Currency)
		if acc.IsDefault {
			sb.WriteString(i18n.DefaultMarker.In(t.lang))
		}
		sb.WriteString("\n")
	}
	if len(accounts) > 1 {
		sb.WriteString(i18n.TotalBalance.Format(t.lang, domain.FormatMoney(totalBalance(accounts)), e.currency))
	}
	return e.reply(ctx, t, strings.TrimRight(sb.String(), "\n"), "balance", nil)
}

func (e *Engine) listAccounts(ctx context.Context, t *turn) error {
	accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
	if err != nil {
		e.countStoreError("get_user_accounts")
		return e.fail(ctx, t, "get_user_accounts", err)
	}
	if len(accounts) == 0 {
		return e.reply(ctx, t, i18n.NoAccounts.In(t.lang), "accounts_empty", nil)
	}

	var sb strings.Builder
	sb.WriteString(i18n.AccountsHeader.In(t.lang))
	for _, acc := range accounts {
		fmt.Fprintf(&sb, "%s *%s* (%s)", acc.Type.Emoji(), acc.Name, accountTypeName(acc.Type, t.lang))
		if acc.IsDefault {
			sb.WriteString(i18n.DefaultMarker.In(t.lang))
		}
		fmt.Fprintf(&sb, "\n    %s %s\n", domain.FormatMoney(acc.Balance), acc.Currency)
	}
	sb.WriteString(i18n.TotalBalance.Format(t.lang, domain.FormatMoney(totalBalance(accounts)), e.currency))
	return e.reply(ctx, t, sb.String(), "accounts", nil)
}

func (e *Engine) setDefaultAccount(ctx context.Context, t *turn, name string) error {
	accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
	if err != nil {
		e.countStoreError("get_user_accounts")
		return e.fail(ctx, t, "get_user_accounts", err)
	}
	if len(accounts) == 0 {
		return e.reply(ctx, t, i18n.NoAccounts.In(t.lang), "accounts_empty", nil)
	}
	acc, ok := matchAccount(accounts, name)
	if !ok {
		return e.reply(ctx, t, i18n.AccountNotFound.Format(t.lang, name), "account_not_found", nil)
	}
	if err := e.store.SetDefaultAccount(ctx, t.user.ID, acc.ID); err != nil {
		e.countStoreError("set_default_account")
		if errors.Is(err, repo.ErrNotFound) {
			return e.reply(ctx, t, i18n.AccountNotFound.Format(t.lang, name), "account_not_found", nil)
		}
		return e.fail(ctx, t, "set_default_account", err)
	}
	return e.reply(ctx, t, i18n.DefaultAccountSet.Format(t.lang, acc.Name), "default_set", nil)
}

func (e *Engine) searchTransactions(ctx context.Context, t *turn, args nlu.Entities) error {
	filter := repo.TransactionFilter{UserID: t.user.ID, Limit: searchScanLimit}

	switch domain.TxType(strings.ToLower(args.String("type"))) {
	case domain.Expense:
		filter.Type = domain.Expense
	case domain.Income:
		filter.Type = domain.Income
	}
	if label := args.String("category"); label != "" {
		filter.Category = searchCategory(filter.Type, label)
	}
	if d, ok := args.Decimal("minAmount"); ok {
		filter.MinAmount = &d
	}
	if d, ok := args.Decimal("maxAmount"); ok {
		filter.MaxAmount = &d
	}
	if ref := args.String("accountId"); ref != "" && !strings.EqualFold(ref, "all") {
		accounts, err := e.store.GetUserAccounts(ctx, t.user.ID)
		if err != nil {
			e.countStoreError("get_user_accounts")
			return e.fail(ctx, t, "get_user_accounts", err)
		}
		if acc, ok := matchAccount(accounts, ref); ok {
			filter.AccountID = acc.ID
		}
	}
	if r := args.Map("dateRange"); r != nil {
		filter.FromDate, filter.ToDate = resolveRange(r.String("start"), r.String("end"), e.now())
	}

	txs, err := e.store.SearchTransactions(ctx, filter)
	if err != nil {
		e.countStoreError("search_transactions")
		return e.fail(ctx, t, "search_transactions", err)
	}
	if len(txs) == 0 {
		return e.reply(ctx, t, i18n.SearchNoResults.In(t.lang), "search_empty", nil)
	}
	return e.reply(ctx, t, formatSearch(txs, args.String("aggregation"), e.currency, t.lang), "search", nil)
}

// searchCategory resolves a model label to a stored category. Without a type
// filter the expense set is tried first, then the income set.
func searchCategory(t domain.TxType, label string) string {
	if t != "" {
		return domain.NormalizeCategory(t, label)
	}
	cat := domain.NormalizeCategory(domain.Expense, label)
	if cat == domain.CategoryOther {
		if inc := domain.NormalizeCategory(domain.Income, label); inc != domain.CategoryOther {
			return inc
		}
	}
	return cat
}

func formatSearch(txs []domain.Transaction, aggregation, currency string, lang i18n.Lang) string {
	var sb strings.Builder
	sb.WriteString(i18n.SearchHeader.In(lang))

	shown := txs
	if len(shown) > searchListLimit {
		shown = shown[:searchListLimit]
	}
	for _, tx := range shown {
		sign := "-"
		icon := "💸"
		if tx.Type == domain.Income {
			sign, icon = "+", "💰"
		}
		fmt.Fprintf(&sb, "%s %s: %s%s %s (%s)\n", icon, tx.Date, sign, domain.FormatMoney(tx.Amount), tx.Currency, tx.Description)
	}
	if len(txs) > len(shown) {
		sb.WriteString(i18n.SearchMore.Format(lang, len(shown), len(txs)))
		sb.WriteString("\n")
	}

	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	switch strings.ToLower(aggregation) {
	case "sum":
		sb.WriteString("\n" + i18n.SearchSum.Format(lang, domain.FormatMoney(total), currency, len(txs)))
	case "count":
		sb.WriteString("\n" + i18n.SearchCount.Format(lang, len(txs)))
	case "average":
		avg := total.Div(decimal.NewFromInt(int64(len(txs))))
		sb.WriteString("\n" + i18n.SearchAverage.Format(lang, domain.FormatMoney(avg), currency, len(txs)))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func totalBalance(accounts []domain.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
