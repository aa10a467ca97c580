package convo

import (
	"context"
	"regexp"
	"strings"

	"finbot/internal/i18n"
)

var (
	createAccountRe = regexp.MustCompile(`(?i)\b(?:create|new|add|make)\s+(?:an?\s+|new\s+)?account\b|إنشاء حساب|انشاء حساب|حساب جديد`)
	listAccountsRe  = regexp.MustCompile(`(?i)^(?:(?:my|list|show)(?:\s+my)?\s+accounts|accounts)\s*[?!.]*$|حساباتي|اعرض الحسابات`)
	setDefaultRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^set\s+default(?:\s+account)?\s+to\s+(.+?)\s*[.!]*$`),
		regexp.MustCompile(`(?i)^(?:set|make)\s+(.+?)\s+(?:as\s+)?(?:my\s+)?(?:the\s+)?default(?:\s+account)?\s*[.!]*$`),
		regexp.MustCompile(`^اجعل\s+(.+?)\s+(?:الحساب\s+)?(?:ال)?افتراضي\s*$`),
	}
	cancelWords = map[string]bool{"cancel": true, "stop": true, "إلغاء": true, "الغاء": true}
)

// command returns the bot command in text without a @botname suffix.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := strings.Fields(text)[0]
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}

// preRoute answers commands and account keywords without the classifier.
// interrupt handles the commands that are honoured even in the middle of
// the account wizard.
func (e *Engine) interrupt(ctx context.Context, t *turn, text string) (bool, error) {
	switch command(text) {
	case "/start":
		name := nonEmpty(t.user.FirstName, t.user.Username, "there")
		return true, e.reply(ctx, t, i18n.Welcome.Format(t.lang, name), "welcome", nil)
	case "/help":
		return true, e.reply(ctx, t, i18n.Help.In(t.lang), "help", nil)
	case "/cancel":
		return true, e.cancelSession(ctx, t)
	}
	if cancelWords[strings.ToLower(text)] {
		return true, e.cancelSession(ctx, t)
	}
	return false, nil
}

// preRoute answers shortcut commands and keyword phrases without the
// classifier. It must not run while a wizard step is waiting for input.
func (e *Engine) preRoute(ctx context.Context, t *turn, text string) (bool, error) {
	switch command(text) {
	case "/accounts":
		return true, e.listAccounts(ctx, t)
	case "/balance":
		return true, e.checkBalance(ctx, t, "")
	case "/newaccount":
		return true, e.startWizard(ctx, t)
	}
	if createAccountRe.MatchString(text) {
		return true, e.startWizard(ctx, t)
	}
	if listAccountsRe.MatchString(text) {
		return true, e.listAccounts(ctx, t)
	}
	for _, re := range setDefaultRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return true, e.setDefaultAccount(ctx, t, strings.Trim(m[1], `"'`))
		}
	}
	return false, nil
}

func (e *Engine) cancelSession(ctx context.Context, t *turn) error {
	s, err := e.sessions.Get(ctx, t.user.ID)
	if err != nil {
		return e.fail(ctx, t, "session", err)
	}
	if s == nil {
		return e.reply(ctx, t, i18n.NothingToCancel.In(t.lang), "cancel_noop", nil)
	}
	if err := e.sessions.Clear(ctx, t.user.ID); err != nil {
		return e.fail(ctx, t, "session", err)
	}
	return e.reply(ctx, t, i18n.Cancelled.In(t.lang), "cancel", nil)
}
