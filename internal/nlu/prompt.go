package nlu

import (
	"fmt"
	"strings"

	"finbot/internal/domain"
	"finbot/internal/i18n"
)

// PromptContext is the per-user context injected into the system prompt.
type PromptContext struct {
	Lang               i18n.Lang
	UserName           string
	Today              string
	Accounts           []domain.Account
	RecentTransactions []domain.Transaction
}

// BuildSystemPrompt renders the system prompt in the user's language.
func BuildSystemPrompt(pc PromptContext) string {
	var sb strings.Builder
	if pc.Lang == i18n.AR {
		writeArabicBase(&sb)
	} else {
		writeEnglishBase(&sb)
	}
	sb.WriteString("\n\n")
	writeUserContext(&sb, pc)
	sb.WriteString("\n")
	writeRules(&sb, pc.Lang)
	return sb.String()
}

func writeEnglishBase(sb *strings.Builder) {
	sb.WriteString("You are a financial assistant for a personal expense tracker on Telegram.\n")
	sb.WriteString("Help the user log expenses and income, check balances, list accounts and search past transactions.\n")
	sb.WriteString("Always answer by calling one of the provided functions.\n\n")
	sb.WriteString("Expense categories: Food & Drinks, Transportation, Shopping, Bills, Entertainment, Health, Education, Other.\n")
	sb.WriteString("Income categories: Salary, Freelance, Investment, Gift, Other.")
}

func writeArabicBase(sb *strings.Builder) {
	sb.WriteString("أنت مساعد مالي لتطبيق تتبع المصروفات الشخصية على تيليجرام.\n")
	sb.WriteString("ساعد المستخدم في تسجيل المصروفات والدخل، والاستعلام عن الرصيد، وعرض الحسابات، والبحث في المعاملات السابقة.\n")
	sb.WriteString("أجب دائماً باستدعاء إحدى الدوال المتاحة.\n\n")
	sb.WriteString("فئات المصروفات: Food & Drinks, Transportation, Shopping, Bills, Entertainment, Health, Education, Other.\n")
	sb.WriteString("فئات الدخل: Salary, Freelance, Investment, Gift, Other.")
}

func writeUserContext(sb *strings.Builder, pc PromptContext) {
	ar := pc.Lang == i18n.AR
	if ar {
		sb.WriteString("معلومات المستخدم:\n")
		sb.WriteString("- الاسم: " + nonEmpty(pc.UserName, "المستخدم") + "\n")
		sb.WriteString("- اللغة المفضلة: العربية\n")
	} else {
		sb.WriteString("User information:\n")
		sb.WriteString("- Name: " + nonEmpty(pc.UserName, "User") + "\n")
		sb.WriteString("- Preferred language: English\n")
	}
	if pc.Today != "" {
		sb.WriteString("- Today: " + pc.Today + "\n")
	}

	if len(pc.Accounts) > 0 {
		if ar {
			sb.WriteString("\nالحسابات:\n")
		} else {
			sb.WriteString("\nAccounts:\n")
		}
		for _, a := range pc.Accounts {
			line := fmt.Sprintf("- %s (%s, id %s): %s %s", a.Name, a.Type, a.ID, domain.FormatMoney(a.Balance), a.Currency)
			if a.IsDefault {
				line += " [default]"
			}
			sb.WriteString(line + "\n")
		}
	}

	if len(pc.RecentTransactions) > 0 {
		if ar {
			sb.WriteString("\nالمعاملات الأخيرة:\n")
		} else {
			sb.WriteString("\nRecent transactions:\n")
		}
		for i, tx := range pc.RecentTransactions {
			if i == 3 {
				break
			}
			fmt.Fprintf(sb, "%d. %s: %s %s - %s (%s)\n", i+1, tx.Type, domain.FormatMoney(tx.Amount), tx.Currency, tx.Description, tx.Category)
		}
	}
}

func writeRules(sb *strings.Builder, lang i18n.Lang) {
	if lang == i18n.AR {
		sb.WriteString("قواعد:\n")
		sb.WriteString("1. استنتج النية بدون كلمات مفتاحية. \"صرفت فلوس النهارده\" تعني تسجيل مصروف.\n")
		sb.WriteString("2. تابع سياق المحادثة السابقة.\n")
		sb.WriteString("3. إذا كان المبلغ غير مذكور أو غامض استخدم ask_clarification ولا تخمن أبداً.\n")
		sb.WriteString("4. بدون حساب محدد استخدم \"default\". بدون تاريخ استخدم \"today\". استنتج الفئة من الوصف.\n")
		sb.WriteString("5. أعط confidence بين 0 و 1: أقل من 0.7 للطلبات الغامضة، و0.85 أو أكثر عندما تكون متأكداً.\n")
		sb.WriteString("6. اكتب question في ask_clarification بالعربية وبشكل مختصر.\n")
		return
	}
	sb.WriteString("Rules:\n")
	sb.WriteString("1. Infer intent without keywords. \"I spent money today\" means log_expense.\n")
	sb.WriteString("2. Continue from the previous conversation turns.\n")
	sb.WriteString("3. If the amount is missing or ambiguous call ask_clarification. Never guess amounts.\n")
	sb.WriteString("4. No account given: use \"default\". No date: use \"today\". Infer the category from the description.\n")
	sb.WriteString("5. Report confidence between 0 and 1: below 0.7 when unsure, 0.85 or more when certain.\n")
	sb.WriteString("6. Keep clarification questions short and friendly.\n")
}

func nonEmpty(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
