package nlu

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"finbot/internal/domain"
)

var (
	boldAmountRe  = regexp.MustCompile(`(?i)\*\*\$?(\d+(?:\.\d{1,2})?)\s*(?:EGP|USD|pounds?|جنيه)?\*\*`)
	plainAmountRe = regexp.MustCompile(`(?i)(\d+(?:\.\d{1,2})?)\s*(?:EGP|USD|pounds?|جنيه)`)

	expenseCueRe = regexp.MustCompile(`(?i)spent|paid|expense|bought|purchase|اشتريت|دفعت|صرفت|💸`)
	incomeCueRe  = regexp.MustCompile(`(?i)earned|received|income|salary|استلمت|قبضت|راتب|مرتب|دخل|💰`)

	boldAfterPrepRe  = regexp.MustCompile(`(?i)(?:on|for)\s+\*\*([^*]+)\*\*`)
	boldAfterVerbRe  = regexp.MustCompile(`(?i)(?:spent|bought|اشتريت).*?(?:on|for|)\s*\*\*([^*]+)\*\*`)
	anyBoldRe        = regexp.MustCompile(`\*\*([^*\d][^*]*)\*\*`)
	moneyWordRe      = regexp.MustCompile(`(?i)^\d|EGP|USD|pounds|جنيه`)
	plainAfterPrepRe = regexp.MustCompile(`(?i)(?:\bon|\bfor|على)\s+([\p{L}][\p{L}' ]{0,40}?)\s*(?:[.,!?\n]|$)`)
)

type categoryRule struct {
	category string
	re       *regexp.Regexp
}

var expenseRules = []categoryRule{
	{domain.CategoryFood, regexp.MustCompile(`(?i)food|coffee|restaurant|cafe|lunch|dinner|breakfast|grocer|قهو|طعام|أكل|غداء|عشاء|🍔|☕`)},
	{domain.CategoryTransport, regexp.MustCompile(`(?i)transport|uber|taxi|bus|metro|fuel|gas|مواصلات|تاكسي|بنزين|🚗|🚌`)},
	{domain.CategoryShopping, regexp.MustCompile(`(?i)shopping|store|mall|clothes|تسوق|ملابس|🛍`)},
	{domain.CategoryBills, regexp.MustCompile(`(?i)bills?|electricity|water|internet|rent|فواتير|فاتورة|كهرباء|إيجار|💡`)},
	{domain.CategoryEntertainment, regexp.MustCompile(`(?i)entertainment|movie|cinema|game|ترفيه|سينما|🎬|🎮`)},
	{domain.CategoryHealth, regexp.MustCompile(`(?i)health|doctor|medicine|pharmacy|صحة|طبيب|دواء|صيدلية|💊`)},
	{domain.CategoryEducation, regexp.MustCompile(`(?i)education|school|course|book|تعليم|مدرسة|كورس|📚`)},
}

var incomeRules = []categoryRule{
	{domain.CategorySalary, regexp.MustCompile(`(?i)salary|payroll|راتب|مرتب`)},
	{domain.CategoryFreelance, regexp.MustCompile(`(?i)freelance|client|project|عمل حر|مشروع`)},
	{domain.CategoryInvestment, regexp.MustCompile(`(?i)invest|dividend|interest|استثمار|أرباح`)},
	{domain.CategoryGift, regexp.MustCompile(`(?i)gift|present|هدية|🎁`)},
}

// ExtractedTransaction is what the prose fallback could recover.
type ExtractedTransaction struct {
	Income      bool
	Amount      decimal.Decimal
	Description string
	Category    string
}

// ExtractTransaction finds an amount with a currency marker in free text and
// guesses the type, description and category around it.
func ExtractTransaction(text string) (ExtractedTransaction, bool) {
	m := boldAmountRe.FindStringSubmatch(text)
	if m == nil {
		m = plainAmountRe.FindStringSubmatch(text)
	}
	if m == nil {
		return ExtractedTransaction{}, false
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil || !amount.IsPositive() {
		return ExtractedTransaction{}, false
	}

	income := isIncome(text)

	out := ExtractedTransaction{
		Income:      income,
		Amount:      amount,
		Description: extractDescription(text),
	}
	out.Category = categorise(text, income)
	return out, true
}

// GuessCategory picks a category of t from keywords in text.
func GuessCategory(t domain.TxType, text string) string {
	return categorise(text, t == domain.Income)
}

// isIncome reports whether text reads as money coming in. Expense is the
// default; when both kinds of cue appear the earlier one decides.
func isIncome(text string) bool {
	in := incomeCueRe.FindStringIndex(text)
	if in == nil {
		return false
	}
	out := expenseCueRe.FindStringIndex(text)
	return out == nil || in[0] < out[0]
}

func extractDescription(text string) string {
	if m := boldAfterPrepRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := boldAfterVerbRe.FindStringSubmatch(text); m != nil {
		if d := strings.TrimSpace(m[1]); !moneyWordRe.MatchString(d) {
			return d
		}
	}
	for _, m := range anyBoldRe.FindAllStringSubmatch(text, -1) {
		if d := strings.TrimSpace(m[1]); !moneyWordRe.MatchString(d) {
			return d
		}
	}
	if m := plainAfterPrepRe.FindStringSubmatch(text); m != nil {
		if d := strings.TrimSpace(m[1]); d != "" && !moneyWordRe.MatchString(d) {
			return d
		}
	}
	return "Transaction"
}

func categorise(text string, income bool) string {
	rules := expenseRules
	if income {
		rules = incomeRules
	}
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.category
		}
	}
	return domain.CategoryOther
}
