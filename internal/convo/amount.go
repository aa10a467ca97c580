package convo

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"finbot/internal/nlu"
)

var amountRegex = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?\s*[kK]?`)

var errNoAmount = errors.New("no numeric value")

// parseAmount reads an amount typed by the user, e.g. "5000", "5,000 EGP",
// "2.5k" or "٥٠٠٠". A leading minus is kept for credit balances.
func parseAmount(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.Decimal{}, errNoAmount
	}
	if d, err := nlu.ParseMoney(text); err == nil {
		return d, nil
	}
	match := amountRegex.FindString(text)
	if match == "" {
		return decimal.Decimal{}, errNoAmount
	}
	return nlu.ParseMoney(match)
}
