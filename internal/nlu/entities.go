package nlu

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Entities are the fields extracted for an intent, as decoded from JSON with
// numbers kept as json.Number.
type Entities map[string]any

// String returns the trimmed string at key. Numbers are formatted.
func (e Entities) String(key string) string {
	switch v := e[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Float returns a numeric field. Numeric strings are accepted.
func (e Entities) Float(key string) (float64, bool) {
	switch v := e[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Decimal returns a money field. Strings like "1,250.50 EGP" are accepted.
func (e Entities) Decimal(key string) (decimal.Decimal, bool) {
	switch v := e[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case string:
		d, err := ParseMoney(v)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// Bool returns a boolean field. ok is false when the key is absent or not a bool.
func (e Entities) Bool(key string) (value, ok bool) {
	switch v := e[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	}
	return false, false
}

// Strings returns a list of strings; a single string becomes a one-element list.
func (e Entities) Strings(key string) []string {
	switch v := e[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

// Map returns a nested object, or nil.
func (e Entities) Map(key string) Entities {
	if m, ok := e[key].(map[string]any); ok {
		return Entities(m)
	}
	return nil
}

// ParseMoney parses an amount typed by a person or a model: thousands
// separators, currency words and a k suffix are tolerated.
func ParseMoney(s string) (decimal.Decimal, error) {
	clean := strings.ToLower(strings.TrimSpace(s))
	for _, cur := range []string{"egp", "usd", "le", "pounds", "pound", "جنيه", "ج.م", "$"} {
		clean = strings.ReplaceAll(clean, cur, "")
	}
	clean = strings.ReplaceAll(clean, ",", "")
	clean = strings.ReplaceAll(clean, "٬", "")
	clean = strings.TrimSpace(toASCIIDigits(clean))

	multiplier := decimal.NewFromInt(1)
	if strings.HasSuffix(clean, "k") {
		multiplier = decimal.NewFromInt(1000)
		clean = strings.TrimSpace(strings.TrimSuffix(clean, "k"))
	}
	if clean == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Mul(multiplier), nil
}

// toASCIIDigits maps Arabic-Indic digits and the Arabic decimal separator.
func toASCIIDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r == '٫':
			b.WriteRune('.')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
