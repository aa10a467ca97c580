// Package i18n holds the bilingual (English/Arabic) user-facing text.
package i18n

import (
	"fmt"
	"strings"
	"unicode"
)

// Lang is a supported user language.
type Lang string

const (
	EN Lang = "en"
	AR Lang = "ar"
)

// Parse normalises a stored language preference. Unknown values are English.
func Parse(s string) Lang {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "ar") {
		return AR
	}
	return EN
}

// Text is one message in both languages.
type Text struct {
	EN string
	AR string
}

// In returns the message for lang, falling back to English.
func (t Text) In(lang Lang) string {
	if lang == AR && t.AR != "" {
		return t.AR
	}
	return t.EN
}

// Format renders the message for lang with fmt verbs.
func (t Text) Format(lang Lang, args ...any) string {
	return fmt.Sprintf(t.In(lang), args...)
}

// Detect picks the user's language from the Telegram language code or, failing
// that, from the script of the message text.
func Detect(text, languageCode string) Lang {
	if strings.HasPrefix(strings.ToLower(languageCode), "ar") {
		return AR
	}
	if HasArabic(text) {
		return AR
	}
	return EN
}

// HasArabic reports whether s contains any Arabic-script rune.
func HasArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
