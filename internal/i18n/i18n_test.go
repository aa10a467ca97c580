package i18n

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	require.Equal(t, AR, Detect("hello", "ar-EG"))
	require.Equal(t, AR, Detect("دفعت 50 على قهوة", "en"))
	require.Equal(t, EN, Detect("paid 50 for coffee", "en-US"))
	require.Equal(t, EN, Detect("", ""))
}

func TestTextIn_FallsBackToEnglish(t *testing.T) {
	txt := Text{EN: "hi"}
	require.Equal(t, "hi", txt.In(AR))
	require.Equal(t, "مرحبا", Text{EN: "hi", AR: "مرحبا"}.In(AR))
}

func TestParse(t *testing.T) {
	require.Equal(t, AR, Parse("ar"))
	require.Equal(t, EN, Parse("fr"))
	require.Equal(t, EN, Parse(""))
}

func TestFormat(t *testing.T) {
	require.Equal(t, "⭐ *Cash* is now your default account.", DefaultAccountSet.Format(EN, "Cash"))
}
