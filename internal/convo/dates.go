package convo

import (
	"strings"
	"time"

	"finbot/internal/domain"
)

// resolveRange turns the model's dateRange into inclusive YYYY-MM-DD bounds.
// start may be a relative period ("this week", "last month"), in which case
// it sets both bounds unless end is given explicitly.
func resolveRange(start, end string, now time.Time) (from, to string) {
	today := now.UTC().Truncate(24 * time.Hour)
	if s, e, ok := period(start, today); ok {
		from, to = s, e
	} else if d, ok := isoDate(start); ok {
		from = d
	}
	if e := strings.ToLower(strings.TrimSpace(end)); e != "" {
		switch {
		case e == "today" || e == "now" || e == "اليوم":
			to = today.Format(domain.DateLayout)
		default:
			if d, ok := isoDate(e); ok {
				to = d
			} else if _, pe, ok := period(e, today); ok {
				to = pe
			}
		}
	}
	return from, to
}

func period(value string, today time.Time) (from, to string, ok bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	day := func(t time.Time) string { return t.Format(domain.DateLayout) }

	switch v {
	case "today", "اليوم":
		return day(today), day(today), true
	case "yesterday", "أمس", "امس":
		y := today.AddDate(0, 0, -1)
		return day(y), day(y), true
	case "this week", "هذا الأسبوع", "هذا الاسبوع":
		start := startOfWeek(today)
		return day(start), day(today), true
	case "last week", "الأسبوع الماضي", "الاسبوع الماضي":
		start := startOfWeek(today).AddDate(0, 0, -7)
		return day(start), day(start.AddDate(0, 0, 6)), true
	case "this month", "هذا الشهر":
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return day(start), day(today), true
	case "last month", "الشهر الماضي":
		start := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return day(start), day(start.AddDate(0, 1, -1)), true
	case "this year", "هذه السنة", "هذا العام":
		start := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return day(start), day(today), true
	}
	return "", "", false
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func isoDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if d, err := time.Parse(domain.DateLayout, v); err == nil {
		return d.Format(domain.DateLayout), true
	}
	if d, err := time.Parse(time.RFC3339, v); err == nil {
		return d.UTC().Format(domain.DateLayout), true
	}
	return "", false
}
