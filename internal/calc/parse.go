package calc

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Accepted layouts, tried in order. Go's "15" hour field takes one or two
// digits, so "15:04:05" covers both hh:mm:ss and h:mm:ss.
var (
	dateLayouts = []string{"2006-01-02", "2006/01/02"}
	timeLayouts = []string{"15:04:05", "15:04"}
)

// ParseDate parses yyyy-MM-dd or yyyy/MM/dd. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime parses a time of day (hh:mm:ss, h:mm:ss or hh:mm) and returns
// it as an offset from midnight.
// time.Parse accepts a fractional second after "05" even when the layout has
// none, so input with a decimal separator is rejected first.
func ParseTime(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, ".,") {
		return 0, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			h, m, sec := t.Clock()
			return time.Duration(h)*time.Hour +
				time.Duration(m)*time.Minute +
				time.Duration(sec)*time.Second, true
		}
	}
	return 0, false
}

// ParseNumber parses a locale-independent decimal. Non-finite values are
// rejected.
func ParseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ConvertSeconds expresses seconds in unit. Unknown units are left in
// seconds.
func ConvertSeconds(seconds float64, unit string) float64 {
	switch unit {
	case "h":
		return seconds / 3600
	case "min":
		return seconds / 60
	default:
		return seconds
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
