package fetch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Helpers for reading loosely-typed CKAN record fields. Normalization must
// be deterministic, so every conversion here is pure.

func strField(r RawRecord, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

func intField(r RawRecord, key string) int {
	v, ok := r[key]
	if !ok || v == nil {
		return 0
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func floatField(r RawRecord, key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(val, ",", "."))
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dateField parses a portal date string and truncates it to midnight UTC.
func dateField(r RawRecord, key string) *time.Time {
	raw := strField(r, key)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

// daysBetween returns whole days from a to b, or nil when either is
// missing or the interval is negative (bad upstream data).
func daysBetween(a, b *time.Time) *int {
	if a == nil || b == nil {
		return nil
	}
	days := int(b.Sub(*a).Hours() / 24)
	if days < 0 {
		return nil
	}
	return &days
}
