package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Filter is a conjunctive range-query filter: a case-insensitive substring match on at least
// one text column, AND exact membership of Tag in the array column TagColumn. Empty parts match
// everything.
type Filter struct {
	Text        string
	TextColumns []string
	Tag         string
	TagColumn   string
}

// IsZero reports whether the filter matches every row.
func (f Filter) IsZero() bool {
	return f.Text == "" && f.Tag == ""
}

// Match evaluates the filter against a row. Backends without a query language use it directly.
func (f Filter) Match(row Row) bool {
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		found := false
		for _, col := range f.TextColumns {
			if s, ok := row[col].(string); ok && strings.Contains(strings.ToLower(s), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Tag != "" {
		found := false
		for _, t := range Strings(row[f.TagColumn]) {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Strings converts a decoded array column ([]string or []any) to []string.
func Strings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// timeLayouts are the timestamp encodings accepted from backends.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time decodes a timestamp column. Missing values decode to the zero time.
func Time(v any) (time.Time, error) {
	switch vv := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return vv, nil
	case string:
		if vv == "" {
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, vv); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", vv)
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

// timestampLayout is fixed-width, so encoded timestamps also sort as strings.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp encodes t the way rows carry timestamps.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SortKey normalizes a column value for ordering. Strings that decode as timestamps are
// re-encoded with Timestamp, so "09:00:00Z" and "09:00:00.5Z" compare chronologically.
// Other values are returned unchanged.
func SortKey(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return v
	}
	t, err := Time(s)
	if err != nil {
		return v
	}
	return Timestamp(t)
}

// Compare orders two column values: nil sorts first, then numbers, then strings.
// Timestamps compare by instant whatever their encoding.
func Compare(a, b any) int {
	a, b = SortKey(a), SortKey(b)
	af, aNum := number(a)
	bf, bNum := number(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
