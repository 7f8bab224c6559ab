package standx

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// listFrom accepts a bare list or an object wrapping one under result/data.
func listFrom(v any) []any {
	if s, ok := toSlice(v); ok {
		return s
	}
	if m, ok := toMap(v); ok {
		for _, key := range []string{"result", "data", "positions"} {
			if s, ok := toSlice(m[key]); ok {
				return s
			}
		}
	}
	return nil
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func floatFromMap(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// timeFromAny reads RFC3339 strings and unix seconds or milliseconds.
func timeFromAny(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
			return ts, true
		}
	}
	f, ok := floatFromAny(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)), true
	}
	return time.Unix(int64(f), 0), true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
