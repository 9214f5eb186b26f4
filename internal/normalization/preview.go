package normalization

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Preview renders v for diagnostics, truncated to limit runes. Values that
// cannot be encoded (cycles, channels) render as a type placeholder.
func Preview(v any, limit int) string {
	var s string
	switch t := v.(type) {
	case nil:
		s = "null"
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("<unencodable %s>", kindOf(v))
		} else {
			s = string(raw)
		}
	}
	return truncateRunes(s, limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", v)
}

// stringOf renders scalar values as text. Containers are JSON encoded and
// anything unencodable becomes "".
func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
