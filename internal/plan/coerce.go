package plan

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingNumber matches the numeric prefix of a string such as "500 kcal"
// or "450-500".
var leadingNumber = regexp.MustCompile(`^[-+]?(\d+(\.\d+)?|\.\d+)`)

// toNumber coerces a leaf value to a float. Strings yield their leading
// numeric prefix; anything unparseable yields 0.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case float64:
		return n
	case string:
		return parseLeading(n)
	}
	return 0
}

func parseLeading(s string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}

// toPositiveInt coerces v to a positive integer, falling back to def.
func toPositiveInt(v any, def int) int {
	n := int(math.Round(toNumber(v)))
	if n <= 0 {
		return def
	}
	return n
}

// restSeconds coerces a rest value. Strings mentioning minutes are scaled.
func restSeconds(v any, def int) int {
	secs := toNumber(v)
	if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), "min") {
		secs *= 60
	}
	n := int(math.Round(secs))
	if n <= 0 {
		return def
	}
	return n
}

// toText coerces a leaf value to a trimmed string. Numbers are formatted
// without a trailing fraction.
func toText(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		if f, err := s.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

// toTextList coerces a list of strings (or a single string) to a non-nil
// slice. Objects with a "name" field contribute that name.
func toTextList(v any) []string {
	out := []string{}
	switch l := v.(type) {
	case string:
		if s := strings.TrimSpace(l); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, e := range l {
			var s string
			if m, ok := e.(map[string]any); ok {
				s = toText(m["name"])
			} else {
				s = toText(e)
			}
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// first returns the first present, non-null value among keys.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// firstText returns the first non-empty text value among keys, or def.
func firstText(m map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		if s := toText(m[k]); s != "" {
			return s
		}
	}
	return def
}
