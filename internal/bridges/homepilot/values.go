package homepilot

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The bridge is loose about primitive types: IDs arrive as strings or
// numbers, booleans as "true"/"false" strings, numbers as quoted decimals.
// These helpers normalise any JSON-decoded value.

// formatValue renders a decoded JSON primitive as a string.
// Nil renders as "".
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// toFloat converts a decoded JSON primitive to float64.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// toBool converts a decoded JSON primitive to bool.
// Numbers are true when non-zero.
func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b, true
		}
		if f, ok := toFloat(val); ok {
			return f != 0, true
		}
		return false, false
	default:
		if f, ok := toFloat(val); ok {
			return f != 0, true
		}
		return false, false
	}
}

// floatPtr returns a pointer to the float value of v, or nil.
func floatPtr(v any) *float64 {
	f, ok := toFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// boolPtr returns a pointer to the bool value of v, or nil.
func boolPtr(v any) *bool {
	b, ok := toBool(v)
	if !ok {
		return nil
	}
	return &b
}

// roundPercent rounds f to the nearest integer and clamps it to 0..100.
func roundPercent(f float64) int {
	p := int(math.Round(f))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
