package browser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// StringArg reads a predicted argument as text.
func StringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// IntArg reads a predicted coordinate, also accepting the upper-case key.
func IntArg(args map[string]any, key string) int {
	v, ok := args[key]
	if !ok {
		v = args[strings.ToUpper(key)]
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(math.Round(n))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(math.Round(f))
		}
	}
	return 0
}
