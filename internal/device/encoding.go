package device

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseOption extracts the active option from a list such as
// "auto [fixed] curve". A bare value that is itself a valid option is
// accepted as well.
func ParseOption(raw string, options []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "[") {
		for _, option := range options {
			if strings.Contains(raw, "["+option+"]") {
				return option, nil
			}
		}
		return "", fmt.Errorf("no known option marked active in %q", raw)
	}
	for _, option := range options {
		if raw == option {
			return option, nil
		}
	}
	return "", fmt.Errorf("unknown option %q", raw)
}

// FormatOptions renders options with the active one bracket-marked, the way
// the driver reports them.
func FormatOptions(active string, options []string) string {
	parts := make([]string, len(options))
	for i, option := range options {
		if option == active {
			parts[i] = "[" + option + "]"
		} else {
			parts[i] = option
		}
	}
	return strings.Join(parts, " ")
}

// ParseInt parses an integer attribute.
func ParseInt(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", raw, err)
	}
	return v, nil
}

// ParseCurve parses exactly n comma- or space-separated integers.
func ParseCurve(raw string, n int) ([]int, error) {
	fields := strings.Fields(strings.ReplaceAll(raw, ",", " "))
	if len(fields) != n {
		return nil, fmt.Errorf("curve %q has %d points, want %d", raw, len(fields), n)
	}
	values := make([]int, n)
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid curve point %q: %w", field, err)
		}
		values[i] = v
	}
	return values, nil
}

// FormatCurve joins curve points with commas.
func FormatCurve(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
