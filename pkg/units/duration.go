package units

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatMinutes renders a total-minute count as "Xd Yh Zm". Zero leading
// components are omitted; the minute component is always present so the
// output parses back to the same total.
func FormatMinutes(total int) string {
	if total < 0 {
		return "-"
	}
	days := total / 1440
	hours := (total % 1440) / 60
	mins := total % 60

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if hours > 0 || days > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	fmt.Fprintf(&b, "%dm", mins)
	return b.String()
}

// ParseMinutes reverses FormatMinutes, returning the total minute count.
func ParseMinutes(s string) (int, error) {
	if s == "-" {
		return -1, nil
	}
	total := 0
	for _, field := range strings.Fields(s) {
		if field == "" {
			continue
		}
		unit := field[len(field)-1]
		n, err := strconv.Atoi(field[:len(field)-1])
		if err != nil {
			return 0, fmt.Errorf("parse duration field %q: %w", field, err)
		}
		switch unit {
		case 'd':
			total += n * 1440
		case 'h':
			total += n * 60
		case 'm':
			total += n
		default:
			return 0, fmt.Errorf("unknown duration unit in %q", field)
		}
	}
	return total, nil
}
