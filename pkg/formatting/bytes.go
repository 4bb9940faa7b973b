// Package formatting converts byte sizes between int64 counts and
// human-readable strings such as "50MB" or "1.5 MB".
package formatting

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Base-1024 unit suffixes, indexed by exponent.
var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes renders n with the largest unit that keeps the value at or
// above one. Negative precision is treated as zero.
func FormatBytes(n int64, precision int) string {
	if n == 0 {
		return "0 B"
	}
	precision = max(precision, 0)

	exp := 0
	v := float64(n)
	for math.Abs(v) >= 1024 && exp < len(units)-1 {
		v /= 1024
		exp++
	}
	return strconv.FormatFloat(v, 'f', precision, 64) + " " + units[exp]
}

// ParseBytes reads a size like "512", "10mb", or "1.5 GB". A bare number
// is bytes. Units are case-insensitive and may follow a space.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	num, unit := s, ""
	if split >= 0 {
		num, unit = s[:split], strings.TrimSpace(s[split:])
	}
	if num == "" {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	exp := 0
	if unit != "" {
		exp = slices.Index(units, strings.ToUpper(unit))
		if exp < 0 {
			return 0, fmt.Errorf("unknown byte size unit %q", unit)
		}
	}
	return int64(v * math.Pow(1024, float64(exp))), nil
}
