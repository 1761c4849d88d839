// Package core provides amount parsing and formatting utilities.
//
// Amounts are integer minor units. These helpers only deal with grouping
// separators for human input and output.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a non-negative integer amount string to minor units.
//
// Grouping separators (',', '_', ' ') are accepted and ignored. Signs,
// decimals and overflowing values are rejected.
//
// Examples:
//
//	ParseAmount("1200")      -> 1200, nil
//	ParseAmount("1,250,000") -> 1250000, nil
//	ParseAmount("-5")        -> 0, ErrInvalidAmount
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', '_', ' ':
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range cleaned {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders minor units with comma grouping, e.g. 1250000 -> "1,250,000".
func FormatAmount(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
