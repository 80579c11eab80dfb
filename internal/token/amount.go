package token

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	termerr "github.com/defiterm/defiterm/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount converts a human decimal amount into base units for the given
// token decimals, returning base units and the normalized decimal form.
func ParseAmount(decimal string, decimals int) (string, string, error) {
	decimal = strings.TrimSpace(decimal)
	if decimal == "" {
		return "", "", termerr.New(termerr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return "", "", termerr.New(termerr.CodeUsage, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(decimal) {
		return "", "", termerr.New(termerr.CodeUsage, "amount must be in decimal form like 1.23")
	}

	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return "", "", termerr.New(termerr.CodeUsage,
			fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	combined := intPart + fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined = strings.TrimLeft(combined, "0")
	if combined == "" {
		combined = "0"
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", "", termerr.New(termerr.CodeUsage, "invalid decimal amount")
	}
	return combined, normalizeDecimal(decimal), nil
}

// FormatDecimal renders a base-unit integer string as a decimal string.
func FormatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	if _, ok := n.SetString(baseUnits, 10); !ok {
		return baseUnits
	}
	if decimals == 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func normalizeDecimal(v string) string {
	if !strings.Contains(v, ".") {
		out := strings.TrimLeft(v, "0")
		if out == "" {
			return "0"
		}
		return out
	}
	parts := strings.SplitN(v, ".", 2)
	intPart := strings.TrimLeft(parts[0], "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart := strings.TrimRight(parts[1], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
