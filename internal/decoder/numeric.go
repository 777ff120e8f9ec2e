package decoder

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses a number in the terminal's pt-BR format: "." groups
// thousands and "," separates decimals. The result is rounded to 3 decimal
// places. Blank or malformed input yields 0.
func ParseDecimal(s string) float64 {
	d, ok := parseLocale(s)
	if !ok {
		return 0
	}
	return d.Round(3).InexactFloat64()
}

// ParseInt parses a pt-BR formatted integer. Fractions are truncated.
func ParseInt(s string) int64 {
	d, ok := parseLocale(s)
	if !ok {
		return 0
	}
	return d.IntPart()
}

func parseLocale(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
