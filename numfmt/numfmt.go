// Package numfmt renders ledger amounts and rates as canonical,
// locale-independent strings. Stored detail lines always use the plain
// variants; the grouped variant exists only for chat display.
package numfmt

import (
	"math"
	"strconv"
	"strings"
)

// fracTolerance is the threshold under which a value is treated as an
// integer for display purposes.
const fracTolerance = 1e-9

// Amount renders n without thousands separators: a rounded integer when the
// fractional part is negligible, otherwise exactly two decimals.
func Amount(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	rounded := math.Round(n)
	if math.Abs(n-rounded) < fracTolerance {
		return strconv.FormatFloat(rounded, 'f', 0, 64)
	}
	return strconv.FormatFloat(n, 'f', 2, 64)
}

// GroupedAmount renders n like Amount but inserts comma thousands
// separators into the integer part.
func GroupedAmount(n float64) string {
	return group(Amount(n))
}

// Rate renders a percentage or exchange rate with exactly two decimals.
// Non-finite input renders as "0.00".
func Rate(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0.00"
	}
	return strconv.FormatFloat(n, 'f', 2, 64)
}

func group(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
		if len(intPart) > lead {
			b.WriteByte(',')
		}
	}
	for i := lead; i < len(intPart); i += 3 {
		b.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			b.WriteByte(',')
		}
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
