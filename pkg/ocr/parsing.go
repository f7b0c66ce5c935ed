package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

// amountRE matches currency-like numerals: digit groups separated by '.' or
// space as thousands, an optional ",NN" decimal suffix, optional leading '$'.
var amountRE = regexp.MustCompile(`\$?\s*(?:[0-9]{1,3}(?:[.\s][0-9]{3})+|[0-9]+)(?:,[0-9]{2})?`)

// maxPlainDigits rejects separator-less digit runs longer than this as amount
// candidates; longer runs are ids (tax ids, accounts, RRNs), not money.
// Amounts past seven digits are always printed with grouping separators.
const maxPlainDigits = 7

// NormalizeAmount converts a matched currency substring into whole currency
// units. When both '.' and ',' are present, dots are thousands separators and
// the comma starts a decimal part; a lone comma starts a decimal part; lone
// dots are thousands separators. Decimal parts are truncated, not rounded.
// Re-normalizing an already-normalized value is a no-op.
func NormalizeAmount(s string) (int64, bool) {
	clean := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, s)
	if clean == "" {
		return 0, false
	}
	hasDot := strings.Contains(clean, ".")
	hasComma := strings.Contains(clean, ",")
	switch {
	case hasDot && hasComma:
		clean = strings.ReplaceAll(clean, ".", "")
		clean = clean[:strings.IndexByte(clean, ',')]
	case hasComma:
		clean = clean[:strings.IndexByte(clean, ',')]
	case hasDot:
		clean = strings.ReplaceAll(clean, ".", "")
	}
	if clean == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// findAmount scans text for currency-like numerals and returns the maximum
// normalized candidate. Receipts reliably print the transferred sum as the
// largest figure; smaller figures are fees or taxes. This is a documented
// heuristic, not a guarantee. Ties keep the first occurrence in document
// order. Returns nil when no candidate normalizes.
func findAmount(text string) *int64 {
	var best *int64
	for _, m := range amountRE.FindAllString(text, -1) {
		// The match may carry a "$ " prefix; only the numeral decides whether
		// this is a separator-less run.
		numeral := strings.TrimLeft(m, "$ \t")
		if !strings.ContainsAny(numeral, "., ") && len(numeral) > maxPlainDigits {
			continue
		}
		n, ok := NormalizeAmount(m)
		if !ok {
			continue
		}
		if best == nil || n > *best {
			v := n
			best = &v
		}
	}
	return best
}
