package ocr

import (
	"regexp"
	"strings"
)

// Fields is the transient result of heuristic extraction. Every field is
// optional; it is never persisted standalone, only merged into a conversion.
type Fields struct {
	Amount        *int64
	OperationNo   *string
	Reference     *string
	Date          *string
	OriginName    *string
	OriginCUIT    *string
	OriginAccount *string
	OriginBank    *string
	DestName      *string
	DestCUIT      *string
	DestAccount   *string
	DestBank      *string
}

// Target field names for the rule table.
const (
	fieldOperationNo   = "operation_no"
	fieldReference     = "reference"
	fieldDate          = "date"
	fieldOriginCUIT    = "origin_cuit"
	fieldDestCUIT      = "dest_cuit"
	fieldOriginAccount = "origin_account"
	fieldDestAccount   = "dest_account"
)

// rule binds a pattern to a target field. group selects the submatch to keep
// (0 for the whole match) and index the positional occurrence: transfer
// receipts print the sender line before the recipient line, so the first CUIT
// or account belongs to the origin and the second to the destination.
type rule struct {
	field string
	re    *regexp.Regexp
	group int
	index int
}

var (
	reCUIT    = regexp.MustCompile(`\b(?:20|23|24|25|26|27|30|33|34)[-.]?[0-9]{8}[-.]?[0-9]\b`)
	reAccount = regexp.MustCompile(`\b[0-9]{22}\b`)
	reOpNo    = regexp.MustCompile(`(?i)\b(?:N[°º]\s*de\s*operaci[oó]n|N[°º]\s*operaci[oó]n|Operaci[oó]n)\s*[:#-]?\s*([A-Z0-9]{6,})\b`)
	reRef     = regexp.MustCompile(`(?i)\b(?:C[oó]digo\s+de\s+identificaci[oó]n|Referencia)\s*[:#-]?\s*([A-Z0-9]{6,})\b`)
	reDate    = regexp.MustCompile(`(?i)\b(?:[0-9]{1,2}\s+de\s+\w+\s+de\s+[0-9]{4}|[0-9]{1,2}/[0-9]{1,2}/[0-9]{4})\b`)

	reOriginLabel = regexp.MustCompile(`(?i)^de\b`)
	reDestLabel   = regexp.MustCompile(`(?i)^(?:para|destino)\b`)
	reNameNoise   = regexp.MustCompile(`(?i)(?:CUIT|C\.U\.I\.T|CVU|CBU).*`)
)

var defaultRules = []rule{
	{field: fieldOperationNo, re: reOpNo, group: 1, index: 0},
	{field: fieldReference, re: reRef, group: 1, index: 0},
	{field: fieldDate, re: reDate, group: 0, index: 0},
	{field: fieldOriginCUIT, re: reCUIT, group: 0, index: 0},
	{field: fieldDestCUIT, re: reCUIT, group: 0, index: 1},
	{field: fieldOriginAccount, re: reAccount, group: 0, index: 0},
	{field: fieldDestAccount, re: reAccount, group: 0, index: 1},
}

// DefaultBanks is the fixed list of issuer names printed on receipts of the
// supported locale. Matching is a case-insensitive substring search.
var DefaultBanks = []string{
	"Mercado Pago", "MercadoPago", "Ualá", "Uala", "BBVA", "Galicia", "Santander",
	"Macro", "Provincia", "HSBC", "ICBC", "Brubank", "Rebanking", "Naranja X",
}

// Extractor turns raw OCR text into structured candidate fields. The bank list
// is immutable static configuration supplied at construction.
type Extractor struct {
	banks []string
	rules []rule
}

// NewExtractor builds an extractor with the given issuer-name list. A nil list
// falls back to DefaultBanks.
func NewExtractor(banks []string) *Extractor {
	if banks == nil {
		banks = DefaultBanks
	}
	return &Extractor{
		banks: append([]string(nil), banks...),
		rules: defaultRules,
	}
}

// Extract parses raw recognized text. It never fails: malformed or empty text
// yields a Fields value with nil members.
func (e *Extractor) Extract(text string) Fields {
	var f Fields

	f.Amount = findAmount(text)

	for _, r := range e.rules {
		ms := r.re.FindAllStringSubmatch(text, -1)
		if r.index >= len(ms) {
			continue
		}
		v := strings.TrimSpace(ms[r.index][r.group])
		if v == "" {
			continue
		}
		f.set(r.field, v)
	}

	if bank := e.findBank(text); bank != "" {
		// Receipts print one bank name shared by both legs of the transfer.
		f.OriginBank = strptr(bank)
		f.DestBank = strptr(bank)
	}

	lines := splitLines(text)
	f.OriginName = nameAfterLabel(lines, reOriginLabel)
	f.DestName = nameAfterLabel(lines, reDestLabel)

	return f
}

func (f *Fields) set(field, v string) {
	switch field {
	case fieldOperationNo:
		f.OperationNo = strptr(v)
	case fieldReference:
		f.Reference = strptr(v)
	case fieldDate:
		f.Date = strptr(v)
	case fieldOriginCUIT:
		f.OriginCUIT = strptr(v)
	case fieldDestCUIT:
		f.DestCUIT = strptr(v)
	case fieldOriginAccount:
		f.OriginAccount = strptr(v)
	case fieldDestAccount:
		f.DestAccount = strptr(v)
	}
}

func (e *Extractor) findBank(text string) string {
	low := strings.ToLower(text)
	for _, b := range e.banks {
		if strings.Contains(low, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}

// splitLines returns trimmed non-empty lines in document order.
func splitLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// nameAfterLabel finds the first line matching the label and returns the
// following line with any tax-id/account suffix stripped.
func nameAfterLabel(lines []string, label *regexp.Regexp) *string {
	for i, l := range lines {
		if !label.MatchString(l) {
			continue
		}
		if i+1 >= len(lines) {
			return nil
		}
		name := strings.TrimSpace(reNameNoise.ReplaceAllString(lines[i+1], ""))
		if name == "" {
			return nil
		}
		return strptr(name)
	}
	return nil
}

func strptr(s string) *string { return &s }
