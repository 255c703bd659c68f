package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// FieldError reports a matched value that could not be normalized
type FieldError struct {
	Field Field
	Raw   string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("normalizing %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// DefaultLabelKeywords drive the label fallback of header-driven fields
func DefaultLabelKeywords() map[Field][]string {
	return map[Field][]string{
		FieldSenderCompany:    {"from", "vendor", "seller", "supplier", "sold by"},
		FieldRecipientCompany: {"bill to", "billed to", "sold to", "ship to", "customer", "client"},
		FieldSenderAddress:    {"address"},
		FieldInvoiceNumber:    {"invoice no", "invoice number", "invoice #", "receipt no", "receipt #"},
		FieldInvoiceDate:      {"invoice date", "date"},
		FieldDueDate:          {"due date", "payment due"},
		FieldSubtotal:         {"subtotal", "sub total", "sub-total"},
		FieldTax:              {"tax amount", "tax", "gst", "vat"},
		FieldTotal:            {"grand total", "total amount", "amount due", "total"},
	}
}

// DefaultCompanyStopwords are uppercase header lines that name the document
// rather than a party
var DefaultCompanyStopwords = []string{
	"INVOICE", "TAX INVOICE", "RECEIPT", "OFFICIAL RECEIPT", "CASH SALE", "CASH BILL",
	"BILL", "QUOTATION", "DELIVERY ORDER", "STATEMENT", "ORIGINAL", "COPY",
}

var (
	reStreetLine = regexp.MustCompile(`(?i)(?:^no\.? ?\d+|\b(?:jalan|jln|road|rd|street|avenue|ave|lane|taman|lorong|blvd|boulevard)\b)`)
	rePostcode   = regexp.MustCompile(`\b\d{5}\b`)
	reState      = regexp.MustCompile(`(?i)\b(?:johor|selangor|kuala lumpur|penang|pulau pinang|perak|pahang|kedah|kelantan|melaka|negeri sembilan|sabah|sarawak|terengganu|perlis|putrajaya|labuan)\b`)
	reDateInText = regexp.MustCompile(dateValue)
)

// FieldExtractor resolves scalar fields with the pattern library and the
// label, company and address fallbacks
type FieldExtractor struct {
	library          *PatternLibrary
	labels           map[Field][]string
	rivals           map[Field][]string
	dateFormats      []string
	currencyTokens   []string
	maxHeaderLines   int
	minCompanyLength int
	stopwords        map[string]struct{}
}

// NewFieldExtractor creates a FieldExtractor from cfg
func NewFieldExtractor(library *PatternLibrary, cfg Config) *FieldExtractor {
	stop := make(map[string]struct{}, len(cfg.CompanyStopwords))
	for _, w := range cfg.CompanyStopwords {
		stop[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}
	return &FieldExtractor{
		library:          library,
		labels:           cfg.LabelKeywords,
		rivals:           rivalKeywords(cfg.LabelKeywords),
		dateFormats:      cfg.DateFormats,
		currencyTokens:   cfg.CurrencyTokens,
		maxHeaderLines:   cfg.MaxHeaderLines,
		minCompanyLength: cfg.MinCompanyLength,
		stopwords:        stop,
	}
}

// ExtractField applies the rules of field in priority order; the first
// non-empty capture wins. When no rule matches, fields with label keywords
// fall back to a label lookup. A nil value with a nil error means absent.
//
// Scoped rules search their region when regions is non-nil, the full text
// otherwise. Unparseable amounts return a nil value and a *FieldError;
// unparseable dates return the raw value and a *FieldError.
func (e *FieldExtractor) ExtractField(ctx context.Context, field Field, text string, regions *Regions) (*ExtractedValue, error) {
	for _, rule := range e.library.Rules(field) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		search := text
		if regions != nil && rule.Scope != RegionAll {
			search = regions.Text(rule.Scope)
		}
		raw, ok := rule.Match(search)
		if !ok {
			continue
		}
		return e.value(field, raw, MethodPattern, rule.Name, rule.Priority)
	}

	if keywords := e.labels[field]; len(keywords) > 0 {
		if raw, ok := labelLookup(text, keywords, e.rivals[field], field.Kind()); ok {
			return e.value(field, raw, MethodLabel, "label", 0)
		}
	}
	return nil, nil
}

func (e *FieldExtractor) value(field Field, raw string, method Method, rule string, priority int) (*ExtractedValue, error) {
	v := &ExtractedValue{
		Field:    field,
		RawMatch: raw,
		Kind:     field.Kind(),
		Priority: priority,
		Method:   method,
		Rule:     rule,
	}
	switch v.Kind {
	case KindAmount:
		d, err := NormalizeAmount(raw, e.currencyTokens)
		if err != nil {
			return nil, &FieldError{Field: field, Raw: raw, Err: err}
		}
		v.Amount = d
	case KindDate:
		date, err := NormalizeDate(raw, e.dateFormats)
		v.Date = date
		if err != nil {
			return v, &FieldError{Field: field, Raw: raw, Err: err}
		}
	default:
		v.Text = cleanValue(raw)
		if field == FieldCurrency {
			if code, ok := currencyAliases[v.Text]; ok {
				v.Text = code
			}
		}
	}
	return v, nil
}

// cleanValue trims separators OCR leaves around free-text values
func cleanValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), " :;,")
}

// rivalKeywords maps each field to the keywords of other fields that contain
// one of its own, such as "sub total" for "total" or "due date" for "date"
func rivalKeywords(labels map[Field][]string) map[Field][]string {
	rivals := make(map[Field][]string, len(labels))
	for field, own := range labels {
		for other, keywords := range labels {
			if other == field {
				continue
			}
			for _, r := range keywords {
				for _, kw := range own {
					if len(r) > len(kw) && strings.Contains(strings.ToLower(r), strings.ToLower(kw)) {
						rivals[field] = append(rivals[field], r)
						break
					}
				}
			}
		}
	}
	return rivals
}

// labelLookup finds the first line carrying one of keywords and returns the
// rest of that line, or the next non-empty line when nothing follows the
// label. Lines labelled with a rival keyword are skipped. Amount and date
// fields keep only the value-shaped part.
func labelLookup(text string, keywords, rivals []string, kind ValueKind) (string, bool) {
	lines := splitLines(text)
	for i, line := range lines {
		if hasLabel(line, rivals) {
			continue
		}
		for _, kw := range keywords {
			rest, ok := afterLabel(line, kw)
			if !ok {
				continue
			}
			if rest == "" {
				rest = nextNonEmpty(lines, i+1)
			}
			if v, ok := valueOfKind(rest, kind); ok {
				return v, true
			}
		}
	}
	return "", false
}

func hasLabel(line string, keywords []string) bool {
	for _, kw := range keywords {
		if _, ok := afterLabel(line, kw); ok {
			return true
		}
	}
	return false
}

// afterLabel reports whether line holds keyword at a word boundary followed
// by ':' or '#' or the end of the line, and returns what follows
func afterLabel(line, keyword string) (string, bool) {
	for i := 0; i+len(keyword) <= len(line); i++ {
		if !strings.EqualFold(line[i:i+len(keyword)], keyword) {
			continue
		}
		if i > 0 && isWordByte(line[i-1]) {
			continue
		}
		rest := strings.TrimLeft(line[i+len(keyword):], " .")
		switch {
		case rest == "":
			return "", true
		case rest[0] == ':' || rest[0] == '#':
			return strings.TrimSpace(rest[1:]), true
		}
	}
	return "", false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func nextNonEmpty(lines []string, from int) string {
	for _, l := range lines[from:] {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func valueOfKind(s string, kind ValueKind) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	switch kind {
	case KindAmount:
		m := reAmountInText.FindString(s)
		return strings.TrimSpace(m), m != ""
	case KindDate:
		if m := reDateInText.FindString(s); m != "" {
			return m, true
		}
	}
	return s, true
}

// CompanyCandidates returns the qualifying company lines among the first
// lines of the header: all uppercase, long enough, not a document title and
// not an address or labelled line
func (e *FieldExtractor) CompanyCandidates(header string) []string {
	lines := splitLines(header)
	if len(lines) > e.maxHeaderLines {
		lines = lines[:e.maxHeaderLines]
	}
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len([]rune(line)) < e.minCompanyLength || !isUpperLine(line) {
			continue
		}
		if _, stop := e.stopwords[line]; stop {
			continue
		}
		if strings.Contains(line, ":") || reStreetLine.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// isUpperLine reports whether s has at least one letter and no lowercase letters
func isUpperLine(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// AddressFromHeader joins the street line of the header with the lines that
// follow it while they continue the address, stopping after the line holding
// the postal code or state
func AddressFromHeader(header string) (string, bool) {
	var parts []string
	for _, line := range splitLines(header) {
		line = strings.TrimSpace(line)
		closing := rePostcode.MatchString(line) || reState.MatchString(line)
		switch {
		case reStreetLine.MatchString(line):
			parts = append(parts, strings.TrimRight(line, ", "))
			if closing {
				return strings.Join(parts, ", "), true
			}
		case len(parts) > 0 && closing:
			parts = append(parts, strings.TrimRight(line, ", "))
			return strings.Join(parts, ", "), true
		case len(parts) > 0:
			return strings.Join(parts, ", "), true
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", "), true
	}
	return "", false
}
