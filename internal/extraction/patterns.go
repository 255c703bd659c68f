package extraction

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PatternRule binds a regular expression to a field. The capture group at
// index Group holds the value.
type PatternRule struct {
	Name     string
	Field    Field
	Regex    *regexp.Regexp
	Group    int
	Priority int
	Scope    Region
}

// Match returns the first non-empty capture of the rule in text
func (r PatternRule) Match(text string) (string, bool) {
	for _, m := range r.Regex.FindAllStringSubmatch(text, -1) {
		if v := strings.TrimSpace(m[r.Group]); v != "" {
			return v, true
		}
	}
	return "", false
}

// RuleSpec is the uncompiled, configurable form of a PatternRule
type RuleSpec struct {
	Name     string `yaml:"name"`
	Field    Field  `yaml:"field"`
	Pattern  string `yaml:"pattern"`
	Group    int    `yaml:"group"`
	Priority int    `yaml:"priority"`
	Scope    Region `yaml:"scope"`
}

// CompileRule turns a RuleSpec into a PatternRule
func CompileRule(spec RuleSpec) (PatternRule, error) {
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return PatternRule{}, fmt.Errorf("compiling rule %q: %w", spec.Name, err)
	}
	return PatternRule{
		Name:     spec.Name,
		Field:    spec.Field,
		Regex:    re,
		Group:    spec.Group,
		Priority: spec.Priority,
		Scope:    spec.Scope,
	}, nil
}

// PatternLibrary holds the rules of every field ordered by descending priority
type PatternLibrary struct {
	rules map[Field][]PatternRule
}

// NewPatternLibrary validates rules and groups them by field. Rules with
// equal priority keep their relative order.
func NewPatternLibrary(rules ...PatternRule) (*PatternLibrary, error) {
	lib := &PatternLibrary{rules: make(map[Field][]PatternRule)}
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		if r.Scope == "" {
			r.Scope = RegionAll
		}
		lib.rules[r.Field] = append(lib.rules[r.Field], r)
	}
	for field := range lib.rules {
		sort.SliceStable(lib.rules[field], func(i, j int) bool {
			return lib.rules[field][i].Priority > lib.rules[field][j].Priority
		})
	}
	return lib, nil
}

func validateRule(r PatternRule) error {
	if r.Regex == nil {
		return fmt.Errorf("rule %q has no regex", r.Name)
	}
	if !knownField(r.Field) {
		return fmt.Errorf("rule %q has unknown field %q", r.Name, r.Field)
	}
	if r.Group < 0 || r.Group > r.Regex.NumSubexp() {
		return fmt.Errorf("rule %q capture group %d out of range", r.Name, r.Group)
	}
	switch r.Scope {
	case "", RegionAll, RegionHeader, RegionBody, RegionFooter:
	default:
		return fmt.Errorf("rule %q has unknown scope %q", r.Name, r.Scope)
	}
	return nil
}

func knownField(f Field) bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// Rules returns the rules for field in evaluation order
func (l *PatternLibrary) Rules(field Field) []PatternRule {
	return l.rules[field]
}

// With returns a new library holding the existing rules plus extra
func (l *PatternLibrary) With(extra ...PatternRule) (*PatternLibrary, error) {
	var all []PatternRule
	for _, field := range AllFields {
		all = append(all, l.rules[field]...)
	}
	return NewPatternLibrary(append(all, extra...)...)
}

const (
	amountValue = `((?:[$€£¥₺]|RM|MYR|USD|EUR|GBP|TRY|TL)? ?-?\d[\d.,]*)`
	dateValue   = `(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2} [A-Za-z]{3,9} \d{4})`
	refValue    = `([A-Z0-9\-/]*\d[A-Z0-9\-/]*)`
	currencyTag = `(?: *\([A-Z]{2,3}\))?`

	totalLabel = `(?im)^ *(?:total *(?:amount|due|payable|rounded|incl\.? *(?:tax|gst|vat))?|amount *due|balance *due)` + currencyTag + ` *[:.]? *` + amountValue
	taxLabel   = `(?im)^ *(?:total *)?(?:gst|vat|tax|sales *tax|iva|itbis|kdv|sst)(?: *amount)?(?: *@? *\(?\d{1,2}(?:[.,]\d+)? *%\)?)?` + currencyTag + ` *[:.]? *` + amountValue
	subLabel   = `(?i)\bsub[ -]?total` + currencyTag + ` *[:.]? *` + amountValue
	invNumber  = `(?i)\binvoice *(?:no\.?|number|num\.?|#) *[:#]? *` + refValue
)

var defaultRuleSpecs = []RuleSpec{
	{Name: "sender-label", Field: FieldSenderCompany, Priority: 120, Group: 1,
		Pattern: `(?im)^(?:from|seller|vendor|supplier|sold by|issued by) *[:#] *(\S.*)$`},
	{Name: "sender-company-suffix", Field: FieldSenderCompany, Priority: 100, Group: 1, Scope: RegionHeader,
		Pattern: `(?im)^(.*\b(?:sdn\.? ?bhd|bhd|enterprise|trading|company|corporation|corp|inc|ltd|llc|limited|gmbh|plc|perniagaan)\b.*)$`},

	{Name: "recipient-label", Field: FieldRecipientCompany, Priority: 120, Group: 1,
		Pattern: `(?im)^(?:bill(?:ed)? to|sold to|ship to|invoice to|customer|client|buyer) *[:#] *(\S.*)$`},

	{Name: "address-label", Field: FieldSenderAddress, Priority: 120, Group: 1,
		Pattern: `(?im)^(?:address|addr\.?) *[:#] *(\S.*)$`},

	{Name: "invoice-number-header", Field: FieldInvoiceNumber, Priority: 120, Group: 1, Scope: RegionHeader, Pattern: invNumber},
	{Name: "invoice-number", Field: FieldInvoiceNumber, Priority: 110, Group: 1, Pattern: invNumber},
	{Name: "invoice-colon", Field: FieldInvoiceNumber, Priority: 100, Group: 1,
		Pattern: `(?i)\binvoice *: *` + refValue},
	{Name: "receipt-number", Field: FieldInvoiceNumber, Priority: 90, Group: 1,
		Pattern: `(?i)\breceipt *(?:no\.?|number|#) *[:#]? *` + refValue},
	{Name: "document-number", Field: FieldInvoiceNumber, Priority: 80, Group: 1,
		Pattern: `(?i)\b(?:bill|document|doc|ref|reference) *(?:no\.?|number|#) *[:#]? *` + refValue},

	{Name: "tax-id", Field: FieldTaxID, Priority: 100, Group: 1,
		Pattern: `(?i)\b(?:tax *id|tax *no\.?|vat *(?:no\.?|number|reg(?:istration)? *no\.?)|gst *(?:no\.?|reg(?:istration)? *no\.?|id)|gstin|tin|ein|abn|vkn) *[:#]? *([A-Z0-9\-]*\d[A-Z0-9\-]*)`},

	{Name: "invoice-date", Field: FieldInvoiceDate, Priority: 120, Group: 1,
		Pattern: `(?i)\b(?:invoice|inv\.?|bill|receipt|issue|issued|document|txn|transaction) *date *[:.]? *` + dateValue},
	{Name: "date-line", Field: FieldInvoiceDate, Priority: 110, Group: 1,
		Pattern: `(?im)^(?:date|dated|tarih) *[:.]? *` + dateValue},
	{Name: "date-header", Field: FieldInvoiceDate, Priority: 50, Group: 1, Scope: RegionHeader, Pattern: dateValue},
	{Name: "date-any", Field: FieldInvoiceDate, Priority: 10, Group: 1, Pattern: dateValue},

	{Name: "due-date", Field: FieldDueDate, Priority: 120, Group: 1,
		Pattern: `(?i)\b(?:due *date|payment *due|due *by|pay *by|due) *[:.]? *` + dateValue},

	{Name: "subtotal-footer", Field: FieldSubtotal, Priority: 130, Group: 1, Scope: RegionFooter, Pattern: subLabel},
	{Name: "subtotal", Field: FieldSubtotal, Priority: 120, Group: 1, Pattern: subLabel},
	{Name: "excluded-gst-sub", Field: FieldSubtotal, Priority: 110, Group: 1,
		Pattern: `(?i)\(excluded gst\) *sub *(?:total)?` + currencyTag + ` *[:.]? *` + amountValue},
	{Name: "net-amount", Field: FieldSubtotal, Priority: 100, Group: 1,
		Pattern: `(?im)^ *(?:net *(?:amount|total)|total *(?:excl\.?|excluding|before) *(?:tax|gst|vat)|amount *before *tax)` + currencyTag + ` *[:.]? *` + amountValue},

	{Name: "tax-footer", Field: FieldTax, Priority: 130, Group: 1, Scope: RegionFooter, Pattern: taxLabel},
	{Name: "tax", Field: FieldTax, Priority: 120, Group: 1, Pattern: taxLabel},

	{Name: "grand-total", Field: FieldTotal, Priority: 140, Group: 1,
		Pattern: `(?im)^ *grand *total` + currencyTag + ` *[:.]? *` + amountValue},
	{Name: "total-footer", Field: FieldTotal, Priority: 130, Group: 1, Scope: RegionFooter, Pattern: totalLabel},
	{Name: "total", Field: FieldTotal, Priority: 120, Group: 1, Pattern: totalLabel},
	{Name: "cash", Field: FieldTotal, Priority: 60, Group: 1,
		Pattern: `(?im)^ *cash` + currencyTag + ` *[:.]? *` + amountValue},

	{Name: "currency-code", Field: FieldCurrency, Priority: 100, Group: 1,
		Pattern: `\b(USD|EUR|GBP|MYR|TRY|CAD|AUD|INR|JPY|CHF|SGD|RM|TL)\b`},
	{Name: "currency-symbol", Field: FieldCurrency, Priority: 50, Group: 1, Pattern: `([$€£¥₺])`},
}

// currencyAliases maps matched currency markers to ISO 4217 codes
var currencyAliases = map[string]string{
	"RM": "MYR",
	"TL": "TRY",
	"$":  "USD",
	"€":  "EUR",
	"£":  "GBP",
	"¥":  "JPY",
	"₺":  "TRY",
}

var defaultLibrary = mustLibrary(defaultRuleSpecs)

func mustLibrary(specs []RuleSpec) *PatternLibrary {
	rules := make([]PatternRule, 0, len(specs))
	for _, spec := range specs {
		r, err := CompileRule(spec)
		if err != nil {
			panic(err)
		}
		rules = append(rules, r)
	}
	lib, err := NewPatternLibrary(rules...)
	if err != nil {
		panic(err)
	}
	return lib
}

// DefaultPatternLibrary returns the built-in rule set. It is shared and must
// not be modified; use With to extend it.
func DefaultPatternLibrary() *PatternLibrary {
	return defaultLibrary
}
