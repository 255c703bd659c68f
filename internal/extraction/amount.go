package extraction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrUnparseable is returned when a matched value cannot be normalized
var ErrUnparseable = errors.New("unparseable value")

const currencySymbols = "$€£¥₺"

// DefaultCurrencyTokens are stripped from amounts before parsing
var DefaultCurrencyTokens = []string{"RM", "MYR", "USD", "EUR", "GBP", "TRY", "TL"}

// reMoneyToken finds values written with exactly two decimals, optionally
// with thousands separators
var reMoneyToken = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})+[.,]\d{2}\b|\d+[.,]\d{2}\b`)

// reAmountInText finds the first amount-like value in free text
var reAmountInText = regexp.MustCompile(`(?:[$€£¥₺]|\b(?:RM|MYR|USD|EUR|GBP|TRY|TL)\b)? ?-?\d[\d.,]*`)

// NormalizeAmount converts a matched amount string into a decimal.
// Currency symbols and the given tokens are removed, then the separators
// are resolved so that "1.234,56", "1,234.56" and "1234.56" are equal.
func NormalizeAmount(raw string, stripTokens []string) (decimal.Decimal, error) {
	s := raw
	for _, tok := range stripTokens {
		s = removeFold(s, tok)
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(currencySymbols, r) {
			return -1
		}
		return r
	}, s)
	s = strings.Trim(s, ".,:")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrUnparseable, raw)
	}

	s = resolveSeparators(s)
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return decimal.Zero, fmt.Errorf("%w: amount %q", ErrUnparseable, raw)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrUnparseable, raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// resolveSeparators rewrites s so that only a single '.' decimal point remains
func resolveSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return resolveSingleSeparator(s, ",")
	case lastDot >= 0:
		return resolveSingleSeparator(s, ".")
	}
	return s
}

// resolveSingleSeparator handles strings using only one separator kind. A
// trailing group of exactly three digits marks thousands separators, except
// for a single dot which is always a decimal point.
func resolveSingleSeparator(s, sep string) string {
	last := strings.LastIndex(s, sep)
	tail := len(s) - last - 1
	count := strings.Count(s, sep)

	if tail == 3 && (count > 1 || sep == ",") {
		return strings.ReplaceAll(s, sep, "")
	}
	head := strings.ReplaceAll(s[:last], sep, "")
	return head + "." + s[last+1:]
}

// removeFold deletes every case-insensitive occurrence of tok from s
func removeFold(s, tok string) string {
	if tok == "" {
		return s
	}
	upperTok := strings.ToUpper(tok)
	for {
		i := strings.Index(strings.ToUpper(s), upperTok)
		if i < 0 {
			return s
		}
		s = s[:i] + s[i+len(tok):]
	}
}

// moneyCandidates returns every monetary token in text that parses
func moneyCandidates(text string) []decimal.Decimal {
	var values []decimal.Decimal
	for _, m := range reMoneyToken.FindAllString(text, -1) {
		d, err := NormalizeAmount(m, nil)
		if err != nil {
			continue
		}
		values = append(values, d)
	}
	return values
}

// AmountRange is an exclusive numeric interval
type AmountRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r AmountRange) contains(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.NewFromFloat(r.Min)) && d.LessThan(decimal.NewFromFloat(r.Max))
}

// amountHeuristic picks a subtotal (largest value in subtotalRange) and a
// tax (smallest value in taxRange) from unlabeled money tokens
func amountHeuristic(text string, subtotalRange, taxRange AmountRange) (subtotal, tax decimal.NullDecimal) {
	for _, v := range moneyCandidates(text) {
		if subtotalRange.contains(v) && (!subtotal.Valid || v.GreaterThan(subtotal.Decimal)) {
			subtotal = decimal.NewNullDecimal(v)
		}
		if taxRange.contains(v) && (!tax.Valid || v.LessThan(tax.Decimal)) {
			tax = decimal.NewNullDecimal(v)
		}
	}
	return subtotal, tax
}
