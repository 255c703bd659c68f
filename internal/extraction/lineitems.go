package extraction

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnitKeywords lists the words that identify a unit of measure
type UnitKeywords struct {
	Unit     Unit     `yaml:"unit"`
	Keywords []string `yaml:"keywords"`
}

// DefaultUnitKeywords is the unit table, matched in order
func DefaultUnitKeywords() []UnitKeywords {
	return []UnitKeywords{
		{Unit: UnitPiece, Keywords: []string{"PC", "PCS", "PIECE", "PIECES", "ADET"}},
		{Unit: UnitMeter, Keywords: []string{"M", "MTR", "METER", "METRE", "METERS"}},
		{Unit: UnitKilogram, Keywords: []string{"KG", "KGS", "KILO", "KILOGRAM"}},
		{Unit: UnitLiter, Keywords: []string{"L", "LT", "LTR", "LITER", "LITRE"}},
		{Unit: UnitSet, Keywords: []string{"SET", "SETS", "TAKIM"}},
	}
}

// DefaultDescriptionMarkers introduce a description line under an item
var DefaultDescriptionMarkers = []string{"SR"}

// reItemLine matches "<code> <quantity> <unit price> [<total>]"
var reItemLine = regexp.MustCompile(`^(\d[\w\-/]*) +(\d+(?:[.,]\d+)?) +(\d{1,3}(?:[.,]\d{3})+[.,]\d{2}|\d+[.,]\d{2})(?: +(\d{1,3}(?:[.,]\d{3})+[.,]\d{2}|\d+[.,]\d{2}))?\b`)

type unitMatcher struct {
	unit Unit
	re   *regexp.Regexp
}

// LineItemExtractor reads product rows with a two-state machine: idle, or
// an item open. An item line closes the open item and opens a new one;
// a description line updates the open item; the end of input closes it.
type LineItemExtractor struct {
	units  []unitMatcher
	marker *regexp.Regexp
}

// NewLineItemExtractor builds the unit and description matchers
func NewLineItemExtractor(units []UnitKeywords, markers []string) *LineItemExtractor {
	x := &LineItemExtractor{}
	for _, u := range units {
		if len(u.Keywords) == 0 {
			continue
		}
		x.units = append(x.units, unitMatcher{unit: u.Unit, re: wordAlternation(u.Keywords)})
	}
	if len(markers) > 0 {
		quoted := make([]string, len(markers))
		for i, m := range markers {
			quoted[i] = regexp.QuoteMeta(m)
		}
		x.marker = regexp.MustCompile(`(?i)^(?:` + strings.Join(quoted, "|") + `)\b[:.]? *(.*)$`)
	}
	return x
}

func wordAlternation(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Extract scans lines in order. The context is checked before every line;
// on cancellation no items are returned.
func (x *LineItemExtractor) Extract(ctx context.Context, lines []string) ([]LineItem, error) {
	items := []LineItem{}
	var open *LineItem

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		if item, ok := parseItemLine(line); ok {
			if open != nil {
				items = append(items, *open)
			}
			open = &item
			continue
		}

		if open == nil || x.marker == nil {
			continue
		}
		if m := x.marker.FindStringSubmatch(line); m != nil {
			if desc := strings.TrimSpace(m[1]); desc != "" {
				open.Description = desc
				open.Unit = x.unitOf(desc)
			}
		}
	}
	if open != nil {
		items = append(items, *open)
	}
	return items, nil
}

func (x *LineItemExtractor) unitOf(desc string) Unit {
	for _, u := range x.units {
		if u.re.MatchString(desc) {
			return u.unit
		}
	}
	return ""
}

func parseItemLine(line string) (LineItem, bool) {
	m := reItemLine.FindStringSubmatch(line)
	if m == nil {
		return LineItem{}, false
	}
	qtyText := strings.Replace(m[2], ",", ".", 1)
	qty, err := decimal.NewFromString(qtyText)
	if err != nil {
		return LineItem{}, false
	}
	qtyFloat, err := strconv.ParseFloat(qtyText, 64)
	if err != nil {
		return LineItem{}, false
	}
	price, err := NormalizeAmount(m[3], nil)
	if err != nil {
		return LineItem{}, false
	}

	item := LineItem{
		Code:      m[1],
		Quantity:  &qtyFloat,
		UnitPrice: decimal.NewNullDecimal(price),
		Total:     decimal.NewNullDecimal(qty.Mul(price)),
	}
	if m[4] != "" {
		if explicit, err := NormalizeAmount(m[4], nil); err == nil {
			item.Total = decimal.NewNullDecimal(explicit)
		}
	}
	return item, true
}
