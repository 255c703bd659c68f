package extraction

import (
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Assembler merges field values and line items into a Result and scores it
type Assembler struct {
	neutral            float64
	labelPenalty       float64
	heuristicPenalty   float64
	consistencyPenalty float64
	epsilon            decimal.Decimal
}

// NewAssembler creates an Assembler from the confidence settings of cfg
func NewAssembler(cfg Config) *Assembler {
	return &Assembler{
		neutral:            cfg.NeutralConfidence,
		labelPenalty:       cfg.LabelPenalty,
		heuristicPenalty:   cfg.HeuristicPenalty,
		consistencyPenalty: cfg.ConsistencyPenalty,
		epsilon:            decimal.NewFromFloat(cfg.Epsilon),
	}
}

// AssemblyInput is everything the extraction tasks produced for a document
type AssemblyInput struct {
	Document *RawDocument
	Text     string
	Values   []*ExtractedValue
	Items    []LineItem
	Warnings []Warning
}

// Assemble builds the Result. Confidence starts from the OCR confidence (or
// the neutral default), loses a penalty per fallback field and per failed
// consistency check, and is clamped to 0-100. Empty text scores 0.
func (a *Assembler) Assemble(in AssemblyInput) *Result {
	res := &Result{
		Invoice:         Invoice{LineItems: []LineItem{}},
		FieldConfidence: make(map[Field]float64, len(AllFields)),
		Methods:         make(map[Field]Method, len(AllFields)),
		Matches:         []RuleMatch{},
		Warnings:        append([]Warning{}, in.Warnings...),
	}
	if in.Document != nil {
		res.RawText = in.Document.FullText
	}
	for _, f := range AllFields {
		res.FieldConfidence[f] = 0
		res.Methods[f] = MethodAbsent
	}
	if strings.TrimSpace(in.Text) == "" {
		return res
	}

	base := a.neutral
	var tokens []Token
	if in.Document != nil {
		if c, ok := in.Document.reportedConfidence(); ok {
			base = c
		}
		tokens = in.Document.Tokens
	}

	values := make([]*ExtractedValue, 0, len(in.Values))
	for _, v := range in.Values {
		if v != nil {
			values = append(values, v)
		}
	}
	sort.SliceStable(values, func(i, j int) bool {
		return fieldIndex(values[i].Field) < fieldIndex(values[j].Field)
	})

	confidence := base
	for _, v := range values {
		res.Invoice.set(v)
		res.Methods[v.Field] = v.Method
		res.Matches = append(res.Matches, RuleMatch{
			Field:    v.Field,
			Rule:     v.Rule,
			Priority: v.Priority,
			Method:   v.Method,
			Raw:      v.RawMatch,
		})
		penalty := a.penalty(v.Method)
		confidence -= penalty
		res.FieldConfidence[v.Field] = clamp(matchConfidence(v.RawMatch, tokens, base) - penalty)
	}
	if in.Items != nil {
		res.Invoice.LineItems = in.Items
	}

	if w, ok := a.checkConsistency(res.Invoice); ok {
		res.Warnings = append(res.Warnings, w)
		confidence -= a.consistencyPenalty
	}

	res.Invoice.Confidence = clamp(confidence)
	return res
}

func (a *Assembler) penalty(m Method) float64 {
	switch m {
	case MethodLabel:
		return a.labelPenalty
	case MethodHeuristic:
		return a.heuristicPenalty
	}
	return 0
}

// checkConsistency compares total against subtotal + tax
func (a *Assembler) checkConsistency(inv Invoice) (Warning, bool) {
	if !inv.Subtotal.Valid || !inv.Tax.Valid || !inv.Total.Valid {
		return Warning{}, false
	}
	expected := inv.Subtotal.Decimal.Add(inv.Tax.Decimal)
	if inv.Total.Decimal.Sub(expected).Abs().LessThanOrEqual(a.epsilon) {
		return Warning{}, false
	}
	return Warning{
		Kind:     WarningConsistency,
		Field:    FieldTotal,
		Message:  "total does not equal subtotal plus tax",
		Expected: expected.StringFixed(2),
		Actual:   inv.Total.Decimal.StringFixed(2),
	}, true
}

// matchConfidence averages the confidence of the tokens that are whole words
// of raw, falling back to base when none are
func matchConfidence(raw string, tokens []Token, base float64) float64 {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(raw) {
		words[w] = struct{}{}
	}
	var sum float64
	var n int
	for _, t := range tokens {
		if t.Confidence < 0 {
			continue
		}
		if _, ok := words[strings.TrimSpace(t.Text)]; !ok {
			continue
		}
		sum += t.Confidence
		n++
	}
	if n == 0 {
		return base
	}
	return sum / float64(n)
}

func fieldIndex(f Field) int {
	for i, known := range AllFields {
		if f == known {
			return i
		}
	}
	return len(AllFields)
}

func clamp(v float64) float64 {
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*100) / 100
}
