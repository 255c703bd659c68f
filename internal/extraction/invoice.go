package extraction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field identifies a scalar invoice field
type Field string

const (
	FieldSenderCompany    Field = "sender_company"
	FieldSenderAddress    Field = "sender_address"
	FieldRecipientCompany Field = "recipient_company"
	FieldInvoiceNumber    Field = "invoice_number"
	FieldInvoiceDate      Field = "invoice_date"
	FieldDueDate          Field = "due_date"
	FieldSubtotal         Field = "subtotal"
	FieldTax              Field = "tax"
	FieldTotal            Field = "total"
	FieldCurrency         Field = "currency"
	FieldTaxID            Field = "tax_id"
)

// AllFields lists every scalar field in output order
var AllFields = []Field{
	FieldSenderCompany,
	FieldSenderAddress,
	FieldRecipientCompany,
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldDueDate,
	FieldSubtotal,
	FieldTax,
	FieldTotal,
	FieldCurrency,
	FieldTaxID,
}

// ValueKind tells which member of an ExtractedValue carries the value
type ValueKind string

const (
	KindText   ValueKind = "text"
	KindAmount ValueKind = "amount"
	KindDate   ValueKind = "date"
)

// Kind returns the value kind produced for the field
func (f Field) Kind() ValueKind {
	switch f {
	case FieldSubtotal, FieldTax, FieldTotal:
		return KindAmount
	case FieldInvoiceDate, FieldDueDate:
		return KindDate
	default:
		return KindText
	}
}

// Method records how a value was resolved
type Method string

const (
	MethodPattern   Method = "pattern"
	MethodLabel     Method = "label"
	MethodHeuristic Method = "heuristic"
	MethodAbsent    Method = "absent"
)

// Date is a normalized date, or the raw string when no layout matched
type Date struct {
	Value      string `json:"value"`
	Raw        string `json:"raw"`
	Normalized bool   `json:"normalized"`
}

// Time returns the parsed date if normalization succeeded
func (d *Date) Time() (time.Time, bool) {
	if d == nil || !d.Normalized {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDate, d.Value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ExtractedValue is a single resolved field value
type ExtractedValue struct {
	Field    Field           `json:"field"`
	RawMatch string          `json:"raw_match"`
	Kind     ValueKind       `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	Date     *Date           `json:"date,omitempty"`
	Priority int             `json:"priority"`
	Method   Method          `json:"method"`
	Rule     string          `json:"rule,omitempty"`
}

// Unit is the unit of measure of a line item
type Unit string

const (
	UnitPiece    Unit = "piece"
	UnitMeter    Unit = "meter"
	UnitKilogram Unit = "kilogram"
	UnitLiter    Unit = "liter"
	UnitSet      Unit = "set"
)

// LineItem is one product row
type LineItem struct {
	Code        string              `json:"code,omitempty"`
	Description string              `json:"description,omitempty"`
	Quantity    *float64            `json:"quantity,omitempty"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Total       decimal.NullDecimal `json:"total"`
	Unit        Unit                `json:"unit,omitempty"`
}

// Invoice is the structured record produced for one document
type Invoice struct {
	SenderCompany    string              `json:"sender_company,omitempty"`
	SenderAddress    string              `json:"sender_address,omitempty"`
	RecipientCompany string              `json:"recipient_company,omitempty"`
	InvoiceNumber    string              `json:"invoice_number,omitempty"`
	TaxID            string              `json:"tax_id,omitempty"`
	InvoiceDate      *Date               `json:"invoice_date,omitempty"`
	DueDate          *Date               `json:"due_date,omitempty"`
	Subtotal         decimal.NullDecimal `json:"subtotal"`
	Tax              decimal.NullDecimal `json:"tax"`
	Total            decimal.NullDecimal `json:"total"`
	Currency         string              `json:"currency,omitempty"`
	LineItems        []LineItem          `json:"line_items"`
	Confidence       float64             `json:"confidence"`
}

// set stores v into the invoice field it belongs to
func (inv *Invoice) set(v *ExtractedValue) {
	switch v.Field {
	case FieldSenderCompany:
		inv.SenderCompany = v.Text
	case FieldSenderAddress:
		inv.SenderAddress = v.Text
	case FieldRecipientCompany:
		inv.RecipientCompany = v.Text
	case FieldInvoiceNumber:
		inv.InvoiceNumber = v.Text
	case FieldTaxID:
		inv.TaxID = v.Text
	case FieldCurrency:
		inv.Currency = v.Text
	case FieldInvoiceDate:
		inv.InvoiceDate = v.Date
	case FieldDueDate:
		inv.DueDate = v.Date
	case FieldSubtotal:
		inv.Subtotal = decimal.NewNullDecimal(v.Amount)
	case FieldTax:
		inv.Tax = decimal.NewNullDecimal(v.Amount)
	case FieldTotal:
		inv.Total = decimal.NewNullDecimal(v.Amount)
	}
}

// WarningKind classifies non-fatal extraction problems
type WarningKind string

const (
	WarningConsistency   WarningKind = "consistency"
	WarningNormalization WarningKind = "normalization"
	WarningTimeout       WarningKind = "timeout"
)

// Warning is a non-fatal problem attached to the result
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Field    Field       `json:"field,omitempty"`
	Message  string      `json:"message"`
	Raw      string      `json:"raw,omitempty"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
}

// RuleMatch records which rule or fallback produced a field
type RuleMatch struct {
	Field    Field  `json:"field"`
	Rule     string `json:"rule,omitempty"`
	Priority int    `json:"priority"`
	Method   Method `json:"method"`
	Raw      string `json:"raw"`
}

// Result is the full output for one document
type Result struct {
	Invoice         Invoice           `json:"invoice"`
	RawText         string            `json:"raw_text"`
	FieldConfidence map[Field]float64 `json:"field_confidence"`
	Methods         map[Field]Method  `json:"methods"`
	Matches         []RuleMatch       `json:"matches"`
	Warnings        []Warning         `json:"warnings"`
}
