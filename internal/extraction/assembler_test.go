package extraction

import (
	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Assembler", func() {
	var (
		assembler *Assembler
		in        AssemblyInput
		res       *Result
	)

	amount := func(f Field, s string, m Method) *ExtractedValue {
		return &ExtractedValue{Field: f, Kind: KindAmount, Amount: decimal.RequireFromString(s), RawMatch: s, Method: m}
	}

	BeforeEach(func() {
		assembler = NewAssembler(DefaultConfig())
		in = AssemblyInput{Document: &RawDocument{FullText: "raw text"}, Text: "raw text"}
	})

	JustBeforeEach(func() {
		res = assembler.Assemble(in)
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			in = AssemblyInput{Document: &RawDocument{}}
		})

		It("should return an empty invoice with zero confidence", func() {
			Expect(res.Invoice.Confidence).To(Equal(0.0))
			Expect(res.Invoice.LineItems).To(BeEmpty())
			Expect(res.Warnings).To(BeEmpty())
		})

		It("should mark every field absent", func() {
			Expect(res.Methods).To(HaveLen(len(AllFields)))
			for _, f := range AllFields {
				Expect(res.Methods[f]).To(Equal(MethodAbsent))
				Expect(res.FieldConfidence[f]).To(Equal(0.0))
			}
		})
	})

	When("amounts are consistent", func() {
		BeforeEach(func() {
			in.Values = []*ExtractedValue{
				amount(FieldTotal, "106.00", MethodPattern),
				amount(FieldSubtotal, "100.00", MethodPattern),
				amount(FieldTax, "6.00", MethodPattern),
			}
		})

		It("should keep the neutral confidence", func() {
			Expect(res.Warnings).To(BeEmpty())
			Expect(res.Invoice.Confidence).To(Equal(50.0))
		})

		It("should record matches in field order", func() {
			Expect(res.Matches).To(HaveLen(3))
			Expect(res.Matches[0].Field).To(Equal(FieldSubtotal))
			Expect(res.Matches[1].Field).To(Equal(FieldTax))
			Expect(res.Matches[2].Field).To(Equal(FieldTotal))
		})
	})

	When("the total differs from subtotal plus tax", func() {
		BeforeEach(func() {
			in.Values = []*ExtractedValue{
				amount(FieldSubtotal, "100.00", MethodPattern),
				amount(FieldTax, "6.00", MethodPattern),
				amount(FieldTotal, "107.00", MethodPattern),
			}
		})

		It("should add a consistency warning", func() {
			Expect(res.Warnings).To(HaveLen(1))
			w := res.Warnings[0]
			Expect(w.Kind).To(Equal(WarningConsistency))
			Expect(w.Expected).To(Equal("106.00"))
			Expect(w.Actual).To(Equal("107.00"))
		})

		It("should lower the confidence", func() {
			Expect(res.Invoice.Confidence).To(Equal(40.0))
		})

		It("should keep the extracted values", func() {
			Expect(res.Invoice.Total.Decimal.StringFixed(2)).To(Equal("107.00"))
		})
	})

	When("the difference is within epsilon", func() {
		BeforeEach(func() {
			in.Values = []*ExtractedValue{
				amount(FieldSubtotal, "100.00", MethodPattern),
				amount(FieldTax, "6.00", MethodPattern),
				amount(FieldTotal, "106.01", MethodPattern),
			}
		})

		It("should not warn", func() {
			Expect(res.Warnings).To(BeEmpty())
		})
	})

	When("values come from fallbacks", func() {
		BeforeEach(func() {
			in.Values = []*ExtractedValue{
				{Field: FieldInvoiceNumber, Kind: KindText, Text: "A1", RawMatch: "A1", Method: MethodLabel},
				amount(FieldSubtotal, "120.00", MethodHeuristic),
			}
		})

		It("should apply a penalty per method", func() {
			Expect(res.Invoice.Confidence).To(Equal(30.0))
			Expect(res.FieldConfidence[FieldInvoiceNumber]).To(Equal(45.0))
			Expect(res.FieldConfidence[FieldSubtotal]).To(Equal(35.0))
			Expect(res.Methods[FieldInvoiceNumber]).To(Equal(MethodLabel))
			Expect(res.Methods[FieldTax]).To(Equal(MethodAbsent))
		})
	})

	When("the engine reports token confidences", func() {
		BeforeEach(func() {
			in.Document = &RawDocument{
				FullText: "INV-7 Total",
				Tokens: []Token{
					{Text: "INV-7", Confidence: 80},
					{Text: "Total", Confidence: 90},
					{Text: "noise", Confidence: -1},
				},
			}
			in.Text = in.Document.FullText
			in.Values = []*ExtractedValue{
				{Field: FieldInvoiceNumber, Kind: KindText, Text: "INV-7", RawMatch: "INV-7", Method: MethodPattern},
			}
		})

		It("should start from the mean reported confidence", func() {
			Expect(res.Invoice.Confidence).To(Equal(85.0))
		})

		It("should score a field from the tokens it was read from", func() {
			Expect(res.FieldConfidence[FieldInvoiceNumber]).To(Equal(80.0))
		})
	})

	When("a token is only part of a matched word", func() {
		BeforeEach(func() {
			in.Document = &RawDocument{
				FullText: "1 Total 120.00",
				Tokens: []Token{
					{Text: "1", Confidence: 10},
					{Text: "120.00", Confidence: 90},
				},
			}
			in.Text = in.Document.FullText
			in.Values = []*ExtractedValue{amount(FieldTotal, "120.00", MethodPattern)}
		})

		It("should only count whole tokens", func() {
			Expect(res.FieldConfidence[FieldTotal]).To(Equal(90.0))
		})
	})

	When("penalties exceed the base", func() {
		BeforeEach(func() {
			in.Values = []*ExtractedValue{
				amount(FieldSubtotal, "100.00", MethodHeuristic),
				amount(FieldTax, "6.00", MethodHeuristic),
				amount(FieldTotal, "200.00", MethodHeuristic),
				{Field: FieldCurrency, Kind: KindText, Text: "MYR", RawMatch: "RM", Method: MethodLabel},
			}
		})

		It("should clamp the confidence to zero", func() {
			Expect(res.Invoice.Confidence).To(Equal(0.0))
		})
	})

	When("line items are supplied", func() {
		BeforeEach(func() {
			q := 1.0
			in.Items = []LineItem{{Code: "1001", Quantity: &q}}
		})

		It("should attach them to the invoice", func() {
			Expect(res.Invoice.LineItems).To(HaveLen(1))
			Expect(res.Invoice.LineItems[0].Code).To(Equal("1001"))
		})
	})
})
