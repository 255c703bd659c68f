package extraction

import (
	"context"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PatternLibrary", func() {
	Describe("NewPatternLibrary", func() {
		It("should order rules by descending priority", func() {
			lib, err := NewPatternLibrary(
				PatternRule{Name: "low", Field: FieldTotal, Regex: regexp.MustCompile(`(x)`), Group: 1, Priority: 5},
				PatternRule{Name: "high", Field: FieldTotal, Regex: regexp.MustCompile(`(y)`), Group: 1, Priority: 10},
				PatternRule{Name: "low-2", Field: FieldTotal, Regex: regexp.MustCompile(`(z)`), Group: 1, Priority: 5},
			)
			Expect(err).NotTo(HaveOccurred())
			names := []string{}
			for _, r := range lib.Rules(FieldTotal) {
				names = append(names, r.Name)
			}
			Expect(names).To(Equal([]string{"high", "low", "low-2"}))
		})

		It("should default the scope to all", func() {
			lib, err := NewPatternLibrary(PatternRule{Name: "r", Field: FieldTaxID, Regex: regexp.MustCompile(`(x)`), Group: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(lib.Rules(FieldTaxID)[0].Scope).To(Equal(RegionAll))
		})

		It("should reject a capture group that does not exist", func() {
			_, err := NewPatternLibrary(PatternRule{Name: "r", Field: FieldTotal, Regex: regexp.MustCompile(`x`), Group: 1})
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown field", func() {
			_, err := NewPatternLibrary(PatternRule{Name: "r", Field: "colour", Regex: regexp.MustCompile(`(x)`), Group: 1})
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown scope", func() {
			_, err := NewPatternLibrary(PatternRule{Name: "r", Field: FieldTotal, Regex: regexp.MustCompile(`(x)`), Group: 1, Scope: "margin"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("CompileRule", func() {
		It("should compile a valid spec", func() {
			r, err := CompileRule(RuleSpec{Name: "po", Field: FieldInvoiceNumber, Pattern: `PO-(\d+)`, Group: 1, Priority: 200})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Priority).To(Equal(200))
			v, ok := r.Match("ref PO-778")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("778"))
		})

		It("should report invalid patterns", func() {
			_, err := CompileRule(RuleSpec{Name: "bad", Pattern: `(`})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Match", func() {
		It("should skip matches with an empty capture", func() {
			r := PatternRule{Regex: regexp.MustCompile(`id:(\d*)`), Group: 1}
			v, ok := r.Match("id: id:42")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("42"))
		})
	})

	Describe("With", func() {
		It("should keep the original library untouched", func() {
			base := DefaultPatternLibrary()
			before := len(base.Rules(FieldTotal))
			extended, err := base.With(PatternRule{Name: "amount-payable", Field: FieldTotal, Regex: regexp.MustCompile(`payable (\d+)`), Group: 1, Priority: 500})
			Expect(err).NotTo(HaveOccurred())
			Expect(base.Rules(FieldTotal)).To(HaveLen(before))
			Expect(extended.Rules(FieldTotal)[0].Name).To(Equal("amount-payable"))
		})
	})

	Describe("default rules", func() {
		var extractor *FieldExtractor

		BeforeEach(func() {
			extractor = NewFieldExtractor(DefaultPatternLibrary(), DefaultConfig())
		})

		DescribeTable("text fields",
			func(field Field, text, expected string) {
				v, err := extractor.ExtractField(context.Background(), field, text, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).NotTo(BeNil())
				Expect(v.Text).To(Equal(expected))
			},
			Entry("invoice number", FieldInvoiceNumber, "Invoice No: INV-2024-001", "INV-2024-001"),
			Entry("invoice hash", FieldInvoiceNumber, "INVOICE #10045", "10045"),
			Entry("receipt number", FieldInvoiceNumber, "Receipt#: CS00012345", "CS00012345"),
			Entry("tax id", FieldTaxID, "GST No: 001234567890", "001234567890"),
			Entry("vat number", FieldTaxID, "VAT No. GB-123456", "GB-123456"),
			Entry("sender label", FieldSenderCompany, "From: Acme Trading Sdn Bhd", "Acme Trading Sdn Bhd"),
			Entry("recipient label", FieldRecipientCompany, "Bill To: Widget Engineering", "Widget Engineering"),
			Entry("currency code", FieldCurrency, "Total (RM): 12.00", "MYR"),
			Entry("currency symbol", FieldCurrency, "Total: €12.00", "EUR"),
		)

		DescribeTable("amount fields",
			func(field Field, text, expected string) {
				v, err := extractor.ExtractField(context.Background(), field, text, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(v).NotTo(BeNil())
				Expect(v.Amount.StringFixed(2)).To(Equal(expected))
			},
			Entry("subtotal", FieldSubtotal, "Sub Total: 1,200.00", "1200.00"),
			Entry("excluded gst subtotal", FieldSubtotal, "TOTAL (EXCLUDED GST) SUB 84.91", "84.91"),
			Entry("tax with rate", FieldTax, "GST 6%: 5.09", "5.09"),
			Entry("total with currency", FieldTotal, "TOTAL (RM): 90.00", "90.00"),
			Entry("grand total", FieldTotal, "Total: 10.00\nGrand Total: 12.50", "12.50"),
			Entry("european total", FieldTotal, "Total Amount: 1.234,56 EUR", "1234.56"),
		)

		It("should not read a tax id line as a tax amount", func() {
			v, err := extractor.ExtractField(context.Background(), FieldTax, "Tax ID: 12-3456789", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNil())
		})

		It("should not read a subtotal line as the total", func() {
			v, err := extractor.ExtractField(context.Background(), FieldTotal, "Subtotal: 100.00", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(BeNil())
		})

		It("should tell invoice and due dates apart", func() {
			text := "Due Date: 30/05/2024\nInvoice Date: 12/05/2024"
			inv, err := extractor.ExtractField(context.Background(), FieldInvoiceDate, text, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(inv.Date.Value).To(Equal("2024-05-12"))
			due, err := extractor.ExtractField(context.Background(), FieldDueDate, text, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(due.Date.Value).To(Equal("2024-05-30"))
		})
	})
})
