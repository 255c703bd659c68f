package extraction

import (
	"context"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LineItemExtractor", func() {
	var (
		extractor *LineItemExtractor
		lines     []string
		items     []LineItem
		err       error
	)

	money := func(s string) decimal.Decimal {
		return decimal.RequireFromString(s)
	}

	BeforeEach(func() {
		extractor = NewLineItemExtractor(DefaultUnitKeywords(), DefaultDescriptionMarkers)
	})

	JustBeforeEach(func() {
		items, err = extractor.Extract(context.Background(), lines)
	})

	When("items are followed by description lines", func() {
		BeforeEach(func() {
			lines = []string{"1001 2 15.00", "SR: Steel Bracket", "1002 1 9.99"}
		})

		It("should produce two items", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(2))
		})

		It("should fill the first item", func() {
			item := items[0]
			Expect(item.Code).To(Equal("1001"))
			Expect(*item.Quantity).To(Equal(2.0))
			Expect(item.UnitPrice.Decimal.Equal(money("15.00"))).To(BeTrue())
			Expect(item.Total.Decimal.Equal(money("30.00"))).To(BeTrue())
			Expect(item.Description).To(Equal("Steel Bracket"))
		})

		It("should fill the second item without a description", func() {
			item := items[1]
			Expect(item.Code).To(Equal("1002"))
			Expect(*item.Quantity).To(Equal(1.0))
			Expect(item.UnitPrice.Decimal.Equal(money("9.99"))).To(BeTrue())
			Expect(item.Total.Decimal.Equal(money("9.99"))).To(BeTrue())
			Expect(item.Description).To(BeEmpty())
		})
	})

	When("a description names a unit", func() {
		BeforeEach(func() {
			lines = []string{"2001 3 4.50", "SR. Copper Wire 10 M", "2002 2 8.00", "sr Bolt set (12 PCS)"}
		})

		It("should set the unit from the table order", func() {
			Expect(items).To(HaveLen(2))
			Expect(items[0].Unit).To(Equal(UnitMeter))
			Expect(items[1].Unit).To(Equal(UnitPiece))
		})
	})

	When("a description line has no open item", func() {
		BeforeEach(func() {
			lines = []string{"SR: Orphan", "3001 1 1.00"}
		})

		It("should drop it", func() {
			Expect(items).To(HaveLen(1))
			Expect(items[0].Description).To(BeEmpty())
		})
	})

	When("a second description arrives", func() {
		BeforeEach(func() {
			lines = []string{"3001 1 1.00", "SR: First", "SR: Second"}
		})

		It("should overwrite the first", func() {
			Expect(items[0].Description).To(Equal("Second"))
		})
	})

	When("the quantity is zero", func() {
		BeforeEach(func() {
			lines = []string{"4001 0 12.00"}
		})

		It("should keep the item with a zero total", func() {
			Expect(items).To(HaveLen(1))
			Expect(*items[0].Quantity).To(Equal(0.0))
			Expect(items[0].Total.Decimal.IsZero()).To(BeTrue())
		})
	})

	When("the line carries an explicit total", func() {
		BeforeEach(func() {
			lines = []string{"5001 3 10.00 29.50"}
		})

		It("should prefer the explicit total", func() {
			Expect(items[0].Total.Decimal.Equal(money("29.50"))).To(BeTrue())
		})
	})

	When("no line is an item", func() {
		BeforeEach(func() {
			lines = []string{"Subtotal: 10.00", "Thank you"}
		})

		It("should return an empty list", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
			Expect(items).NotTo(BeNil())
		})
	})

	When("the context is cancelled", func() {
		It("should stop and return the error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			out, err := extractor.Extract(ctx, []string{"1001 2 15.00"})
			Expect(err).To(MatchError(context.Canceled))
			Expect(out).To(BeNil())
		})
	})
})
