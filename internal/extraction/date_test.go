package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NormalizeDate", func() {
	DescribeTable("known layouts",
		func(raw, expected string) {
			d, err := NormalizeDate(raw, DefaultDateFormats)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Normalized).To(BeTrue())
			Expect(d.Value).To(Equal(expected))
			Expect(d.Raw).To(Equal(raw))
		},
		Entry("slashes with four digit year", "12/05/2024", "2024-05-12"),
		Entry("dashes with four digit year", "3-7-2023", "2023-07-03"),
		Entry("dots", "01.02.2024", "2024-02-01"),
		Entry("two digit year", "12/05/24", "2024-05-12"),
		Entry("two digit year with dashes", "31-12-99", "1999-12-31"),
		Entry("iso", "2024-05-12", "2024-05-12"),
		Entry("month name", "12 May 2024", "2024-05-12"),
		Entry("long month name", "1 September 2024", "2024-09-01"),
	)

	When("no layout matches", func() {
		It("should keep the raw value and flag it", func() {
			d, err := NormalizeDate("13/13/2024", DefaultDateFormats)
			Expect(err).To(MatchError(ErrUnparseable))
			Expect(d).NotTo(BeNil())
			Expect(d.Normalized).To(BeFalse())
			Expect(d.Value).To(Equal("13/13/2024"))
		})
	})

	Describe("Time", func() {
		It("should return the parsed date when normalized", func() {
			d, _ := NormalizeDate("12/05/2024", DefaultDateFormats)
			t, ok := d.Time()
			Expect(ok).To(BeTrue())
			Expect(t.Year()).To(Equal(2024))
		})

		It("should report false for raw dates", func() {
			_, ok := (&Date{Value: "soon"}).Time()
			Expect(ok).To(BeFalse())
		})
	})
})
