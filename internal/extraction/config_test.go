package extraction

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	Describe("DefaultConfig", func() {
		It("should be valid", func() {
			Expect(DefaultConfig().Validate()).To(Succeed())
		})
	})

	Describe("LoadConfig", func() {
		var (
			path string
			cfg  Config
			err  error
		)

		writeConfig := func(body string) {
			path = filepath.Join(GinkgoT().TempDir(), "config.yaml")
			Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		}

		JustBeforeEach(func() {
			cfg, err = LoadConfig(path)
		})

		When("the file overrides some settings", func() {
			BeforeEach(func() {
				writeConfig(`
workers: 3
task_timeout: 500ms
header_ratio: 0.25
subtotal_range:
  min: 10
  max: 5000
unit_keywords:
  - unit: piece
    keywords: [ADET]
rules:
  - name: po-number
    field: invoice_number
    pattern: 'PO-(\d+)'
    group: 1
    priority: 500
`)
			})

			It("should apply them over the defaults", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Workers).To(Equal(3))
				Expect(cfg.TaskTimeout).To(Equal(500 * time.Millisecond))
				Expect(cfg.HeaderRatio).To(Equal(0.25))
				Expect(cfg.SubtotalRange).To(Equal(AmountRange{Min: 10, Max: 5000}))
				Expect(cfg.UnitKeywords).To(Equal([]UnitKeywords{{Unit: UnitPiece, Keywords: []string{"ADET"}}}))
				Expect(cfg.Rules).To(HaveLen(1))
			})

			It("should keep the remaining defaults", func() {
				Expect(cfg.FooterRatio).To(Equal(0.3))
				Expect(cfg.TaxRange).To(Equal(AmountRange{Min: 0, Max: 20}))
				Expect(cfg.DateFormats).To(Equal(DefaultDateFormats))
				Expect(cfg.NeutralConfidence).To(Equal(50.0))
			})
		})

		When("the file holds invalid values", func() {
			BeforeEach(func() {
				writeConfig("header_ratio: 0.8\nfooter_ratio: 0.5\nepsilon: -1\n")
			})

			It("should report every problem", func() {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("header_ratio"))
				Expect(err.Error()).To(ContainSubstring("epsilon"))
			})
		})

		When("the file is not YAML", func() {
			BeforeEach(func() {
				writeConfig("workers: [")
			})

			It("should fail to parse", func() {
				Expect(err).To(MatchError(ContainSubstring("parsing config")))
			})
		})

		When("the file does not exist", func() {
			BeforeEach(func() {
				path = filepath.Join(os.TempDir(), "no-such-invoice-config.yaml")
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(os.ErrNotExist))
			})
		})
	})

	Describe("Validate", func() {
		It("should reject an empty amount range", func() {
			cfg := DefaultConfig()
			cfg.TaxRange = AmountRange{Min: 20, Max: 20}
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("tax_range")))
		})

		It("should reject negative penalties", func() {
			cfg := DefaultConfig()
			cfg.HeuristicPenalty = -1
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})
})
