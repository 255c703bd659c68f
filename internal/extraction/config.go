package extraction

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the extraction pipeline
type Config struct {
	Workers        int           `yaml:"workers"`
	TaskTimeout    time.Duration `yaml:"task_timeout"`
	CacheCapacity  int           `yaml:"cache_capacity"`
	KeepBlankLines bool          `yaml:"keep_blank_lines"`

	HeaderRatio float64 `yaml:"header_ratio"`
	FooterRatio float64 `yaml:"footer_ratio"`

	MaxHeaderLines   int                `yaml:"max_header_lines"`
	MinCompanyLength int                `yaml:"min_company_length"`
	CompanyStopwords []string           `yaml:"company_stopwords"`
	LabelKeywords    map[Field][]string `yaml:"label_keywords"`

	SubtotalRange  AmountRange `yaml:"subtotal_range"`
	TaxRange       AmountRange `yaml:"tax_range"`
	Epsilon        float64     `yaml:"epsilon"`
	CurrencyTokens []string    `yaml:"currency_tokens"`
	DateFormats    []string    `yaml:"date_formats"`

	UnitKeywords       []UnitKeywords `yaml:"unit_keywords"`
	DescriptionMarkers []string       `yaml:"description_markers"`

	NeutralConfidence  float64 `yaml:"neutral_confidence"`
	LabelPenalty       float64 `yaml:"label_penalty"`
	HeuristicPenalty   float64 `yaml:"heuristic_penalty"`
	ConsistencyPenalty float64 `yaml:"consistency_penalty"`

	// Rules are added to the built-in pattern library
	Rules []RuleSpec `yaml:"rules"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() Config {
	return Config{
		Workers:            runtime.NumCPU(),
		TaskTimeout:        2 * time.Second,
		CacheCapacity:      100,
		HeaderRatio:        0.3,
		FooterRatio:        0.3,
		MaxHeaderLines:     5,
		MinCompanyLength:   4,
		CompanyStopwords:   append([]string(nil), DefaultCompanyStopwords...),
		LabelKeywords:      DefaultLabelKeywords(),
		SubtotalRange:      AmountRange{Min: 50, Max: 1000},
		TaxRange:           AmountRange{Min: 0, Max: 20},
		Epsilon:            0.01,
		CurrencyTokens:     append([]string(nil), DefaultCurrencyTokens...),
		DateFormats:        append([]string(nil), DefaultDateFormats...),
		UnitKeywords:       DefaultUnitKeywords(),
		DescriptionMarkers: append([]string(nil), DefaultDescriptionMarkers...),
		NeutralConfidence:  50,
		LabelPenalty:       5,
		HeuristicPenalty:   15,
		ConsistencyPenalty: 10,
	}
}

// LoadConfig reads a YAML file over the defaults
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the pipeline cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("task_timeout must be positive, got %s", c.TaskTimeout))
	}
	if c.HeaderRatio <= 0 || c.FooterRatio <= 0 || c.HeaderRatio+c.FooterRatio > 1 {
		errs = append(errs, fmt.Errorf("header_ratio %.2f and footer_ratio %.2f must be positive and sum to at most 1", c.HeaderRatio, c.FooterRatio))
	}
	if c.SubtotalRange.Min >= c.SubtotalRange.Max {
		errs = append(errs, errors.New("subtotal_range min must be below max"))
	}
	if c.TaxRange.Min >= c.TaxRange.Max {
		errs = append(errs, errors.New("tax_range min must be below max"))
	}
	if c.Epsilon < 0 {
		errs = append(errs, errors.New("epsilon must not be negative"))
	}
	if len(c.DateFormats) == 0 {
		errs = append(errs, errors.New("date_formats must not be empty"))
	}
	if c.NeutralConfidence < 0 || c.NeutralConfidence > 100 {
		errs = append(errs, fmt.Errorf("neutral_confidence must be within 0-100, got %.2f", c.NeutralConfidence))
	}
	if c.LabelPenalty < 0 || c.HeuristicPenalty < 0 || c.ConsistencyPenalty < 0 {
		errs = append(errs, errors.New("penalties must not be negative"))
	}
	for _, r := range c.Rules {
		if _, err := CompileRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
