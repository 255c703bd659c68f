package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Option customizes an Extractor
type Option func(*Extractor)

// WithLogger sets the logger used for task diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}

// WithCache injects a normalization cache. A nil cache disables caching.
func WithCache(cache *NormalizationCache) Option {
	return func(x *Extractor) {
		x.cache = cache
		x.cacheSet = true
	}
}

// withBeforeTask runs hook at the start of every task
func withBeforeTask(hook func(ctx context.Context, name string)) Option {
	return func(x *Extractor) {
		x.beforeTask = hook
	}
}

// WithPatternLibrary replaces the built-in pattern library
func WithPatternLibrary(library *PatternLibrary) Option {
	return func(x *Extractor) {
		x.library = library
	}
}

// Extractor turns a RawDocument into a Result. Field groups and the line
// item scan run as independent tasks on a bounded worker pool; each task has
// its own timeout and the assembler runs once every task has finished.
// An Extractor is safe for concurrent use.
type Extractor struct {
	cfg      Config
	logger   *slog.Logger
	cache    *NormalizationCache
	cacheSet bool
	library  *PatternLibrary

	normalizer *Normalizer
	segmenter  *Segmenter
	fields     *FieldExtractor
	items      *LineItemExtractor
	assembler  *Assembler

	beforeTask func(ctx context.Context, name string)
}

// New creates an Extractor
func New(cfg Config, opts ...Option) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}

	x := &Extractor{
		cfg:     cfg,
		logger:  slog.Default(),
		library: DefaultPatternLibrary(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if !x.cacheSet {
		x.cache = NewNormalizationCache(cfg.CacheCapacity)
	}

	if len(cfg.Rules) > 0 {
		extra := make([]PatternRule, 0, len(cfg.Rules))
		for _, spec := range cfg.Rules {
			r, err := CompileRule(spec)
			if err != nil {
				return nil, err
			}
			extra = append(extra, r)
		}
		lib, err := x.library.With(extra...)
		if err != nil {
			return nil, fmt.Errorf("adding configured rules: %w", err)
		}
		x.library = lib
	}

	x.normalizer = NewNormalizer(x.cache, cfg.KeepBlankLines)
	x.segmenter = NewSegmenter(cfg.HeaderRatio, cfg.FooterRatio)
	x.fields = NewFieldExtractor(x.library, cfg)
	x.items = NewLineItemExtractor(cfg.UnitKeywords, cfg.DescriptionMarkers)
	x.assembler = NewAssembler(cfg)
	return x, nil
}

// taskOutput is what a task hands back to the assembler
type taskOutput struct {
	values   []*ExtractedValue
	items    []LineItem
	warnings []Warning
}

type task struct {
	name   string
	fields []Field
	run    func(ctx context.Context) (taskOutput, error)
}

// Extract runs the pipeline. A nil document returns ErrInvalidInput; empty
// text returns an empty invoice with zero confidence. If ctx is cancelled the
// context error is returned and no partial result is produced.
func (x *Extractor) Extract(ctx context.Context, doc *RawDocument) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	text := x.normalizer.Normalize(doc.FullText)
	if text == "" {
		return x.assembler.Assemble(AssemblyInput{Document: doc}), nil
	}

	regions, explicit := x.regions(doc, text)
	tasks := x.tasks(text, regions, explicit)
	outputs := make([]taskOutput, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Workers)
	for i, t := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := x.runTask(gctx, t)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extracting invoice: %w", err)
	}

	in := AssemblyInput{Document: doc, Text: text}
	for _, out := range outputs {
		in.Values = append(in.Values, out.values...)
		in.Warnings = append(in.Warnings, out.warnings...)
		if out.items != nil {
			in.Items = out.items
		}
	}
	res := x.assembler.Assemble(in)

	x.logger.Debug("Extracted invoice",
		"fields", len(res.Matches),
		"line_items", len(res.Invoice.LineItems),
		"warnings", len(res.Warnings),
		"confidence", res.Invoice.Confidence,
	)
	return res, nil
}

// runTask executes t under its own timeout. A timed-out task yields no
// values and a timeout warning per field; cancellation of ctx is an error.
func (x *Extractor) runTask(ctx context.Context, t task) (taskOutput, error) {
	tctx, cancel := context.WithTimeout(ctx, x.cfg.TaskTimeout)
	defer cancel()

	type outcome struct {
		out taskOutput
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		if x.beforeTask != nil {
			x.beforeTask(tctx, t.name)
		}
		if err := tctx.Err(); err != nil {
			done <- outcome{err: err}
			return
		}
		out, err := t.run(tctx)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return o.out, nil
		}
		if ctx.Err() != nil {
			return taskOutput{}, ctx.Err()
		}
		if errors.Is(o.err, context.DeadlineExceeded) {
			return x.timedOut(t), nil
		}
		return taskOutput{}, o.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return taskOutput{}, err
		}
		return x.timedOut(t), nil
	}
}

func (x *Extractor) timedOut(t task) taskOutput {
	x.logger.Warn("Extraction task timed out", "task", t.name, "timeout", x.cfg.TaskTimeout)
	msg := fmt.Sprintf("%s task exceeded %s", t.name, x.cfg.TaskTimeout)
	if len(t.fields) == 0 {
		return taskOutput{warnings: []Warning{{Kind: WarningTimeout, Message: msg}}}
	}
	out := taskOutput{}
	for _, f := range t.fields {
		out.warnings = append(out.warnings, Warning{Kind: WarningTimeout, Field: f, Message: msg})
	}
	return out
}

// regions picks the zone text: explicit OCR regions first, then token
// geometry, then line proportions of the normalized text
func (x *Extractor) regions(doc *RawDocument, text string) (Regions, bool) {
	if len(doc.Regions) > 0 {
		return Regions{
			Header: x.normalizer.Normalize(doc.Regions[RegionHeader]),
			Body:   x.normalizer.Normalize(doc.Regions[RegionBody]),
			Footer: x.normalizer.Normalize(doc.Regions[RegionFooter]),
		}, true
	}
	if hasGeometry(doc.Tokens) {
		r := x.segmenter.SegmentTokens(doc.Tokens)
		return Regions{
			Header: x.normalizer.Normalize(r.Header),
			Body:   x.normalizer.Normalize(r.Body),
			Footer: x.normalizer.Normalize(r.Footer),
		}, false
	}
	return x.segmenter.Segment(text), false
}

func (x *Extractor) tasks(text string, regions Regions, explicit bool) []task {
	header := regions.Header
	if header == "" {
		header = x.segmenter.Segment(text).Header
	}
	itemText := text
	if explicit && regions.Body != "" {
		itemText = regions.Body
	}

	single := func(f Field) task {
		return task{name: string(f), fields: []Field{f}, run: func(ctx context.Context) (taskOutput, error) {
			var out taskOutput
			v, err := x.extract(ctx, &out, f, text, &regions)
			if err != nil {
				return out, err
			}
			out.add(v)
			return out, nil
		}}
	}

	return []task{
		{name: "companies", fields: []Field{FieldSenderCompany, FieldRecipientCompany},
			run: func(ctx context.Context) (taskOutput, error) {
				return x.companies(ctx, text, header, &regions)
			}},
		{name: "address", fields: []Field{FieldSenderAddress},
			run: func(ctx context.Context) (taskOutput, error) {
				return x.address(ctx, text, header, &regions)
			}},
		single(FieldInvoiceNumber),
		{name: "dates", fields: []Field{FieldInvoiceDate, FieldDueDate},
			run: func(ctx context.Context) (taskOutput, error) {
				var out taskOutput
				for _, f := range []Field{FieldInvoiceDate, FieldDueDate} {
					v, err := x.extract(ctx, &out, f, text, &regions)
					if err != nil {
						return out, err
					}
					out.add(v)
				}
				return out, nil
			}},
		{name: "amounts", fields: []Field{FieldSubtotal, FieldTax, FieldTotal},
			run: func(ctx context.Context) (taskOutput, error) {
				return x.amounts(ctx, text, &regions)
			}},
		single(FieldCurrency),
		single(FieldTaxID),
		{name: "line_items",
			run: func(ctx context.Context) (taskOutput, error) {
				items, err := x.items.Extract(ctx, splitLines(itemText))
				if err != nil {
					return taskOutput{}, err
				}
				return taskOutput{items: items}, nil
			}},
	}
}

func (o *taskOutput) add(v *ExtractedValue) {
	if v != nil {
		o.values = append(o.values, v)
	}
}

// extract wraps ExtractField, turning normalization failures into warnings.
// Only context errors are returned.
func (x *Extractor) extract(ctx context.Context, out *taskOutput, f Field, text string, regions *Regions) (*ExtractedValue, error) {
	v, err := x.fields.ExtractField(ctx, f, text, regions)
	if err == nil {
		return v, nil
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		return nil, err
	}
	out.warnings = append(out.warnings, Warning{
		Kind:    WarningNormalization,
		Field:   f,
		Message: fieldErr.Error(),
		Raw:     fieldErr.Raw,
	})
	return v, nil
}

func (x *Extractor) companies(ctx context.Context, text, header string, regions *Regions) (taskOutput, error) {
	var out taskOutput
	sender, err := x.extract(ctx, &out, FieldSenderCompany, text, regions)
	if err != nil {
		return out, err
	}
	recipient, err := x.extract(ctx, &out, FieldRecipientCompany, text, regions)
	if err != nil {
		return out, err
	}

	if sender == nil || recipient == nil {
		candidates := x.fields.CompanyCandidates(header)
		if sender == nil && len(candidates) > 0 {
			sender = heuristicText(FieldSenderCompany, candidates[0], "uppercase-header")
			candidates = candidates[1:]
		}
		if recipient == nil {
			for _, c := range candidates {
				if sender != nil && c == sender.Text {
					continue
				}
				recipient = heuristicText(FieldRecipientCompany, c, "uppercase-header")
				break
			}
		}
	}
	out.add(sender)
	out.add(recipient)
	return out, nil
}

func (x *Extractor) address(ctx context.Context, text, header string, regions *Regions) (taskOutput, error) {
	var out taskOutput
	v, err := x.extract(ctx, &out, FieldSenderAddress, text, regions)
	if err != nil {
		return out, err
	}
	if v == nil {
		if addr, ok := AddressFromHeader(header); ok {
			v = heuristicText(FieldSenderAddress, addr, "street-lines")
		}
	}
	out.add(v)
	return out, nil
}

// amounts resolves subtotal, tax and total. Fields without any labeled match
// fall back to the range heuristic; a missing total is derived from
// subtotal + tax.
func (x *Extractor) amounts(ctx context.Context, text string, regions *Regions) (taskOutput, error) {
	var out taskOutput
	resolved := make(map[Field]*ExtractedValue, 3)
	failed := make(map[Field]bool, 3)
	for _, f := range []Field{FieldSubtotal, FieldTax, FieldTotal} {
		before := len(out.warnings)
		v, err := x.extract(ctx, &out, f, text, regions)
		if err != nil {
			return out, err
		}
		resolved[f] = v
		failed[f] = len(out.warnings) > before
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	subtotal, tax := resolved[FieldSubtotal], resolved[FieldTax]
	if (subtotal == nil && !failed[FieldSubtotal]) || (tax == nil && !failed[FieldTax]) {
		hs, ht := amountHeuristic(text, x.cfg.SubtotalRange, x.cfg.TaxRange)
		if subtotal == nil && !failed[FieldSubtotal] && hs.Valid {
			subtotal = heuristicAmount(FieldSubtotal, hs.Decimal, hs.Decimal.StringFixed(2), "amount-range")
		}
		if tax == nil && !failed[FieldTax] && ht.Valid {
			tax = heuristicAmount(FieldTax, ht.Decimal, ht.Decimal.StringFixed(2), "amount-range")
		}
	}

	total := resolved[FieldTotal]
	if total == nil && !failed[FieldTotal] && subtotal != nil && tax != nil {
		sum := subtotal.Amount.Add(tax.Amount)
		total = heuristicAmount(FieldTotal, sum, subtotal.RawMatch+" + "+tax.RawMatch, "subtotal-plus-tax")
	}

	out.add(subtotal)
	out.add(tax)
	out.add(total)
	return out, nil
}

func heuristicText(f Field, text, rule string) *ExtractedValue {
	return &ExtractedValue{Field: f, RawMatch: text, Kind: KindText, Text: text, Method: MethodHeuristic, Rule: rule}
}

func heuristicAmount(f Field, d decimal.Decimal, raw, rule string) *ExtractedValue {
	return &ExtractedValue{Field: f, RawMatch: raw, Kind: KindAmount, Amount: d, Method: MethodHeuristic, Rule: rule}
}
