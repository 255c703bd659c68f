package extraction

import (
	"math"
	"sort"
	"strings"
)

// Regions holds the text of each vertical zone
type Regions struct {
	Header string
	Body   string
	Footer string
}

// Text returns the text for region. RegionAll joins the three zones.
func (r Regions) Text(region Region) string {
	switch region {
	case RegionHeader:
		return r.Header
	case RegionBody:
		return r.Body
	case RegionFooter:
		return r.Footer
	default:
		return joinNonEmpty(r.Header, r.Body, r.Footer)
	}
}

// Segmenter splits a page into header, body and footer by fixed proportions
type Segmenter struct {
	headerRatio float64
	footerRatio float64
}

// NewSegmenter creates a Segmenter. Ratios outside (0,1) fall back to 0.3.
func NewSegmenter(headerRatio, footerRatio float64) *Segmenter {
	if headerRatio <= 0 || headerRatio >= 1 {
		headerRatio = 0.3
	}
	if footerRatio <= 0 || footerRatio >= 1 || headerRatio+footerRatio > 1 {
		footerRatio = 0.3
	}
	return &Segmenter{headerRatio: headerRatio, footerRatio: footerRatio}
}

// Segment splits text by line count: the first headerRatio of the lines
// become the header, the last footerRatio the footer, the rest the body.
func (s *Segmenter) Segment(text string) Regions {
	lines := splitLines(text)
	n := len(lines)
	if n == 0 {
		return Regions{}
	}
	headerEnd := int(math.Ceil(float64(n)*s.headerRatio - 1e-9))
	bodyEnd := int(math.Floor(float64(n)*(1-s.footerRatio) + 1e-9))
	if bodyEnd < headerEnd {
		bodyEnd = headerEnd
	}
	if bodyEnd > n {
		bodyEnd = n
	}
	return Regions{
		Header: strings.Join(lines[:headerEnd], "\n"),
		Body:   strings.Join(lines[headerEnd:bodyEnd], "\n"),
		Footer: strings.Join(lines[bodyEnd:], "\n"),
	}
}

// SegmentTokens splits tokens by the vertical centre of their boxes relative
// to the page height, then rebuilds the text lines of each zone.
func (s *Segmenter) SegmentTokens(tokens []Token) Regions {
	var height int
	for _, t := range tokens {
		if bottom := t.Box.Y + t.Box.Height; bottom > height {
			height = bottom
		}
	}
	if height == 0 {
		return Regions{}
	}

	headerLimit := float64(height) * s.headerRatio
	footerStart := float64(height) * (1 - s.footerRatio)
	var header, body, footer []Token
	for _, t := range tokens {
		centre := float64(t.Box.Y) + float64(t.Box.Height)/2
		switch {
		case centre < headerLimit:
			header = append(header, t)
		case centre < footerStart:
			body = append(body, t)
		default:
			footer = append(footer, t)
		}
	}
	return Regions{
		Header: strings.Join(LinesFromTokens(header), "\n"),
		Body:   strings.Join(LinesFromTokens(body), "\n"),
		Footer: strings.Join(LinesFromTokens(footer), "\n"),
	}
}

// hasGeometry reports whether any token carries a bounding box
func hasGeometry(tokens []Token) bool {
	for _, t := range tokens {
		if t.Box.Height > 0 {
			return true
		}
	}
	return false
}

// LinesFromTokens groups tokens into text lines. Tokens whose vertical
// centre falls within half a line height of the current line join it;
// words inside a line are ordered left to right.
func LinesFromTokens(tokens []Token) []string {
	if len(tokens) == 0 {
		return nil
	}
	sorted := make([]Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Box.Y < sorted[j].Box.Y
	})

	var rows [][]Token
	var rowCentre, rowHeight float64
	for _, t := range sorted {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		centre := float64(t.Box.Y) + float64(t.Box.Height)/2
		if len(rows) > 0 && math.Abs(centre-rowCentre) <= math.Max(rowHeight, float64(t.Box.Height))/2 {
			rows[len(rows)-1] = append(rows[len(rows)-1], t)
			continue
		}
		rows = append(rows, []Token{t})
		rowCentre = centre
		rowHeight = float64(t.Box.Height)
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Box.X < row[j].Box.X
		})
		words := make([]string, len(row))
		for i, t := range row {
			words[i] = strings.TrimSpace(t.Text)
		}
		lines = append(lines, strings.Join(words, " "))
	}
	return lines
}

func splitLines(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(text, "\n"), "\n")
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
