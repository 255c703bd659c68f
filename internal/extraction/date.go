package extraction

import (
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// DefaultDateFormats are tried in order; day comes before month
var DefaultDateFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2-1-06",
	"2.1.06",
	isoDate,
	"2 Jan 2006",
	"2 January 2006",
}

// NormalizeDate parses raw with the first matching layout and returns it in
// ISO form. When nothing matches the raw string is kept with Normalized
// unset and ErrUnparseable is returned alongside it.
func NormalizeDate(raw string, layouts []string) (*Date, error) {
	s := strings.Trim(strings.TrimSpace(raw), ".,")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &Date{Value: t.Format(isoDate), Raw: raw, Normalized: true}, nil
		}
	}
	return &Date{Value: raw, Raw: raw}, fmt.Errorf("%w: date %q", ErrUnparseable, raw)
}
