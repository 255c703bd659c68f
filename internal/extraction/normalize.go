package extraction

import (
	"regexp"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

var (
	reLineBreaks   = regexp.MustCompile(`\r\n?`)
	reNumericToken = regexp.MustCompile(`^([^0-9A-Za-z|]*)([0-9OolI|][0-9OolI|.,/\-]*)([^0-9A-Za-z|]*)$`)
)

// digitConfusions maps characters OCR engines commonly emit in place of digits
var digitConfusions = strings.NewReplacer(
	"O", "0",
	"o", "0",
	"l", "1",
	"I", "1",
	"|", "1",
)

// NormalizationCache memoizes Normalize results. The underlying LRU is not
// safe for concurrent use, so every access goes through mu.
type NormalizationCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewNormalizationCache creates a cache bounded to capacity entries.
// A capacity of zero or less returns nil, which disables caching.
func NewNormalizationCache(capacity int) *NormalizationCache {
	if capacity <= 0 {
		return nil
	}
	return &NormalizationCache{cache: lru.New(capacity)}
}

func (c *NormalizationCache) get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *NormalizationCache) add(key, value string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, value)
}

// Len returns the number of cached entries
func (c *NormalizationCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Normalizer cleans raw OCR text before pattern matching
type Normalizer struct {
	cache          *NormalizationCache
	keepBlankLines bool
}

// NewNormalizer creates a Normalizer. cache may be nil.
func NewNormalizer(cache *NormalizationCache, keepBlankLines bool) *Normalizer {
	return &Normalizer{cache: cache, keepBlankLines: keepBlankLines}
}

// Normalize unifies line breaks, collapses whitespace within each line and
// repairs digit confusions inside numeric tokens. It never fails.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	if cached, ok := n.cache.get(text); ok {
		return cached
	}

	lines := strings.Split(reLineBreaks.ReplaceAllString(text, "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		cleaned := fields[:0]
		for _, f := range fields {
			if f = fixToken(f); f != "" {
				cleaned = append(cleaned, f)
			}
		}
		line = strings.Join(cleaned, " ")
		if line == "" && !n.keepBlankLines {
			continue
		}
		out = append(out, line)
	}
	result := strings.Join(out, "\n")

	n.cache.add(text, result)
	return result
}

// fixToken repairs a single whitespace-free token. Bare table rules are dropped.
// A letter ending a token without separators is a unit ("5l"), not a digit.
func fixToken(tok string) string {
	if strings.Trim(tok, "|") == "" {
		return ""
	}
	m := reNumericToken.FindStringSubmatch(tok)
	if m == nil || !strings.ContainsAny(m[2], "0123456789") {
		return strings.ReplaceAll(tok, "|", "I")
	}
	core, unit := m[2], ""
	if last := core[len(core)-1]; strings.IndexByte("OolI", last) >= 0 && !strings.ContainsAny(core, ".,/-") {
		core, unit = core[:len(core)-1], core[len(core)-1:]
	}
	return m[1] + digitConfusions.Replace(core) + unit + m[3]
}
