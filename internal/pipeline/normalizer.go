package pipeline

import (
	"strings"
	"time"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// Field ceilings, counted in characters. A truncated field ends with Ellipsis.
const (
	MaxTitleLen    = 500
	MaxAuthorsLen  = 1000
	MaxAbstractLen = 5000
	MaxKeywordsLen = 500

	Ellipsis       = "..."
	UnknownJournal = "Unknown"
)

// Normalizer cleans records and fills defaults. It is stateless apart from its clock.
type Normalizer struct {
	clock crawler.Clock
}

// NewNormalizer builds a Normalizer. A nil clock uses time.Now.
func NewNormalizer(clock crawler.Clock) *Normalizer {
	return &Normalizer{clock: clock}
}

// Normalize rewrites every record in place.
func (n *Normalizer) Normalize(records []crawler.Record) {
	if len(records) == 0 {
		return
	}
	now := n.now()
	for i := range records {
		n.normalizeOne(&records[i], now)
	}
}

func (n *Normalizer) normalizeOne(r *crawler.Record, now time.Time) {
	r.Title = Truncate(CollapseWhitespace(r.Title), MaxTitleLen)
	r.Authors = Truncate(strings.TrimSpace(r.Authors), MaxAuthorsLen)
	r.AbstractText = Truncate(CollapseWhitespace(r.AbstractText), MaxAbstractLen)
	r.Keywords = Truncate(strings.TrimSpace(r.Keywords), MaxKeywordsLen)
	r.Journal = strings.TrimSpace(r.Journal)
	if r.Journal == "" {
		r.Journal = UnknownJournal
	}
	if r.Status == "" {
		r.Status = crawler.RecordStatusActive
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
}

func (n *Normalizer) now() time.Time {
	if n.clock != nil {
		return n.clock.Now()
	}
	return time.Now().UTC()
}

// CollapseWhitespace trims s and folds internal whitespace runs into one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps s at limit characters, replacing the tail with Ellipsis.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	keep := limit - len(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + Ellipsis
}
