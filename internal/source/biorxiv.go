package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

const (
	// BiorxivName is the registry name of the bioRxiv adapter.
	BiorxivName = "biorxiv"

	defaultBiorxivURL   = "https://api.biorxiv.org"
	biorxivWindow       = 30 * 24 * time.Hour
	biorxivProbeTimeout = 8 * time.Second
	biorxivJournal      = "bioRxiv Preprint"
	doiURL              = "https://doi.org/"
)

// Biorxiv lists recent preprints by date range and filters them by keyword
// locally, since the details endpoint has no search parameter.
type Biorxiv struct {
	client  *Client
	baseURL string
	clock   crawler.Clock
	logger  *zap.Logger
}

type biorxivResponse struct {
	Collection []biorxivPaper `json:"collection"`
}

type biorxivPaper struct {
	DOI      string `json:"doi"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Abstract string `json:"abstract"`
}

// NewBiorxiv builds the adapter.
func NewBiorxiv(client *Client, baseURL string, clock crawler.Clock, logger *zap.Logger) *Biorxiv {
	if baseURL == "" {
		baseURL = defaultBiorxivURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Biorxiv{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		logger:  logger.Named(BiorxivName),
	}
}

// Name implements crawler.SourceAdapter.
func (b *Biorxiv) Name() string { return BiorxivName }

// Fetch scans the last 30 days for papers mentioning keyword.
func (b *Biorxiv) Fetch(ctx context.Context, keyword string, maxResults int) ([]crawler.Record, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	now := b.now()
	body, err := b.client.Get(ctx, BiorxivName, b.detailsURL(now.Add(-biorxivWindow), now), 0)
	if err != nil {
		return nil, fmt.Errorf("biorxiv details: %w", err)
	}
	var resp biorxivResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode biorxiv: %w", err)
	}
	needle := strings.ToLower(keyword)
	records := make([]crawler.Record, 0, min(maxResults, len(resp.Collection)))
	for _, paper := range resp.Collection {
		if len(records) == maxResults {
			break
		}
		title := collapse(StripMarkup(paper.Title))
		abstract := collapse(StripMarkup(paper.Abstract))
		if !strings.Contains(strings.ToLower(title+" "+abstract), needle) {
			continue
		}
		if title == "" {
			b.logger.Warn("skipping biorxiv paper without title", zap.String("doi", paper.DOI))
			continue
		}
		record := crawler.Record{
			Title:        title,
			Authors:      strings.TrimSpace(paper.Authors),
			Journal:      biorxivJournal,
			PublishDate:  truncateDate(paper.Date),
			AbstractText: abstract,
			Keywords:     strings.TrimSpace(paper.Category),
			OriginSource: BiorxivName,
		}
		if doi := strings.TrimSpace(paper.DOI); doi != "" {
			record.SourceURL = doiURL + doi
		}
		records = append(records, record)
	}
	return records, nil
}

// IsAvailable asks for a one-day range.
func (b *Biorxiv) IsAvailable(ctx context.Context) bool {
	now := b.now()
	return b.client.Probe(ctx, b.detailsURL(now.Add(-24*time.Hour), now), biorxivProbeTimeout, "collection")
}

func (b *Biorxiv) detailsURL(start, end time.Time) string {
	const layout = "2006-01-02"
	return fmt.Sprintf("%s/details/biorxiv/%s/%s", b.baseURL, start.Format(layout), end.Format(layout))
}

func (b *Biorxiv) now() time.Time {
	if b.clock != nil {
		return b.clock.Now()
	}
	return time.Now().UTC()
}
