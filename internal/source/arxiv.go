package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

const (
	// ArxivName is the registry name of the arXiv adapter.
	ArxivName = "arxiv"

	defaultArxivURL   = "https://export.arxiv.org/api/query"
	arxivMaxPerCall   = 50
	arxivMaxAuthors   = 10
	arxivProbeTimeout = 8 * time.Second
	arxivJournal      = "arXiv Preprint"
)

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	client  *Client
	baseURL string
	logger  *zap.Logger
}

// NewArxiv builds the adapter. An empty baseURL uses the public endpoint.
func NewArxiv(client *Client, baseURL string, logger *zap.Logger) *Arxiv {
	if baseURL == "" {
		baseURL = defaultArxivURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arxiv{client: client, baseURL: baseURL, logger: logger.Named(ArxivName)}
}

// Name implements crawler.SourceAdapter.
func (a *Arxiv) Name() string { return ArxivName }

// Fetch returns up to min(maxResults, 50) of the newest matching entries.
func (a *Arxiv) Fetch(ctx context.Context, keyword string, maxResults int) ([]crawler.Record, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	body, err := a.client.Get(ctx, ArxivName, a.searchURL(keyword, min(maxResults, arxivMaxPerCall)), 0)
	if err != nil {
		return nil, fmt.Errorf("arxiv search: %w", err)
	}
	records, err := a.parse(body)
	if err != nil {
		return nil, err
	}
	if len(records) > maxResults {
		records = records[:maxResults]
	}
	return records, nil
}

// IsAvailable asks for a single entry.
func (a *Arxiv) IsAvailable(ctx context.Context) bool {
	return a.client.Probe(ctx, a.searchURL("cancer", 1), arxivProbeTimeout, "entry")
}

func (a *Arxiv) searchURL(keyword string, limit int) string {
	q := url.Values{}
	q.Set("search_query", "all:"+keyword)
	q.Set("sortBy", "submittedDate")
	q.Set("sortOrder", "descending")
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(limit))
	return a.baseURL + "?" + q.Encode()
}

func (a *Arxiv) parse(body []byte) ([]crawler.Record, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}
	entries := xmlquery.Find(doc, "//entry")
	records := make([]crawler.Record, 0, len(entries))
	for i, entry := range entries {
		record, ok := a.parseEntry(entry)
		if !ok {
			a.logger.Warn("skipping arxiv entry without title", zap.Int("index", i))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (a *Arxiv) parseEntry(entry *xmlquery.Node) (crawler.Record, bool) {
	title := collapse(childText(entry, "title"))
	if title == "" {
		return crawler.Record{}, false
	}
	var authors []string
	for _, n := range xmlquery.Find(entry, "author/name") {
		if name := collapse(n.InnerText()); name != "" {
			authors = append(authors, name)
		}
		if len(authors) == arxivMaxAuthors {
			break
		}
	}
	var keywords string
	if cat := xmlquery.FindOne(entry, "category"); cat != nil {
		keywords = cat.SelectAttr("term")
	}
	return crawler.Record{
		Title:        title,
		Authors:      strings.Join(authors, ", "),
		Journal:      arxivJournal,
		PublishDate:  truncateDate(childText(entry, "published")),
		AbstractText: collapse(childText(entry, "summary")),
		Keywords:     keywords,
		SourceURL:    strings.TrimSpace(childText(entry, "id")),
		OriginSource: ArxivName,
	}, true
}

func childText(n *xmlquery.Node, expr string) string {
	child := xmlquery.FindOne(n, expr)
	if child == nil {
		return ""
	}
	return child.InnerText()
}
