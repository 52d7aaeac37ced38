package source

import (
	"bytes"
	"context"
	"encoding/json"
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
	// PubmedName is the registry name of the PubMed adapter.
	PubmedName = "pubmed"

	defaultPubmedURL   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	pubmedMaxPerCall   = 100
	pubmedMaxAuthors   = 10
	pubmedProbeTimeout = 5 * time.Second
	pubmedArticleURL   = "https://pubmed.ncbi.nlm.nih.gov/%s/"
)

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// Pubmed queries NCBI E-utilities: esearch for IDs, then efetch for details.
type Pubmed struct {
	client  *Client
	baseURL string
	logger  *zap.Logger
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// NewPubmed builds the adapter. baseURL is the eutils root.
func NewPubmed(client *Client, baseURL string, logger *zap.Logger) *Pubmed {
	if baseURL == "" {
		baseURL = defaultPubmedURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pubmed{client: client, baseURL: strings.TrimRight(baseURL, "/"), logger: logger.Named(PubmedName)}
}

// Name implements crawler.SourceAdapter.
func (p *Pubmed) Name() string { return PubmedName }

// Fetch searches titles and abstracts, newest first.
func (p *Pubmed) Fetch(ctx context.Context, keyword string, maxResults int) ([]crawler.Record, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	ids, err := p.search(ctx, keyword, min(maxResults, pubmedMaxPerCall))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		p.logger.Info("no pubmed ids for keyword", zap.String("keyword", keyword))
		return nil, nil
	}
	body, err := p.client.Get(ctx, PubmedName, p.fetchURL(ids), 0)
	if err != nil {
		return nil, fmt.Errorf("pubmed efetch: %w", err)
	}
	return p.parse(body)
}

// IsAvailable runs a one-result search.
func (p *Pubmed) IsAvailable(ctx context.Context) bool {
	return p.client.Probe(ctx, p.searchURL("test", 1), pubmedProbeTimeout, "esearchresult")
}

func (p *Pubmed) search(ctx context.Context, keyword string, limit int) ([]string, error) {
	body, err := p.client.Get(ctx, PubmedName, p.searchURL(keyword, limit), 0)
	if err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	return resp.Result.IDList, nil
}

func (p *Pubmed) searchURL(keyword string, limit int) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", keyword+"[Title/Abstract]")
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(limit))
	q.Set("sort", "pub date")
	return p.baseURL + "/esearch.fcgi?" + q.Encode()
}

func (p *Pubmed) fetchURL(ids []string) string {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")
	return p.baseURL + "/efetch.fcgi?" + q.Encode()
}

func (p *Pubmed) parse(body []byte) ([]crawler.Record, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse efetch: %w", err)
	}
	articles := xmlquery.Find(doc, "//PubmedArticle")
	records := make([]crawler.Record, 0, len(articles))
	for _, article := range articles {
		record, ok := p.parseArticle(article)
		if !ok {
			p.logger.Warn("skipping pubmed article without title",
				zap.String("pmid", childText(article, "MedlineCitation/PMID")))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *Pubmed) parseArticle(article *xmlquery.Node) (crawler.Record, bool) {
	citation := xmlquery.FindOne(article, "MedlineCitation")
	if citation == nil {
		return crawler.Record{}, false
	}
	title := collapse(childText(citation, "Article/ArticleTitle"))
	if title == "" {
		return crawler.Record{}, false
	}
	pmid := strings.TrimSpace(childText(citation, "PMID"))

	var keywords []string
	for _, kw := range xmlquery.Find(citation, "KeywordList/Keyword") {
		if text := collapse(kw.InnerText()); text != "" {
			keywords = append(keywords, text)
		}
	}

	record := crawler.Record{
		Title:        title,
		Authors:      pubmedAuthors(citation),
		Journal:      collapse(childText(citation, "Article/Journal/Title")),
		PublishDate:  pubmedDate(xmlquery.FindOne(citation, "Article/Journal/JournalIssue/PubDate")),
		AbstractText: pubmedAbstract(citation),
		Keywords:     strings.Join(keywords, ", "),
		OriginSource: PubmedName,
	}
	if pmid != "" {
		record.SourceURL = fmt.Sprintf(pubmedArticleURL, pmid)
	}
	return record, true
}

func pubmedAuthors(citation *xmlquery.Node) string {
	var names []string
	for _, author := range xmlquery.Find(citation, "Article/AuthorList/Author") {
		if len(names) == pubmedMaxAuthors {
			break
		}
		if collective := collapse(childText(author, "CollectiveName")); collective != "" {
			names = append(names, collective)
			continue
		}
		last := collapse(childText(author, "LastName"))
		if last == "" {
			continue
		}
		if initials := collapse(childText(author, "Initials")); initials != "" {
			last += " " + initials
		}
		names = append(names, last)
	}
	return strings.Join(names, ", ")
}

func pubmedAbstract(citation *xmlquery.Node) string {
	var parts []string
	for _, section := range xmlquery.Find(citation, "Article/Abstract/AbstractText") {
		text := collapse(section.InnerText())
		if text == "" {
			continue
		}
		if label := section.SelectAttr("Label"); label != "" {
			text = label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

func pubmedDate(pubDate *xmlquery.Node) string {
	if pubDate == nil {
		return ""
	}
	year := strings.TrimSpace(childText(pubDate, "Year"))
	if year == "" {
		// MedlineDate looks like "2023 Jan-Feb".
		medline := strings.TrimSpace(childText(pubDate, "MedlineDate"))
		if len(medline) >= 4 {
			return medline[:4]
		}
		return ""
	}
	month := normalizeMonth(childText(pubDate, "Month"))
	if month == "" {
		return year
	}
	day := strings.TrimSpace(childText(pubDate, "Day"))
	if day == "" {
		return year + "-" + month
	}
	if len(day) == 1 {
		day = "0" + day
	}
	return year + "-" + month + "-" + day
}

func normalizeMonth(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 1 && n <= 12 {
		return fmt.Sprintf("%02d", n)
	}
	if len(raw) >= 3 {
		return monthNumbers[raw[:3]]
	}
	return ""
}
