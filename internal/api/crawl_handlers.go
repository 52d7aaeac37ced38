package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

var errKeywordRequired = errors.New("keyword is required")

// crawlBody is the JSON body accepted by POST /crawl and POST /tasks.
type crawlBody struct {
	Keyword    string   `json:"keyword"`
	MaxResults *int     `json:"max_results"`
	Sources    []string `json:"sources"`
	Classify   bool     `json:"classify_enabled"`
}

func (b crawlBody) toRequest() (crawler.CrawlRequest, error) {
	keyword := strings.TrimSpace(b.Keyword)
	if keyword == "" {
		return crawler.CrawlRequest{}, errKeywordRequired
	}
	maxResults := crawler.DefaultMaxResults
	if b.MaxResults != nil {
		maxResults = *b.MaxResults
	}
	return crawler.CrawlRequest{
		Keyword:         keyword,
		MaxResults:      maxResults,
		Sources:         crawler.CleanSourceNames(b.Sources),
		ClassifyEnabled: b.Classify,
	}, nil
}

// crawlQuery handles GET /crawl?keyword=&maxResults=&source=&classify=.
func (s *Server) crawlQuery(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runCrawl(w, r, req)
}

// crawlJSON handles POST /crawl with a crawlBody payload.
func (s *Server) crawlJSON(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCrawlBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runCrawl(w, r, req)
}

// runCrawl always answers 200; failures travel in the result message.
func (s *Server) runCrawl(w http.ResponseWriter, r *http.Request, req crawler.CrawlRequest) {
	result := s.crawler.Crawl(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.crawler.GetStatus(r.Context()))
}

func requestFromQuery(r *http.Request) (crawler.CrawlRequest, error) {
	q := r.URL.Query()
	body := crawlBody{Keyword: q.Get("keyword")}
	if raw := q.Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return crawler.CrawlRequest{}, errors.New("invalid maxResults")
		}
		body.MaxResults = &n
	}
	if raw := q.Get("classify"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return crawler.CrawlRequest{}, errors.New("invalid classify")
		}
		body.Classify = v
	}
	for _, src := range q["source"] {
		body.Sources = append(body.Sources, strings.Split(src, ",")...)
	}
	return body.toRequest()
}

func decodeCrawlBody(r *http.Request) (crawler.CrawlRequest, error) {
	var body crawlBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return crawler.CrawlRequest{}, errors.New("invalid JSON")
	}
	return body.toRequest()
}
