package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// MockName is the registry name of the synthetic source.
const MockName = "mock"

var (
	mockJournals = []string{
		"Nature Medicine", "The Lancet", "New England Journal of Medicine",
		"JAMA", "BMJ", "Cell", "Science", "Nature", "PLoS Medicine",
		"Journal of Clinical Investigation", "Circulation", "Cancer Research",
	}
	mockAuthors = []string{
		"Dr. Smith", "Dr. Johnson", "Dr. Williams", "Dr. Brown", "Dr. Jones",
		"Dr. Garcia", "Dr. Miller", "Dr. Davis", "Dr. Rodriguez", "Dr. Martinez",
		"Dr. Anderson", "Dr. Taylor", "Dr. Thomas", "Dr. Hernandez", "Dr. Moore",
	}
	mockTitles = []string{
		"Clinical Study of %s in %s Treatment: A Randomized Controlled Trial",
		"Novel Approaches to %s Research: Implications for %s Therapy",
		"The Role of %s in Modern %s Medicine: A Comprehensive Review",
		"Advances in %s Diagnosis and %s Management: Current Perspectives",
		"Molecular Mechanisms of %s: New Insights into %s Pathophysiology",
		"%s Biomarkers in %s: Diagnostic and Therapeutic Applications",
		"Innovative %s Treatments: A Systematic Review of %s Interventions",
		"Epidemiological Trends in %s: Impact on %s Healthcare",
	}
	mockRelated = []string{
		"Cardiovascular", "Oncology", "Neurology", "Immunology", "Pediatric",
		"Geriatric", "Infectious Disease", "Metabolic", "Respiratory", "Clinical",
	}
)

// MockConfig tunes the synthetic source.
type MockConfig struct {
	Seed uint64
	// Latency simulates a network round trip.
	Latency time.Duration
	// Fixed makes every fetch return exactly maxResults records.
	Fixed bool
}

// Mock generates plausible records without network access. It is always available.
type Mock struct {
	cfg   MockConfig
	clock crawler.Clock
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewMock builds the synthetic source.
func NewMock(cfg MockConfig, clock crawler.Clock) *Mock {
	return &Mock{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Name implements crawler.SourceAdapter.
func (m *Mock) Name() string { return MockName }

// IsAvailable always reports true.
func (m *Mock) IsAvailable(context.Context) bool { return true }

// Fetch returns between 1 and maxResults generated records.
func (m *Mock) Fetch(ctx context.Context, keyword string, maxResults int) ([]crawler.Record, error) {
	if maxResults <= 0 {
		return nil, nil
	}
	if m.cfg.Latency > 0 {
		crawler.TimerPauser{}.Pause(ctx, m.cfg.Latency)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("mock fetch: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	count := maxResults
	if !m.cfg.Fixed {
		count = m.rng.IntN(maxResults) + 1
	}
	now := time.Now()
	if m.clock != nil {
		now = m.clock.Now()
	}
	records := make([]crawler.Record, 0, count)
	for i := 1; i <= count; i++ {
		records = append(records, m.generate(keyword, i, now))
	}
	return records, nil
}

func (m *Mock) generate(keyword string, index int, now time.Time) crawler.Record {
	related := mockRelated[m.rng.IntN(len(mockRelated))]
	title := fmt.Sprintf(mockTitles[m.rng.IntN(len(mockTitles))], keyword, related)
	return crawler.Record{
		Title:        fmt.Sprintf("%s (Study #%d)", title, index),
		Authors:      m.authors(),
		Journal:      mockJournals[m.rng.IntN(len(mockJournals))],
		PublishDate:  now.AddDate(0, 0, -m.rng.IntN(730)).Format("2006-01-02"),
		AbstractText: fmt.Sprintf("Background: %s has emerged as a significant factor in modern healthcare. "+
			"Methods: We analysed %d patients with %s-related conditions. "+
			"Results: Outcomes improved when %s protocols were applied.",
			keyword, 50+m.rng.IntN(450), keyword, strings.ToLower(related)),
		Keywords:     fmt.Sprintf("%s, %s, clinical research", keyword, strings.ToLower(related)),
		SourceURL:    fmt.Sprintf("https://mock-source.example.com/paper/%s/%d", strings.ToLower(keyword), index),
		OriginSource: MockName,
	}
}

func (m *Mock) authors() string {
	count := 2 + m.rng.IntN(4)
	picked := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		name := mockAuthors[m.rng.IntN(len(mockAuthors))]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		picked = append(picked, name)
	}
	return strings.Join(picked, ", ")
}
