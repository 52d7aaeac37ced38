package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCrawlResultCompleted(t *testing.T) {
	t.Parallel()

	require.True(t, CrawlResult{Message: "crawl completed: found 3, saved 2"}.Completed())
	require.False(t, CrawlResult{Message: "crawl failed: store down"}.Completed())
	require.False(t, CrawlResult{Message: "crawler disabled"}.Completed())
	require.False(t, CrawlResult{}.Completed())
}

func TestCrawlResultTPS(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 4.0, CrawlResult{Saved: 2, DurationMs: 500}.TPS(), 1e-9)
	require.Zero(t, CrawlResult{Saved: 2}.TPS())
}

func TestCleanSourceNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"arxiv", "pubmed"}, CleanSourceNames([]string{" ArXiv ", "", "PUBMED"}))
	require.Nil(t, CleanSourceNames([]string{"  "}))
	require.Nil(t, CleanSourceNames(nil))
}
