package source

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const biorxivBody = `{
  "messages": [{"status": "ok", "count": 3}],
  "collection": [
    {"doi": "10.1101/2024.01.01.000001", "title": "CRISPR screens in <i>Drosophila</i>",
     "authors": "Doe, J.; Roe, R.", "date": "2024-01-01", "category": "genetics",
     "abstract": "Genome-wide &amp; targeted screens."},
    {"doi": "10.1101/2024.01.02.000002", "title": "Protein folding dynamics",
     "authors": "Poe, E.", "date": "2024-01-02", "category": "biophysics",
     "abstract": "No gene editing here."},
    {"doi": "10.1101/2024.01.03.000003", "title": "Base editing outcomes",
     "authors": "Moe, M.", "date": "2024-01-03T00:00:00", "category": "genomics",
     "abstract": "Improving crispr base editors."}
  ]
}`

func TestBiorxivFetchFiltersByKeyword(t *testing.T) {
	t.Parallel()
	var path string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(biorxivBody))
	})
	clock := fixedClock{now: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)}

	records, err := NewBiorxiv(newTestClient(t), srv.URL, clock, nil).Fetch(context.Background(), "CRISPR", 10)
	require.NoError(t, err)
	require.Equal(t, "/details/biorxiv/2024-01-02/2024-02-01", path)
	require.Len(t, records, 2)

	require.Equal(t, "CRISPR screens in Drosophila", records[0].Title)
	require.Equal(t, "Genome-wide & targeted screens.", records[0].AbstractText)
	require.Equal(t, "https://doi.org/10.1101/2024.01.01.000001", records[0].SourceURL)
	require.Equal(t, "genetics", records[0].Keywords)
	require.Equal(t, "bioRxiv Preprint", records[0].Journal)
	require.Equal(t, BiorxivName, records[0].OriginSource)
	require.Equal(t, "2024-01-03", records[1].PublishDate)
}

func TestBiorxivFetchRespectsMaxResults(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(biorxivBody))
	})

	records, err := NewBiorxiv(newTestClient(t), srv.URL, nil, nil).Fetch(context.Background(), "crispr", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestBiorxivIsAvailable(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"status":"no posts found"}]}`))
	})
	require.False(t, NewBiorxiv(newTestClient(t), srv.URL, nil, nil).IsAvailable(context.Background()))

	ok := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(biorxivBody))
	})
	require.True(t, NewBiorxiv(newTestClient(t), ok.URL, nil, nil).IsAvailable(context.Background()))
}
