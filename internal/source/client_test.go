package source

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

func TestClientGetReturnsStatusError(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := newTestClient(t).Get(context.Background(), "test", srv.URL, 0)
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.True(t, statusErr.Permanent())
}

func TestClientRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	client := newTestClient(t,
		WithRetryPolicy(crawler.NewExponentialRetryPolicy(3)),
		WithPauser(noPause{}),
	)
	body, err := client.Get(context.Background(), "test", srv.URL, 0)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	client := newTestClient(t,
		WithRetryPolicy(crawler.NewExponentialRetryPolicy(3)),
		WithPauser(noPause{}),
	)
	_, err := client.Get(context.Background(), "test", srv.URL, 0)
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientArchivesResponses(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"collection":[]}`))
	})
	archive := newMemoryArchive()
	clock := fixedClock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	client := NewClient(
		newTestClient(t).fetcher,
		ClientConfig{ArchivePrefix: "raw"},
		nil,
		WithArchive(archive, staticIDs{id: "abc"}, clock),
	)

	_, err := client.Get(context.Background(), "biorxiv", srv.URL, time.Second)
	require.NoError(t, err)
	require.Contains(t, archive.objects, "raw/biorxiv/2024/03/09/abc.json")
	require.Equal(t, "application/json", archive.types["raw/biorxiv/2024/03/09/abc.json"])
}

func TestClientProbe(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("<feed><entry/></feed>"))
	})
	client := newTestClient(t)

	require.True(t, client.Probe(context.Background(), srv.URL, time.Second, "entry"))
	require.False(t, client.Probe(context.Background(), srv.URL, time.Second, "collection"))
	require.False(t, client.Probe(context.Background(), srv.URL+"?fail=1", time.Second, ""))
}

func TestArchiveFormat(t *testing.T) {
	t.Parallel()
	ext, ct := archiveFormat([]byte("  <?xml version=\"1.0\"?><feed/>"))
	require.Equal(t, ".xml", ext)
	require.Equal(t, "application/xml", ct)
	ext, _ = archiveFormat([]byte("[1,2]"))
	require.Equal(t, ".json", ext)
	ext, _ = archiveFormat([]byte("plain"))
	require.Equal(t, ".txt", ext)
}

func TestStatusErrorPermanence(t *testing.T) {
	t.Parallel()
	require.False(t, (&StatusError{StatusCode: http.StatusTooManyRequests}).Permanent())
	require.False(t, (&StatusError{StatusCode: http.StatusBadGateway}).Permanent())
	require.True(t, (&StatusError{StatusCode: http.StatusForbidden}).Permanent())
}
