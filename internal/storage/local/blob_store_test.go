// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
	"github.com/JakeFAU/literature-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	t.Parallel()

	baseDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: baseDir})
	require.NoError(t, err)
	ctx := context.Background()

	body := []byte("<feed><entry/></feed>")
	uri, err := store.PutObject(ctx, "raw/arxiv/2026/10/16/abc.xml", "application/atom+xml", body)
	require.NoError(t, err)
	expected := filepath.Join(baseDir, "raw", "arxiv", "2026", "10", "16", "abc.xml")
	assert.Equal(t, "file://"+expected, uri)

	got, err := store.GetObject(ctx, "raw/arxiv/2026/10/16/abc.xml")
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = store.GetObject(ctx, "raw/missing.xml")
	require.ErrorIs(t, err, crawler.ErrBlobNotFound)
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.PutObject(ctx, "", "text/plain", []byte("x"))
	assert.ErrorContains(t, err, "path is required")

	_, err = store.PutObject(ctx, "../../etc/passwd", "text/plain", []byte("x"))
	assert.ErrorContains(t, err, "path traversal detected")
}
