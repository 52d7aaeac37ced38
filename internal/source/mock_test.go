package source

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockFetchBounds(t *testing.T) {
	t.Parallel()
	m := NewMock(MockConfig{Seed: 42}, nil)
	for i := 0; i < 20; i++ {
		records, err := m.Fetch(context.Background(), "Diabetes", 5)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(records), 1)
		require.LessOrEqual(t, len(records), 5)
		for j, rec := range records {
			require.NotEmpty(t, rec.Title)
			require.Contains(t, rec.Title, "Diabetes")
			require.True(t, strings.HasPrefix(rec.SourceURL, "https://mock-source.example.com/paper/diabetes/"))
			require.Equal(t, MockName, rec.OriginSource)
			require.Contains(t, rec.Title, fmt.Sprintf("(Study #%d)", j+1))
		}
	}
}

func TestMockFixedCount(t *testing.T) {
	t.Parallel()
	records, err := NewMock(MockConfig{Seed: 1, Fixed: true}, nil).Fetch(context.Background(), "asthma", 7)
	require.NoError(t, err)
	require.Len(t, records, 7)
}

func TestMockLatencyHonorsContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMock(MockConfig{Latency: time.Second}, nil).Fetch(ctx, "x", 3)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMockAlwaysAvailable(t *testing.T) {
	t.Parallel()
	require.True(t, NewMock(MockConfig{}, nil).IsAvailable(context.Background()))
	records, err := NewMock(MockConfig{}, nil).Fetch(context.Background(), "x", 0)
	require.NoError(t, err)
	require.Empty(t, records)
}
