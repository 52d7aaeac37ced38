package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripMarkup(t *testing.T) {
	t.Parallel()
	require.Equal(t, "plain text", StripMarkup("plain text"))
	require.Equal(t, "H2O and CO2", StripMarkup("H<sub>2</sub>O and CO<sub>2</sub>"))
	require.Equal(t, "A & B", StripMarkup("A &amp; B"))
}

func TestCollapseAndTruncateDate(t *testing.T) {
	t.Parallel()
	require.Equal(t, "a b c", collapse("  a \n\t b   c "))
	require.Equal(t, "2024-01-02", truncateDate("2024-01-02T18:00:00Z"))
	require.Equal(t, "2024", truncateDate(" 2024 "))
}
