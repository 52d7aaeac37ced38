package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(NewMock(MockConfig{}, nil), NewArxiv(nil, "", nil))

	require.Equal(t, []string{ArxivName, MockName}, r.Names())

	adapter, err := r.Get(MockName)
	require.NoError(t, err)
	require.Equal(t, MockName, adapter.Name())

	_, err = r.Get("ieee")
	require.ErrorIs(t, err, ErrUnknownSource)
}
