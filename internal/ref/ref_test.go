package ref

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeakUpgradeBeforeClose(t *testing.T) {
	strong := New(42)
	weak := strong.Weak()

	value, ok := weak.Upgrade()
	require.True(t, ok)
	require.Equal(t, 42, value)
}

func TestWeakUpgradeAfterClose(t *testing.T) {
	strong := New("thread")
	weak := strong.Weak()

	strong.Close()

	_, ok := weak.Upgrade()
	require.False(t, ok)
}

func TestWeakZeroValueIsInvalid(t *testing.T) {
	var weak Weak[int]
	require.False(t, weak.Valid())

	_, ok := weak.Upgrade()
	require.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	strong := New(struct{}{})
	strong.Close()
	strong.Close()
	require.True(t, strong.Closed())
}
