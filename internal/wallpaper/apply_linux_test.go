//go:build linux

package wallpaper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsApplier(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	assert.NotNil(t, a)
}
