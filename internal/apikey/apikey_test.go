package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	a := Hash("lk_example")
	b := Hash("lk_example")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex SHA-256
	assert.NotEqual(t, a, Hash("lk_other"))
}

func TestGenerate(t *testing.T) {
	k1, err := Generate()
	require.NoError(t, err)
	k2, err := Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(k1, "lk_"))
	assert.NotEqual(t, k1, k2)
	assert.Greater(t, len(k1), 40)
}
