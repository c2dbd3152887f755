package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	brands := c.Brands()
	require.Len(t, brands, 6)
	assert.Equal(t, "설화수 (Sulwhasoo)", brands[0].Name)
	assert.True(t, brands[len(brands)-1].Custom)
}

func TestLookup(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	b, ok := c.Lookup("LANEIGE")
	require.True(t, ok)
	assert.Equal(t, "라네즈 (LANEIGE)", b.Name)

	b, ok = c.Lookup("이니스프리 (innisfree)")
	require.True(t, ok)
	assert.Equal(t, "innisfree", b.ID)

	_, ok = c.Lookup("custom")
	assert.False(t, ok)
	_, ok = c.Lookup("Hera")
	assert.False(t, ok)
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("brands:\n  - {id: a, name: A}\n  - {id: a, name: B}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("brands:\n  - {id: a}\n"))
	assert.Error(t, err)
}
