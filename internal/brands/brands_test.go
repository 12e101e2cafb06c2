package brands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLuxuryHouse(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLuxuryHouse("Chanel"))
	assert.True(t, IsLuxuryHouse("Le Labo"))
	assert.True(t, IsLuxuryHouse("Lancôme"))

	// Matching is exact, not fuzzy.
	assert.False(t, IsLuxuryHouse("chanel"))
	assert.False(t, IsLuxuryHouse("Chanel "))
	assert.False(t, IsLuxuryHouse("Brand_7"))
	assert.False(t, IsLuxuryHouse(""))
}

func TestLuxuryHousesHasNoDuplicates(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, len(LuxuryHouses))
	for _, b := range LuxuryHouses {
		_, dup := seen[b]
		assert.False(t, dup, "duplicate brand %q", b)
		seen[b] = struct{}{}
	}
}
