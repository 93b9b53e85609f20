package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Match_BidirectionalContainment(t *testing.T) {
	cat := NewDefault()

	// A district name contains the city name.
	city, ok := cat.Match("Минский район")
	require.True(t, ok)
	assert.Equal(t, "Минск", city)

	// A truncated place name is contained in the city name.
	city, ok = cat.Match("барановичи")
	require.True(t, ok)
	assert.Equal(t, "Барановичи", city)

	_, ok = cat.Match("Springfield")
	assert.False(t, ok)

	_, ok = cat.Match("   ")
	assert.False(t, ok)
}

func TestCatalog_FirstIsCanonicalOrder(t *testing.T) {
	cat := New([]string{"Гомель", "Брест", "Минск"}, nil)

	assert.Equal(t, "Брест", cat.First())
	assert.Equal(t, []string{"Брест", "Гомель", "Минск"}, cat.Cities())
}

func TestCatalog_FirstOfEmptyCatalog(t *testing.T) {
	cat := New(nil, nil)
	assert.Equal(t, "", cat.First())
}

func TestCatalog_Known(t *testing.T) {
	cat := NewDefault()

	assert.True(t, cat.Known("Минск"))
	assert.False(t, cat.Known("минск"), "Known is an exact match, Match handles case folding")
	assert.False(t, cat.Known("Springfield"))
}

func TestCatalog_RegionAndMates(t *testing.T) {
	cat := NewDefault()

	assert.Equal(t, RegionMinsk, cat.Region("Борисов"))
	assert.Equal(t, RegionBrest, cat.Region("Пинск"))
	assert.Equal(t, DefaultRegion, cat.Region("Springfield"), "unknown cities fall into the default region")

	mates := cat.RegionMates("Минск")
	require.NotEmpty(t, mates)
	assert.NotContains(t, mates, "Минск", "a city is not its own mate")
	assert.Contains(t, mates, "Борисов")
	assert.NotContains(t, mates, "Брест", "mates never cross region boundaries")
}

func TestCatalog_DefaultCitiesBelongToExactlyOneRegion(t *testing.T) {
	cat := NewDefault()

	seen := make(map[string]string)
	for _, region := range []string{RegionMinsk, RegionGomel, RegionMogilev, RegionVitebsk, RegionGrodno, RegionBrest} {
		for _, city := range cat.regions[region] {
			prev, dup := seen[city]
			require.Falsef(t, dup, "city %s listed in both %s and %s", city, prev, region)
			seen[city] = region
		}
	}
	for _, city := range cat.Cities() {
		assert.Contains(t, seen, city)
	}
}
