package discover

import (
	"testing"
	"time"

	"marketplace-discovery-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFacets_UnionAcrossProductsLastWinsWithin(t *testing.T) {
	now := time.Now()
	first := pricedProduct(1, "Первый", PtrTo(10.0), now)
	first.Characteristics = []domain.Characteristic{
		{Title: "Цвет", Value: "Красный"},
		{Title: "Цвет", Value: "Синий"}, // duplicate title within one product: last wins
		{Title: "Размер", Value: "M"},
	}
	second := pricedProduct(2, "Второй", PtrTo(20.0), now)
	second.Characteristics = []domain.Characteristic{
		{Title: "Цвет", Value: "Зелёный"},
	}

	facets := BuildFacets([]domain.Product{first, second})

	require.Len(t, facets, 2)
	assert.Equal(t, "Размер", facets[0].Title)
	assert.Equal(t, []string{"M"}, facets[0].Values)
	assert.Equal(t, "Цвет", facets[1].Title)
	assert.Equal(t, []string{"Зелёный", "Синий"}, facets[1].Values, "the shadowed value never surfaces")
}

func TestBuildFacets_SampleCapped(t *testing.T) {
	now := time.Now()
	var products []domain.Product
	for i := int64(0); i < int64(FacetSampleCap); i++ {
		p := pricedProduct(i+1, "Товар", PtrTo(10.0), now)
		p.Characteristics = []domain.Characteristic{{Title: "Цвет", Value: "Красный"}}
		products = append(products, p)
	}
	beyond := pricedProduct(100, "Лишний", PtrTo(10.0), now)
	beyond.Characteristics = []domain.Characteristic{{Title: "Материал", Value: "Дуб"}}
	products = append(products, beyond)

	facets := BuildFacets(products)

	require.Len(t, facets, 1, "products beyond the sample cap contribute nothing")
	assert.Equal(t, "Цвет", facets[0].Title)
}

func TestBuildFacets_NoCharacteristics(t *testing.T) {
	now := time.Now()
	products := []domain.Product{pricedProduct(1, "Голый", PtrTo(10.0), now)}

	facets := BuildFacets(products)

	assert.Empty(t, facets)
}
