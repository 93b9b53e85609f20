package discover

import (
	"sort"

	"marketplace-discovery-service/internal/domain"
)

// FacetSampleCap bounds how many products are scanned when deriving the
// facet list for a category.
const FacetSampleCap = 50

// Facet is a characteristic title with the set of values observed within a
// category's product sample. It populates the filter checkboxes.
type Facet struct {
	Title  string   `json:"title"`
	Values []string `json:"values"`
}

// BuildFacets derives the facet projection from a product sample. Within one
// product, duplicate titles collapse and the last value wins; across products
// a title accumulates the union of values. Titles and values are sorted so
// the projection is deterministic.
func BuildFacets(products []domain.Product) []Facet {
	if len(products) > FacetSampleCap {
		products = products[:FacetSampleCap]
	}

	valueSets := make(map[string]map[string]struct{})
	for _, p := range products {
		perProduct := make(map[string]string, len(p.Characteristics))
		for _, char := range p.Characteristics {
			perProduct[char.Title] = char.Value
		}
		for title, value := range perProduct {
			if valueSets[title] == nil {
				valueSets[title] = make(map[string]struct{})
			}
			valueSets[title][value] = struct{}{}
		}
	}

	facets := make([]Facet, 0, len(valueSets))
	for title, values := range valueSets {
		facet := Facet{Title: title, Values: make([]string, 0, len(values))}
		for v := range values {
			facet.Values = append(facet.Values, v)
		}
		sort.Strings(facet.Values)
		facets = append(facets, facet)
	}
	sort.Slice(facets, func(i, j int) bool { return facets[i].Title < facets[j].Title })
	return facets
}
