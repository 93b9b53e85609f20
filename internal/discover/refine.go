// Package discover implements the product discovery pipeline: the exact
// filter/sort/paginate pass over a coarse result set, the discovery engine
// that owns filter state, and the nearby-city fallback.
package discover

import (
	"sort"
	"strings"

	"marketplace-discovery-service/internal/domain"
)

// Refine applies the exact discovery pass to a fetched product set: free-text
// search, category, characteristics, price policy, total-order sort and
// pagination, in that order. The input slice is not modified.
//
// The result is deterministic for a fixed input set and criteria: the sort is
// stable and ties keep the original fetch order.
func Refine(products []domain.Product, criteria domain.FilterCriteria) domain.ResultPage {
	criteria = criteria.Normalize()

	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if !matchesSearch(&p, criteria.SearchText) {
			continue
		}
		if !criteria.CategoryMatches(p.CategoryID) {
			continue
		}
		if !matchesCharacteristics(&p, criteria.Characteristics) {
			continue
		}
		if !priceAllowed(&p, criteria) {
			continue
		}
		filtered = append(filtered, p)
	}

	sortProducts(filtered, criteria.Sort)

	total := len(filtered)
	start := (criteria.Page - 1) * criteria.PageSize
	end := start + criteria.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := make([]domain.Product, end-start)
	copy(items, filtered[start:end])

	return domain.ResultPage{
		Items:      items,
		TotalCount: total,
		Page:       criteria.Page,
		PageSize:   criteria.PageSize,
	}
}

// matchesSearch is a case-insensitive substring match against the product's
// name, description and price label; any one hit is enough. A blank term
// matches everything.
func matchesSearch(p *domain.Product, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Name), term) {
		return true
	}
	if p.Description != nil && strings.Contains(strings.ToLower(*p.Description), term) {
		return true
	}
	if p.PriceText != nil && strings.Contains(strings.ToLower(*p.PriceText), term) {
		return true
	}
	return false
}

// matchesCharacteristics requires, for every requested title, a product
// characteristic with that title whose value is among the requested values:
// AND across titles, OR within a title. A product lacking a requested title
// entirely fails that title.
func matchesCharacteristics(p *domain.Product, requested map[string][]string) bool {
	for title, values := range requested {
		if len(values) == 0 {
			continue
		}
		found := false
		for _, char := range p.Characteristics {
			if char.Title != title {
				continue
			}
			for _, v := range values {
				if char.Value == v {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// priceAllowed applies the null-price policy: with excludeNoPrice set, a
// priceless (nil or zero) product is removed regardless of bounds; otherwise
// it bypasses both bounds. Priced products must satisfy all given bounds.
func priceAllowed(p *domain.Product, criteria domain.FilterCriteria) bool {
	if !p.HasPrice() {
		return !criteria.ExcludeNoPrice
	}
	if criteria.MinPrice != nil && *p.Price < *criteria.MinPrice {
		return false
	}
	if criteria.MaxPrice != nil && *p.Price > *criteria.MaxPrice {
		return false
	}
	return true
}

// sortProducts orders the set in place. Priceless products sort after all
// priced products under both price directions; the sort is stable, so equal
// elements keep the fetch order (creation time descending from the store).
func sortProducts(products []domain.Product, sortKey string) {
	switch domain.ParseSort(sortKey) {
	case domain.SortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return priceLess(&products[i], &products[j], false)
		})
	case domain.SortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return priceLess(&products[i], &products[j], true)
		})
	case domain.SortNameAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name < products[j].Name
		})
	case domain.SortNameDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name > products[j].Name
		})
	default: // newest
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	}
}

func priceLess(a, b *domain.Product, desc bool) bool {
	switch {
	case a.HasPrice() && !b.HasPrice():
		return true
	case !a.HasPrice():
		return false
	case desc:
		return *a.Price > *b.Price
	default:
		return *a.Price < *b.Price
	}
}
