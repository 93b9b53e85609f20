package domain

import (
	"strconv"
	"strings"
)

// Sort orders accepted by the discovery pipeline. An unknown key falls back
// to SortNewest rather than failing the request.
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
)

// ParseSort normalizes a user-supplied sort key.
func ParseSort(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SortPriceAsc:
		return SortPriceAsc
	case SortPriceDesc:
		return SortPriceDesc
	case SortNameAsc:
		return SortNameAsc
	case SortNameDesc:
		return SortNameDesc
	default:
		return SortNewest
	}
}

const (
	DefaultPageSize = 9
	MaxPageSize     = 100
)

// FilterCriteria is the immutable-per-request bundle of discovery criteria.
// It is replaced wholesale on every apply and serialized as-is for session
// persistence, so the JSON field names form a stable schema.
//
// CategoryID is kept as a string on purpose: identifiers arrive both as
// numbers and as strings from persisted blobs and query parameters, and the
// category match is defined as loose equality over the two.
type FilterCriteria struct {
	City            string              `json:"city,omitempty"`
	SearchText      string              `json:"search_text,omitempty"`
	CategoryID      string              `json:"category_id,omitempty"`
	SellerID        *int64              `json:"seller_id,omitempty"`
	MinPrice        *float64            `json:"min_price,omitempty"`
	MaxPrice        *float64            `json:"max_price,omitempty"`
	ExcludeNoPrice  bool                `json:"exclude_no_price,omitempty"`
	Characteristics map[string][]string `json:"characteristics,omitempty"`
	Sort            string              `json:"sort,omitempty"`
	Page            int                 `json:"page,omitempty"`
	PageSize        int                 `json:"page_size,omitempty"`
}

// Normalize returns a copy with defaults applied: page/pageSize clamped,
// sort key resolved, search text trimmed. A whitespace-only search term is
// equivalent to no search.
func (c FilterCriteria) Normalize() FilterCriteria {
	c.SearchText = strings.TrimSpace(c.SearchText)
	c.Sort = ParseSort(c.Sort)
	if c.Page <= 0 {
		c.Page = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	return c
}

// HasSearch reports whether a free-text search is active.
func (c FilterCriteria) HasSearch() bool {
	return strings.TrimSpace(c.SearchText) != ""
}

// WithCity returns a copy with the city switched: an explicit city change
// clears an in-progress text search and returns to the first page while
// preserving category, price and characteristic criteria.
func (c FilterCriteria) WithCity(city string) FilterCriteria {
	c.City = city
	c.SearchText = ""
	c.Page = 1
	return c
}

// CategoryMatches applies the loose category equality: the criteria's
// identifier matches a product's numeric category when their canonical
// decimal forms agree. An unset criteria category matches everything;
// a product without a category never matches a set one.
func (c FilterCriteria) CategoryMatches(categoryID *int64) bool {
	if strings.TrimSpace(c.CategoryID) == "" {
		return true
	}
	if categoryID == nil {
		return false
	}
	want := strings.TrimSpace(c.CategoryID)
	if n, err := strconv.ParseInt(want, 10, 64); err == nil {
		return n == *categoryID
	}
	return want == strconv.FormatInt(*categoryID, 10)
}

// ResultPage is a single page of a fully filtered, fully sorted result set.
// TotalCount always reflects the filtered set size, never the page size.
type ResultPage struct {
	Items      []Product `json:"rows"`
	TotalCount int       `json:"count"`
	Page       int       `json:"currentPage"`
	PageSize   int       `json:"pageSize"`
}

// CityPreview is one nearby city's contribution to the fallback view: a
// capped preview of its inventory plus the city's true total.
type CityPreview struct {
	City       string    `json:"city"`
	Items      []Product `json:"rows"`
	TotalCount int       `json:"count"`
}
