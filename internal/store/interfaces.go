package store

import (
	"context"

	"marketplace-discovery-service/internal/domain"
)

// CharacteristicPair is one requested (title, value) match. The store-level
// characteristic predicate is an OR across all requested pairs; the exact
// AND-per-title semantics are applied by the refiner on top of it.
type CharacteristicPair struct {
	Title string
	Value string
}

// ListProductsParams holds the coarse query parameters: scoping predicates,
// the null-price policy, ordering and the pagination window.
type ListProductsParams struct {
	Limit           int
	Offset          int
	SearchQuery     *string // substring over name/description/price label
	City            *string
	SellerID        *int64
	CategoryID      *int64
	MinPrice        *float64
	MaxPrice        *float64
	ExcludeNoPrice  bool
	Characteristics []CharacteristicPair
	Sort            string // one of domain.Sort*; unknown keys fall back to newest
}

// ProductStorer defines the database operations for products and their
// characteristics.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error)
	ListProductsByCity(ctx context.Context, city string) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	DistinctCities(ctx context.Context) ([]string, error)
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
}
