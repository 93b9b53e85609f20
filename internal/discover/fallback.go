package discover

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"marketplace-discovery-service/internal/domain"
)

// NearbyCities queries the active city's region mates concurrently and
// aggregates the inventories of those that have any. Each city contributes at
// most previewCap products while reporting its true total. A failed city
// fetch is logged and omitted; it never fails the aggregation and never
// cancels the sibling lookups.
func (e *Engine) NearbyCities(ctx context.Context, city string) ([]domain.CityPreview, error) {
	mates := e.catalog.RegionMates(city)
	if len(mates) == 0 {
		return []domain.CityPreview{}, nil
	}

	results := make([]*domain.CityPreview, len(mates))

	g, ctx := errgroup.WithContext(ctx)
	for i, mate := range mates {
		i, mate := i, mate
		g.Go(func() error {
			products, err := e.source.ListProductsByCity(ctx, mate)
			if err != nil {
				log.Printf("WARN: nearby lookup for city %q failed: %v", mate, err)
				return nil // partial failure, drop this city
			}
			if len(products) == 0 {
				return nil
			}
			preview := products
			if len(preview) > e.previewCap {
				preview = preview[:e.previewCap]
			}
			items := make([]domain.Product, len(preview))
			copy(items, preview)
			results[i] = &domain.CityPreview{
				City:       mate,
				Items:      items,
				TotalCount: len(products),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	previews := make([]domain.CityPreview, 0, len(mates))
	for _, r := range results {
		if r != nil {
			previews = append(previews, *r)
		}
	}
	return previews, nil
}
