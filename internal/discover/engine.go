package discover

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"marketplace-discovery-service/internal/catalog"
	"marketplace-discovery-service/internal/domain"
	"marketplace-discovery-service/internal/store"
)

// ProductSource is the slice of the store the discovery engine reads from.
// The engine never writes product data.
type ProductSource interface {
	ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error)
	ListProductsByCity(ctx context.Context, city string) ([]domain.Product, error)
}

// State is the engine's mutable discovery state: the applied criteria, the
// last result, and the error flag the UI layer renders from. It is replaced
// wholesale when a request settles.
type State struct {
	Criteria domain.FilterCriteria
	Result   domain.ResultPage
	Failed   bool
}

// Engine orchestrates the two-tier discovery pipeline: a coarse store query
// followed by the exact refine pass. It owns the filter/result state as a
// single-writer cache keyed by request sequence number, so a stale response
// that settles after a newer one cannot overwrite the newer result.
type Engine struct {
	source      ProductSource
	catalog     *catalog.Catalog
	coarseLimit int
	previewCap  int

	mu      sync.Mutex
	seq     uint64
	applied uint64
	state   State
}

const (
	// DefaultCoarseLimit bounds how many rows the coarse query may hand to
	// the refiner for one request.
	DefaultCoarseLimit = 1000
	// DefaultPreviewCap bounds each nearby city's contribution to the
	// fallback view. The city's true total is still reported.
	DefaultPreviewCap = 6
)

// NewEngine creates a discovery engine. Non-positive limits fall back to the
// defaults.
func NewEngine(source ProductSource, cat *catalog.Catalog, coarseLimit, previewCap int) *Engine {
	if coarseLimit <= 0 {
		coarseLimit = DefaultCoarseLimit
	}
	if previewCap <= 0 {
		previewCap = DefaultPreviewCap
	}
	return &Engine{
		source:      source,
		catalog:     cat,
		coarseLimit: coarseLimit,
		previewCap:  previewCap,
	}
}

// coarseParams translates criteria into the store-level coarse query. The
// whole filtered set (up to the coarse limit) is fetched so the refiner can
// sort and paginate over it; pagination happens after the exact pass.
func (e *Engine) coarseParams(criteria domain.FilterCriteria) store.ListProductsParams {
	params := store.ListProductsParams{
		Limit:          e.coarseLimit,
		Offset:         0,
		ExcludeNoPrice: criteria.ExcludeNoPrice,
		MinPrice:       criteria.MinPrice,
		MaxPrice:       criteria.MaxPrice,
		SellerID:       criteria.SellerID,
		Sort:           criteria.Sort,
	}
	if criteria.City != "" {
		city := criteria.City
		params.City = &city
	}
	if criteria.HasSearch() {
		term := criteria.SearchText
		params.SearchQuery = &term
	}
	// Non-numeric category identifiers are left to the refiner's loose match.
	if id, err := strconv.ParseInt(criteria.CategoryID, 10, 64); err == nil {
		params.CategoryID = &id
	}
	for title, values := range criteria.Characteristics {
		for _, value := range values {
			params.Characteristics = append(params.Characteristics, store.CharacteristicPair{Title: title, Value: value})
		}
	}
	return params
}

// Apply runs the full pipeline for the given criteria and settles the result
// into the engine state. A response that is older than the latest settled one
// is returned to the caller but does not overwrite the state.
//
// A fetch failure clears the result set and total count and marks the error
// flag; it is never propagated as a panic past this boundary.
func (e *Engine) Apply(ctx context.Context, criteria domain.FilterCriteria) (domain.ResultPage, error) {
	criteria = criteria.Normalize()

	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	coarse, _, err := e.source.ListProducts(ctx, e.coarseParams(criteria))
	if err != nil {
		empty := domain.ResultPage{Items: []domain.Product{}, Page: criteria.Page, PageSize: criteria.PageSize}
		e.settle(seq, State{Criteria: criteria, Result: empty, Failed: true})
		return empty, fmt.Errorf("discover: coarse fetch failed: %w", err)
	}

	page := Refine(coarse, criteria)
	e.settle(seq, State{Criteria: criteria, Result: page})
	return page, nil
}

// settle stores the state unless a newer request has already settled.
func (e *Engine) settle(seq uint64, state State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq < e.applied {
		return
	}
	e.applied = seq
	e.state = state
}

// Snapshot returns a copy of the current discovery state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ShouldFallback reports whether an empty result should trigger the
// nearby-city fallback: the city must be resolved, the result empty, and no
// free-text search active. An empty search result offers the "all products"
// escape instead and never fans out.
func ShouldFallback(criteria domain.FilterCriteria, result domain.ResultPage) bool {
	return criteria.City != "" && result.TotalCount == 0 && !criteria.HasSearch()
}
