package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"marketplace-discovery-service/internal/catalog"
	"marketplace-discovery-service/internal/cityresolve"
	"marketplace-discovery-service/internal/discover"
	"marketplace-discovery-service/internal/domain"
	"marketplace-discovery-service/internal/observability"
	"marketplace-discovery-service/internal/store"
)

// CriteriaStore persists filter criteria across page reloads within a
// session. Satisfied by the Redis session store.
type CriteriaStore interface {
	Criteria(ctx context.Context, sessionID string) (*domain.FilterCriteria, error)
	SetCriteria(ctx context.Context, sessionID string, criteria domain.FilterCriteria) error
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	productStore  store.ProductStorer
	categoryStore store.CategoryStorer
	engine        *discover.Engine
	resolver      *cityresolve.Resolver
	catalog       *catalog.Catalog
	criteria      CriteriaStore
	validate      *validator.Validate
}

// NewHTTPHandler creates a new HTTPHandler with dependencies. The criteria
// store may be nil; criteria then live only for the request.
func NewHTTPHandler(ps store.ProductStorer, cs store.CategoryStorer, engine *discover.Engine, resolver *cityresolve.Resolver, cat *catalog.Catalog, criteria CriteriaStore) *HTTPHandler {
	return &HTTPHandler{
		productStore:  ps,
		categoryStore: cs,
		engine:        engine,
		resolver:      resolver,
		catalog:       cat,
		criteria:      criteria,
		validate:      validator.New(),
	}
}

// persistCriteria saves the applied criteria for the session, best effort.
func (h *HTTPHandler) persistCriteria(ctx context.Context, sessionID string, criteria domain.FilterCriteria) {
	if h.criteria == nil {
		return
	}
	if err := h.criteria.SetCriteria(ctx, sessionID, criteria); err != nil {
		log.Printf("WARN: failed to persist session criteria: %v", err)
	}
}

// sessionCriteria loads the criteria persisted for the session. Defaults when
// nothing is stored or the store is unavailable.
func (h *HTTPHandler) sessionCriteria(ctx context.Context, sessionID string) domain.FilterCriteria {
	if h.criteria == nil {
		return domain.FilterCriteria{}
	}
	stored, err := h.criteria.Criteria(ctx, sessionID)
	if err != nil {
		log.Printf("WARN: failed to load session criteria: %v", err)
		return domain.FilterCriteria{}
	}
	if stored == nil {
		return domain.FilterCriteria{}
	}
	return *stored
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
			http.Error(w, `{"error": "Internal server error during JSON encoding"}`, http.StatusInternalServerError)
		}
	}
}

// productPageResponse matches the wire shape consumers already depend on.
// Nearby carries the region-fallback previews when the query came back empty
// for a resolved city.
type productPageResponse struct {
	Rows        []domain.Product     `json:"rows"`
	Count       int                  `json:"count"`
	CurrentPage int                  `json:"currentPage"`
	TotalPages  int                  `json:"totalPages"`
	SearchQuery string               `json:"searchQuery,omitempty"`
	Nearby      []domain.CityPreview `json:"nearby,omitempty"`
}

func pageResponse(page domain.ResultPage, searchQuery string) productPageResponse {
	totalPages := 0
	if page.TotalCount > 0 && page.PageSize > 0 {
		totalPages = (page.TotalCount + page.PageSize - 1) / page.PageSize
	}
	return productPageResponse{
		Rows:        page.Items,
		Count:       page.TotalCount,
		CurrentPage: page.Page,
		TotalPages:  totalPages,
		SearchQuery: searchQuery,
	}
}

// parseCriteria builds filter criteria from the request's query parameters.
// Malformed numeric bounds are rejected here, before they reach the engine.
func parseCriteria(r *http.Request) (domain.FilterCriteria, error) {
	qParams := r.URL.Query()
	criteria := domain.FilterCriteria{
		City:       qParams.Get("city"),
		CategoryID: qParams.Get("category_id"),
		Sort:       qParams.Get("sort"),
	}

	if idStr := qParams.Get("seller_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			return criteria, errors.New("Invalid seller_id format")
		}
		criteria.SellerID = &id
	}
	if priceStr := qParams.Get("min_price"); priceStr != "" {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price < 0 {
			return criteria, errors.New("Invalid min_price format")
		}
		criteria.MinPrice = &price
	}
	if priceStr := qParams.Get("max_price"); priceStr != "" {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil || price < 0 {
			return criteria, errors.New("Invalid max_price format")
		}
		criteria.MaxPrice = &price
	}
	if criteria.MinPrice != nil && criteria.MaxPrice != nil && *criteria.MinPrice > *criteria.MaxPrice {
		return criteria, errors.New("min_price cannot exceed max_price")
	}
	if excludeStr := qParams.Get("exclude_no_price"); excludeStr != "" {
		b, err := strconv.ParseBool(excludeStr)
		if err != nil {
			return criteria, errors.New("Invalid exclude_no_price value: must be true or false")
		}
		criteria.ExcludeNoPrice = b
	}

	// Repeatable characteristic=Title:Value pairs; values for one title union.
	for _, raw := range qParams["characteristic"] {
		title, value, ok := strings.Cut(raw, ":")
		if !ok || title == "" || value == "" {
			continue
		}
		if criteria.Characteristics == nil {
			criteria.Characteristics = make(map[string][]string)
		}
		criteria.Characteristics[title] = append(criteria.Characteristics[title], value)
	}

	if pageStr := qParams.Get("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			criteria.Page = page
		}
	}
	if limitStr := qParams.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			criteria.PageSize = limit
		}
	}

	return criteria, nil
}

// --- Discovery Handlers ---

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	criteria, err := parseCriteria(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	observability.DiscoveryQueriesTotal.Inc()
	page, err := h.engine.Apply(r.Context(), criteria)
	if err != nil {
		log.Printf("ERROR: ListProducts discovery failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	normalized := criteria.Normalize()
	h.persistCriteria(r.Context(), sessionID(r), normalized)

	resp := pageResponse(page, "")
	if discover.ShouldFallback(normalized, page) {
		observability.NearbyFallbacksTotal.Inc()
		previews, err := h.engine.NearbyCities(r.Context(), normalized.City)
		if err != nil {
			// The empty page is still a valid answer without previews.
			log.Printf("WARN: nearby fallback for %q failed: %v", normalized.City, err)
		} else {
			resp.Nearby = previews
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	searchQuery := strings.TrimSpace(r.URL.Query().Get("q"))
	if searchQuery == "" {
		respondWithError(w, http.StatusBadRequest, "Search term cannot be empty")
		return
	}

	criteria, err := parseCriteria(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	criteria.SearchText = searchQuery

	observability.DiscoveryQueriesTotal.Inc()
	page, err := h.engine.Apply(r.Context(), criteria)
	if err != nil {
		log.Printf("ERROR: SearchProducts discovery failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to search products")
		return
	}

	h.persistCriteria(r.Context(), sessionID(r), criteria.Normalize())
	respondWithJSON(w, http.StatusOK, pageResponse(page, strings.ToLower(searchQuery)))
}

// ProductsByCity returns a city's full inventory. A city with no inventory
// yields the whole catalog instead: the caller shows "all products" rather
// than an error.
func (h *HTTPHandler) ProductsByCity(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	if city == "" {
		respondWithError(w, http.StatusBadRequest, "City is required")
		return
	}

	products, err := h.productStore.ListProductsByCity(r.Context(), city)
	if err != nil {
		log.Printf("ERROR: ProductsByCity store operation for %q failed: %v", city, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	if len(products) == 0 {
		log.Printf("INFO: no products in city %q, returning full catalog", city)
		all, _, err := h.productStore.ListProducts(r.Context(), store.ListProductsParams{
			Limit: discover.DefaultCoarseLimit,
			Sort:  domain.SortNewest,
		})
		if err != nil {
			log.Printf("ERROR: ProductsByCity full-catalog fetch failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
			return
		}
		respondWithJSON(w, http.StatusOK, all)
		return
	}

	respondWithJSON(w, http.StatusOK, products)
}

// NearbyCities aggregates inventories of the active city's region mates. The
// fallback never runs during an active search: an empty search result offers
// the all-products escape instead.
func (h *HTTPHandler) NearbyCities(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		respondWithError(w, http.StatusBadRequest, "City is required")
		return
	}

	if h.sessionCriteria(r.Context(), sessionID(r)).HasSearch() {
		respondWithError(w, http.StatusConflict, "Nearby fallback is unavailable during an active search")
		return
	}

	observability.NearbyFallbacksTotal.Inc()
	previews, err := h.engine.NearbyCities(r.Context(), city)
	if err != nil {
		log.Printf("ERROR: NearbyCities aggregation for %q failed: %v", city, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve nearby cities")
		return
	}

	respondWithJSON(w, http.StatusOK, previews)
}

// Facets derives the characteristic checkboxes for a category from a capped
// product sample.
func (h *HTTPHandler) Facets(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("category_id")
	categoryID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || categoryID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid category_id format")
		return
	}

	if _, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID); err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
			return
		}
		log.Printf("ERROR: Facets category lookup for %d failed: %v", categoryID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to derive facets")
		return
	}

	products, _, err := h.productStore.ListProducts(r.Context(), store.ListProductsParams{
		CategoryID: &categoryID,
		Limit:      discover.FacetSampleCap,
		Sort:       domain.SortNewest,
	})
	if err != nil {
		log.Printf("ERROR: Facets store operation for category %d failed: %v", categoryID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to derive facets")
		return
	}

	respondWithJSON(w, http.StatusOK, discover.BuildFacets(products))
}

// --- City Handlers ---

// Cities returns the union of cities present in inventory and the static
// catalog, sorted. A store failure degrades to the static catalog alone.
func (h *HTTPHandler) Cities(w http.ResponseWriter, r *http.Request) {
	union := h.catalog.Cities()

	dbCities, err := h.productStore.DistinctCities(r.Context())
	if err != nil {
		log.Printf("WARN: Cities falling back to static catalog: %v", err)
		respondWithJSON(w, http.StatusOK, union)
		return
	}

	seen := make(map[string]struct{}, len(union))
	for _, city := range union {
		seen[city] = struct{}{}
	}
	for _, city := range dbCities {
		if _, ok := seen[city]; !ok {
			seen[city] = struct{}{}
			union = append(union, city)
		}
	}
	sort.Strings(union)

	respondWithJSON(w, http.StatusOK, union)
}

// Geocode resolves coordinates to a catalog city. It never fails toward the
// caller: when no provider yields a match, the catalog default is returned.
func (h *HTTPHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lat/lng format")
		return
	}

	city, matched := h.resolver.ResolveCoordinates(r.Context(), cityresolve.Coordinates{Lat: lat, Lng: lng})
	if !matched {
		observability.GeocodeFailuresTotal.Inc()
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"city": city})
}

// SessionCityInput is the payload for an explicit city selection.
type SessionCityInput struct {
	City string `json:"city" validate:"required,max=255"`
}

// SelectCity records an explicit city choice for the session and clears any
// in-progress text search while preserving the other criteria. Only this
// session's persisted criteria are touched.
func (h *HTTPHandler) SelectCity(w http.ResponseWriter, r *http.Request) {
	var input SessionCityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	if err := h.resolver.Select(r.Context(), sessionID(r), input.City); err != nil {
		if errors.Is(err, cityresolve.ErrUnknownCity) {
			respondWithError(w, http.StatusBadRequest, cityresolve.ErrUnknownCity.Error())
			return
		}
		log.Printf("ERROR: SelectCity failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to select city")
		return
	}

	criteria := h.sessionCriteria(r.Context(), sessionID(r)).WithCity(input.City).Normalize()
	h.persistCriteria(r.Context(), sessionID(r), criteria)
	respondWithJSON(w, http.StatusOK, criteria)
}

// ResolveCity runs the resolution chain for the session. Coordinates are
// optional; without them resolution goes from session state to the catalog
// default.
func (h *HTTPHandler) ResolveCity(w http.ResponseWriter, r *http.Request) {
	var coords *cityresolve.Coordinates
	latStr, lngStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lng")
	if latStr != "" && lngStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat != nil || errLng != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid lat/lng format")
			return
		}
		coords = &cityresolve.Coordinates{Lat: lat, Lng: lng}
	}

	city, err := h.resolver.Resolve(r.Context(), sessionID(r), coords)
	if err != nil {
		log.Printf("ERROR: ResolveCity failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve city")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"city": city})
}

// SessionCriteria returns the filter criteria persisted for the session, so a
// reloaded page can restore its filter state. Defaults when nothing is stored.
func (h *HTTPHandler) SessionCriteria(w http.ResponseWriter, r *http.Request) {
	if h.criteria == nil {
		respondWithJSON(w, http.StatusOK, domain.FilterCriteria{}.Normalize())
		return
	}
	criteria, err := h.criteria.Criteria(r.Context(), sessionID(r))
	if err != nil {
		log.Printf("ERROR: SessionCriteria lookup failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load session criteria")
		return
	}
	if criteria == nil {
		respondWithJSON(w, http.StatusOK, domain.FilterCriteria{}.Normalize())
		return
	}
	respondWithJSON(w, http.StatusOK, *criteria)
}

// sessionID extracts the caller's session key. Header wins over cookie; an
// anonymous caller gets a shared default bucket.
func sessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-ID"); id != "" {
		return id
	}
	if cookie, err := r.Cookie("session_id"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return "anonymous"
}

// --- Category Handlers ---

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categoryStore.ListCategories(r.Context())
	if err != nil {
		log.Printf("ERROR: ListCategories store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

// --- Product CRUD Handlers ---

// CharacteristicInput is one (title, value) pair on product creation.
type CharacteristicInput struct {
	Title string `json:"title" validate:"required,max=255"`
	Value string `json:"value" validate:"required,max=255"`
}

// ProductCreateInput defines the expected input for creating a product.
type ProductCreateInput struct {
	Name            string                `json:"name" validate:"required,max=255"`
	Description     *string               `json:"description" validate:"omitempty"`
	City            string                `json:"city" validate:"required,max=255"`
	Price           *float64              `json:"price" validate:"omitempty,gte=0"`
	PriceType       string                `json:"price_type" validate:"omitempty"`
	PriceText       *string               `json:"price_text" validate:"omitempty,max=255"`
	Currency        string                `json:"currency" validate:"omitempty"`
	SellerID        int64                 `json:"seller_id" validate:"required,gt=0"`
	CategoryID      *int64                `json:"category_id" validate:"omitempty,gt=0"`
	ImageURL        *string               `json:"image_url" validate:"omitempty,url,max=2048"`
	Characteristics []CharacteristicInput `json:"characteristics" validate:"omitempty,dive"`
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	priceType := input.PriceType
	if !domain.ValidPriceType(priceType) {
		priceType = domain.PriceTypeFixed
	}
	currency := input.Currency
	if !domain.ValidCurrency(currency) {
		currency = "USD"
	}

	// Price mode rules: fixed needs a positive number, negotiable carries a
	// fixed label, custom needs the seller's own label.
	var price *float64
	var priceText *string
	switch priceType {
	case domain.PriceTypeFixed:
		if input.Price == nil || *input.Price <= 0 {
			respondWithError(w, http.StatusBadRequest, "A fixed price requires a positive number")
			return
		}
		price = input.Price
		label := strconv.FormatFloat(*input.Price, 'f', -1, 64) + " " + currency
		priceText = &label
	case domain.PriceTypeNegotiable:
		label := "Договорная"
		priceText = &label
	case domain.PriceTypeCustom:
		if input.PriceText == nil || strings.TrimSpace(*input.PriceText) == "" {
			respondWithError(w, http.StatusBadRequest, "A custom price requires a text label")
			return
		}
		label := strings.TrimSpace(*input.PriceText)
		priceText = &label
	}

	product := &domain.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		City:        strings.TrimSpace(input.City),
		Price:       price,
		PriceType:   priceType,
		PriceText:   priceText,
		Currency:    currency,
		SellerID:    input.SellerID,
		CategoryID:  input.CategoryID,
		ImageURL:    input.ImageURL,
	}
	for _, char := range input.Characteristics {
		product.Characteristics = append(product.Characteristics, domain.Characteristic{
			Title: char.Title,
			Value: char.Value,
		})
	}

	createdProduct, err := h.productStore.CreateProduct(r.Context(), product)
	if err != nil {
		log.Printf("ERROR: CreateProduct store operation failed: %v", err)
		if errors.Is(err, store.ErrCategoryNotFound) {
			respondWithError(w, http.StatusBadRequest, "Invalid category_id: category does not exist.")
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, createdProduct)
}

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		log.Printf("ERROR: GetProductByID store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "productId")
	productID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || productID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	err = h.productStore.DeleteProduct(r.Context(), productID)
	if err != nil {
		log.Printf("ERROR: DeleteProduct store operation for ID %d failed: %v", productID, err)
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			respondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Get("/search", h.SearchProducts)
		r.Get("/nearby", h.NearbyCities)
		r.Get("/facets", h.Facets)
		r.Get("/city/{city}", h.ProductsByCity)

		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.GetProductByID)
			r.Delete("/", h.DeleteProduct)
		})
	})

	r.Get("/api/v1/cities", h.Cities)
	r.Get("/api/v1/geocode", h.Geocode)
	r.Get("/api/v1/categories", h.ListCategories)

	r.Route("/api/v1/session", func(r chi.Router) {
		r.Get("/city", h.ResolveCity)
		r.Put("/city", h.SelectCity)
		r.Get("/criteria", h.SessionCriteria)
	})
}
