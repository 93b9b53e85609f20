// Package cityresolve determines the active city for a session: persisted
// choice first, then geolocation, then the catalog's first sorted city.
package cityresolve

import (
	"context"
	"errors"
	"log"

	"marketplace-discovery-service/internal/catalog"
)

// ErrUnknownCity is returned when an explicit selection names a city outside
// the catalog.
var ErrUnknownCity = errors.New("cityresolve: city is not in the catalog")

// Coordinates is a device location fix.
type Coordinates struct {
	Lat float64
	Lng float64
}

// PlaceNamer reverse-geocodes coordinates to a raw place name. Both the
// primary HTTP provider and the offline fallback satisfy it.
type PlaceNamer interface {
	PlaceName(ctx context.Context, lat, lng float64) (string, error)
}

// SessionStore persists the resolved city for the remainder of a session.
type SessionStore interface {
	City(ctx context.Context, sessionID string) (string, error)
	SetCity(ctx context.Context, sessionID, city string) error
}

// Resolver runs the city resolution chain. Failures of individual sources
// are non-fatal; resolution falls through to the next source.
type Resolver struct {
	sessions SessionStore
	catalog  *catalog.Catalog
	sources  []PlaceNamer // tried in order until one yields a catalog match
}

// NewResolver wires a resolver. Geocode sources are optional: with none
// given, resolution goes straight from session state to the catalog default.
func NewResolver(sessions SessionStore, cat *catalog.Catalog, sources ...PlaceNamer) *Resolver {
	return &Resolver{sessions: sessions, catalog: cat, sources: sources}
}

// Resolve determines the active city for the session, first source wins:
//
//  1. a previously persisted city for this session;
//  2. a geolocation-derived city, when coordinates are available — each
//     reverse-geocode source is tried in order and its place name matched
//     against the catalog;
//  3. the first city in the catalog's canonical order.
//
// The resolved city is persisted before returning. A persistence failure is
// logged but does not fail resolution.
func (r *Resolver) Resolve(ctx context.Context, sessionID string, coords *Coordinates) (string, error) {
	if city, err := r.sessions.City(ctx, sessionID); err == nil && city != "" && r.catalog.Known(city) {
		return city, nil
	} else if err != nil {
		log.Printf("WARN: session city lookup failed: %v", err)
	}

	if coords != nil {
		if city, ok := r.geolocate(ctx, *coords); ok {
			r.persist(ctx, sessionID, city)
			return city, nil
		}
	}

	city := r.catalog.First()
	if city == "" {
		return "", errors.New("cityresolve: catalog is empty")
	}
	r.persist(ctx, sessionID, city)
	return city, nil
}

// geolocate tries each reverse-geocode source in order and matches the
// returned place name against the catalog. Provider failures only fall
// through to the next source.
func (r *Resolver) geolocate(ctx context.Context, coords Coordinates) (string, bool) {
	for _, source := range r.sources {
		place, err := source.PlaceName(ctx, coords.Lat, coords.Lng)
		if err != nil {
			log.Printf("WARN: reverse geocode failed: %v", err)
			continue
		}
		if city, ok := r.catalog.Match(place); ok {
			return city, true
		}
		log.Printf("INFO: geocoded place %q matches no catalog city", place)
	}
	return "", false
}

// ResolveCoordinates maps raw coordinates to a catalog city without touching
// session state. It always yields a usable city: when every source fails or
// nothing matches, the catalog's first sorted city is returned and matched
// reports false.
func (r *Resolver) ResolveCoordinates(ctx context.Context, coords Coordinates) (city string, matched bool) {
	if city, ok := r.geolocate(ctx, coords); ok {
		return city, true
	}
	return r.catalog.First(), false
}

// Select records an explicit city choice, bypassing resolution. The city
// must be in the catalog; it is persisted for the session.
func (r *Resolver) Select(ctx context.Context, sessionID, city string) error {
	if !r.catalog.Known(city) {
		return ErrUnknownCity
	}
	return r.sessions.SetCity(ctx, sessionID, city)
}

func (r *Resolver) persist(ctx context.Context, sessionID, city string) {
	if err := r.sessions.SetCity(ctx, sessionID, city); err != nil {
		log.Printf("WARN: failed to persist resolved city: %v", err)
	}
}
