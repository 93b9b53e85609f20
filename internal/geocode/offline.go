package geocode

import (
	"context"
	"fmt"

	"github.com/andreiashu/geobed"
)

// OfflineGeocoder is the secondary reverse-geocoding source: an embedded
// geonames dataset that works without network access. It is consulted when
// the primary provider fails.
type OfflineGeocoder struct {
	g *geobed.GeoBed
}

// NewOfflineGeocoder loads the embedded city dataset. Loading is expensive
// (tens of MB on first run); construct once at startup.
func NewOfflineGeocoder(dataDir, cacheDir string) (*OfflineGeocoder, error) {
	var opts []geobed.Option
	if dataDir != "" {
		opts = append(opts, geobed.WithDataDir(dataDir))
	}
	if cacheDir != "" {
		opts = append(opts, geobed.WithCacheDir(cacheDir))
	}
	g, err := geobed.NewGeobed(opts...)
	if err != nil {
		return nil, fmt.Errorf("geocode: failed to load offline dataset: %w", err)
	}
	return &OfflineGeocoder{g: g}, nil
}

// PlaceName returns the nearest known settlement name for the coordinates.
func (o *OfflineGeocoder) PlaceName(_ context.Context, lat, lng float64) (string, error) {
	city := o.g.ReverseGeocode(lat, lng)
	if city.City == "" {
		return "", ErrNoPlace
	}
	return city.City, nil
}
