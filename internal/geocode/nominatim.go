// Package geocode provides reverse-geocoding sources for city resolution:
// a primary HTTP provider (Nominatim) and an embedded offline fallback.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrNoPlace is returned when a provider answers but cannot name a place for
// the given coordinates.
var ErrNoPlace = errors.New("geocode: no place name for coordinates")

// NominatimClient reverse-geocodes through the OpenStreetMap Nominatim API.
type NominatimClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewNominatimClient creates a client for the given base URL (e.g.
// "https://nominatim.openstreetmap.org"). Nominatim's usage policy requires
// an identifying User-Agent.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NominatimClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// nominatimResponse is the slice of the reverse-geocode payload we read. The
// place name can arrive in several address fields depending on settlement
// size.
type nominatimResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
	} `json:"address"`
}

// PlaceName returns the best-guess settlement name for the coordinates.
func (c *NominatimClient) PlaceName(ctx context.Context, lat, lng float64) (string, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s&accept-language=ru",
		c.baseURL, url.QueryEscape(fmt.Sprintf("%f", lat)), url.QueryEscape(fmt.Sprintf("%f", lng)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("geocode: failed to build reverse request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode: reverse request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode: reverse request returned status %d", res.StatusCode)
	}

	var payload nominatimResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("geocode: failed to decode reverse response: %w", err)
	}

	for _, name := range []string{
		payload.Address.City,
		payload.Address.Town,
		payload.Address.Village,
		payload.Address.Municipality,
	} {
		if name != "" {
			return name, nil
		}
	}
	return "", ErrNoPlace
}
