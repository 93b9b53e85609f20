// Package observability exposes the service's Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DiscoveryQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_queries_total",
			Help: "Total product discovery queries served",
		},
	)
	NearbyFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nearby_fallbacks_total",
			Help: "Total nearby-city fallback activations",
		},
	)
	GeocodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geocode_failures_total",
			Help: "Total reverse-geocode attempts that yielded no catalog city",
		},
	)
)

// Handler returns the scrape endpoint. Counters register once at package
// load, so the handler can be requested any number of times.
func Handler() http.Handler {
	return promhttp.Handler()
}
