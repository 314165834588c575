// README: Prometheus collectors for dispatch, lifecycle and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersServed = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_served_total", Help: "Polls that returned an offer"})
	OffersEmpty  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "offers_empty_total", Help: "Polls that returned no offer"})
	Declines     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "declines_total", Help: "Offers declined by drivers"})

	AcceptResults = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accept_results_total", Help: "Accept attempts by result"},
		[]string{"result"},
	)
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_transitions_total", Help: "Ride status transitions by target status"},
		[]string{"to"},
	)
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_online", Help: "Drivers currently online in this process"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
