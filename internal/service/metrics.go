package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the search collectors. Each instance registers on its own
// registry so tests and multiple servers never collide.
type Metrics struct {
	Registry *prometheus.Registry

	searchDuration *prometheus.HistogramVec
	searchTotal    *prometheus.CounterVec
	searchResults  prometheus.Histogram
	conditionDepth prometheus.Histogram
	rejectedTotal  *prometheus.CounterVec
	entityOpsTotal *prometheus.CounterVec
	exportedRows   prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		searchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "egeria_search_duration_seconds",
				Help:    "Entity search duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation", "status"},
		),
		searchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egeria_search_requests_total",
				Help: "Total number of entity searches",
			},
			[]string{"operation", "status"},
		),
		searchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "egeria_search_matches",
			Help:    "Number of entities matching a search",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		conditionDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "egeria_search_condition_depth",
			Help:    "Depth of the condition trees received",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 16},
		}),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egeria_search_rejected_total",
				Help: "Searches rejected before reaching the repository",
			},
			[]string{"reason"},
		),
		entityOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egeria_entity_operations_total",
				Help: "Total number of entity operations",
			},
			[]string{"operation", "status"},
		),
		exportedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "egeria_search_exported_rows_total",
			Help: "Entity rows written by exports",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
