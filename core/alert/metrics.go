package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sokol_broadcast_deliveries_total",
		Help: "Per-recipient broadcast delivery attempts by outcome.",
	}, []string{"status"})

	metricResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sokol_responses_total",
		Help: "Recorded incident responses by status.",
	}, []string{"status"})

	metricRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sokol_summary_refresh_failures_total",
		Help: "Live summary refreshes that failed and were dropped.",
	})
)
