package matching

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spacall_matching_seconds",
		Help:    "Time spent matching a booking to a provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	claimAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacall_provider_claim_attempts_total",
		Help: "Soft provider claim attempts made by the matcher.",
	})
)

func observeMatch(result string, start time.Time) {
	matchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
