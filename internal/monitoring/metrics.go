// Package monitoring exposes Prometheus metrics for the ticketing
// core.  Metric variables are registered with promauto at package init
// and written from the service layer; the /metrics endpoint is wired
// in the router.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_attempts_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	ticketsSold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_sold_total",
			Help: "Individual admission units sold",
		},
	)

	purchaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purchase_duration_seconds",
			Help:    "Wall time of the purchase transaction including credential issuance",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	credentialValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_validations_total",
			Help: "Gate credential scans by result",
		},
		[]string{"result"},
	)

	promoRedemptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promo_redemptions_total",
			Help: "Flash-sale redemptions consumed inside purchase transactions",
		},
	)
)

// ObservePurchase records one purchase attempt with its outcome label
// ("ok", "conflict", "rejected", "error") and duration.
func ObservePurchase(outcome string, started time.Time) {
	purchaseAttempts.WithLabelValues(outcome).Inc()
	purchaseDuration.Observe(time.Since(started).Seconds())
}

// AddTicketsSold counts admission units from a committed purchase.
func AddTicketsSold(n uint32) {
	ticketsSold.Add(float64(n))
}

// ObserveValidation records one gate scan result ("admitted",
// "already_used", "not_recognized", "unpaid", "invalid", "error").
func ObserveValidation(result string) {
	credentialValidations.WithLabelValues(result).Inc()
}

// ObservePromoRedemption counts one consumed flash-sale redemption.
func ObservePromoRedemption() {
	promoRedemptions.Inc()
}
