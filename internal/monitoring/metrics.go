package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets issued, by type",
		},
		[]string{"type"},
	)

	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_verifications_total",
			Help: "Verification attempts, by result",
		},
		[]string{"result"},
	)

	refundReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_reviews_total",
			Help: "Refund review decisions, by outcome",
		},
		[]string{"outcome"},
	)

	refundRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "refund_requests_total",
			Help: "Refund requests submitted",
		},
	)

	loginLockouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_lockouts_total",
			Help: "Login lockouts triggered, by window",
		},
		[]string{"window"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func TicketIssued(ticketType string, n int) {
	ticketsIssued.WithLabelValues(ticketType).Add(float64(n))
}

func VerificationRecorded(ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	verifications.WithLabelValues(result).Inc()
}

func RefundRequested() {
	refundRequests.Inc()
}

func RefundReviewed(outcome string) {
	refundReviews.WithLabelValues(outcome).Inc()
}

func LoginLockout(window string) {
	loginLockouts.WithLabelValues(window).Inc()
}

func ObserveHTTP(method, path, status string, seconds float64) {
	httpDuration.WithLabelValues(method, path, status).Observe(seconds)
}
