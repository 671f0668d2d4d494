package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the sign-in flow
type Metrics struct {
	NoncesIssued    prometheus.Counter
	VerifyOutcomes  *prometheus.CounterVec
	UsersCreated    prometheus.Counter
	SessionsRevoked prometheus.Counter
	StoreDuration   *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NoncesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "siwe_nonces_issued_total",
			Help: "Total number of sign-in nonces issued",
		}),
		VerifyOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "siwe_verify_total",
			Help: "Verify attempts by outcome",
		}, []string{"outcome"}),
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "siwe_users_created_total",
			Help: "Total number of users created on first sign-in",
		}),
		SessionsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "siwe_sessions_revoked_total",
			Help: "Total number of sessions revoked by logout",
		}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siwe_store_duration_seconds",
			Help:    "Latency of remote nonce, session and user store calls",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"op"}),
	}
}

// ObserveVerify counts one verify attempt
func (m *Metrics) ObserveVerify(outcome string) {
	m.VerifyOutcomes.WithLabelValues(outcome).Inc()
}
