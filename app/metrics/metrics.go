package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SessionTotal counts session initiation outcomes per provider.
	SessionTotal *prometheus.CounterVec
	// TokenFetchTotal counts provider token exchanges.
	TokenFetchTotal *prometheus.CounterVec
	// NotificationTotal counts IPN deliveries by processing result.
	NotificationTotal *prometheus.CounterVec
	// VerificationTotal counts verification lookups by outcome.
	VerificationTotal *prometheus.CounterVec
)

// MustRegister creates and registers the collectors. Later calls are no-ops.
func MustRegister(namespace string, reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SessionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_session_total",
			Help:      "Count of payment session initiation outcomes.",
		}, []string{"provider", "outcome"})
		TokenFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_token_fetch_total",
			Help:      "Count of provider token exchanges by result.",
		}, []string{"provider", "result"})
		NotificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_notification_total",
			Help:      "Count of received payment notifications by result.",
		}, []string{"provider", "result"})
		VerificationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verification_total",
			Help:      "Count of payment verifications by outcome.",
		}, []string{"outcome"})

		reg.MustRegister(SessionTotal, TokenFetchTotal, NotificationTotal, VerificationTotal)
	})
}

func ObserveSession(provider, outcome string) {
	if SessionTotal != nil {
		SessionTotal.WithLabelValues(provider, outcome).Inc()
	}
}

func ObserveTokenFetch(provider, result string) {
	if TokenFetchTotal != nil {
		TokenFetchTotal.WithLabelValues(provider, result).Inc()
	}
}

func ObserveNotification(provider, result string) {
	if NotificationTotal != nil {
		NotificationTotal.WithLabelValues(provider, result).Inc()
	}
}

func ObserveVerification(outcome string) {
	if VerificationTotal != nil {
		VerificationTotal.WithLabelValues(outcome).Inc()
	}
}
