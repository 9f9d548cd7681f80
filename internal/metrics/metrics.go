package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Requests counts finished gateway requests by outcome and public code
	Requests *prometheus.CounterVec
	// UpstreamLatency observes wall-clock time of upstream calls
	UpstreamLatency prometheus.Histogram
	// Notifications counts notifier results (sent, failed, dropped, skipped)
	Notifications *prometheus.CounterVec
	// SideEffectFailures counts swallowed audit/counter/notify failures
	SideEffectFailures *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedgate_requests_total",
			Help: "Gateway requests by outcome and response code",
		}, []string{"outcome", "code"}),
		UpstreamLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedgate_upstream_latency_seconds",
			Help:    "Latency of upstream feed requests",
			Buckets: prometheus.DefBuckets,
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedgate_notifications_total",
			Help: "Security notifications by delivery result",
		}, []string{"result"}),
		SideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedgate_side_effect_failures_total",
			Help: "Swallowed failures of best-effort side effects",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveRequest(outcome, code string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome, code).Inc()
}

func (m *Metrics) ObserveUpstream(d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamLatency.Observe(d.Seconds())
}

func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(kind).Inc()
}
