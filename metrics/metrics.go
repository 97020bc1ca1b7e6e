// Package metrics exposes Prometheus collectors for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yoto"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Cookie rejection reasons.
const (
	ReasonCorrupt        = "corrupt"
	ReasonRefreshExpired = "refresh_expired"
)

// Recorder receives session lifecycle events. A nil *Metrics is a valid no-op Recorder.
type Recorder interface {
	Refresh(outcome string)
	Rehydrate(outcome string)
	Swept(n int)
	CookieRejected(reason string)
}

type Metrics struct {
	refresh        *prometheus.CounterVec
	rehydrate      *prometheus.CounterVec
	swept          prometheus.Counter
	cookieRejected *prometheus.CounterVec
}

var _ Recorder = (*Metrics)(nil)

// New registers the collectors on reg. resident reports the current number of in-memory sessions.
func New(reg prometheus.Registerer, resident func() int) (*Metrics, error) {
	m := &Metrics{
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Access token refreshes for resident sessions, by outcome.",
		}, []string{"outcome"}),
		rehydrate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rehydrate_total",
			Help:      "Sessions rebuilt from their cookie, by outcome.",
		}, []string{"outcome"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "swept_total",
			Help:      "Expired sessions evicted by the sweeper.",
		}),
		cookieRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "cookie_rejected_total",
			Help:      "Session cookies downgraded to anonymous, by reason.",
		}, []string{"reason"}),
	}

	collectors := []prometheus.Collector{m.refresh, m.rehydrate, m.swept, m.cookieRejected}
	if resident != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_resident",
			Help:      "Sessions currently held in memory.",
		}, func() float64 { return float64(resident()) }))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.refresh.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rehydrate(outcome string) {
	if m == nil {
		return
	}
	m.rehydrate.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Metrics) CookieRejected(reason string) {
	if m == nil {
		return
	}
	m.cookieRejected.WithLabelValues(reason).Inc()
}
