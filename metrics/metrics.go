// Package metrics holds the Prometheus collectors of the navigator service.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "navigator"

// Request outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeInvalid       = "invalid"
	OutcomeBadPrediction = "bad_prediction"
	OutcomeError         = "error"
)

type Metrics struct {
	Requests        *prometheus.CounterVec
	Rollbacks       prometheus.Counter
	RankerFallbacks prometheus.Counter
	PromptTokens    *prometheus.HistogramVec
	Sessions        prometheus.Gauge
	RequestDuration prometheus.Histogram
}

// New registers the collectors with reg, or the default registerer when reg
// is nil. Collectors that are already registered are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Next action requests by predicted intent and outcome.",
		}, []string{"intent", "outcome"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Requests whose replay changes were rolled back.",
		}),
		RankerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranker_fallbacks_total",
			Help:      "Rankings that fell back to input order.",
		}),
		PromptTokens: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prompt_tokens",
			Help:      "Tokens used by each prompt segment.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 10),
		}, []string{"segment"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions held in memory.",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of next action requests.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if err := registerOne(reg, &m.Requests); err != nil {
		return nil, err
	}
	if err := registerOne(reg, &m.PromptTokens); err != nil {
		return nil, err
	}
	for _, c := range []*prometheus.Counter{&m.Rollbacks, &m.RankerFallbacks} {
		if err := registerOne(reg, c); err != nil {
			return nil, err
		}
	}
	if err := registerOne(reg, &m.Sessions); err != nil {
		return nil, err
	}
	if err := registerOne(reg, &m.RequestDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// registerOne registers *c, replacing it with the existing collector when an
// equal one is already registered.
func registerOne[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return errors.Wrap(err, "register metric")
	}
	return nil
}

func (m *Metrics) ObserveRequest(intent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if intent == "" {
		intent = "none"
	}
	m.Requests.WithLabelValues(intent, outcome).Inc()
	m.RequestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePromptTokens(tokens map[string]int) {
	if m == nil {
		return
	}
	for segment, n := range tokens {
		m.PromptTokens.WithLabelValues(segment).Observe(float64(n))
	}
}

func (m *Metrics) Rollback() {
	if m == nil {
		return
	}
	m.Rollbacks.Inc()
}
