package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdvisorCollector bundles Prometheus metrics for the advisory bridge.
type AdvisorCollector struct {
	gatherer prometheus.Gatherer

	Calls          *prometheus.CounterVec
	CallDurations  *prometheus.HistogramVec
	Fallbacks      *prometheus.CounterVec
	EntryAvailable *prometheus.GaugeVec
}

// NewAdvisorCollector registers advisor metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewAdvisorCollector(reg prometheus.Registerer) (*AdvisorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	calls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_calls_total",
		Help: "Calls into the classification engine, labeled by entry point and outcome.",
	}, []string{"entry_point", "outcome"}), "advisor_calls_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_call_duration_seconds",
		Help:    "Classification engine call latency in seconds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"entry_point"}), "advisor_call_duration_seconds")
	if err != nil {
		return nil, err
	}

	fallbacks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_fallbacks_total",
		Help: "Advisory answers that fell back to their safe default, labeled by operation and condition.",
	}, []string{"operation", "condition"}), "advisor_fallbacks_total")
	if err != nil {
		return nil, err
	}

	available, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "advisor_entry_point_available",
		Help: "1 when the entry point resolved to a callable at initialization, else 0.",
	}, []string{"entry_point"}), "advisor_entry_point_available")
	if err != nil {
		return nil, err
	}

	return &AdvisorCollector{
		gatherer:       gatherer,
		Calls:          calls,
		CallDurations:  durations,
		Fallbacks:      fallbacks,
		EntryAvailable: available,
	}, nil
}

// ObserveCall records one engine call. A nil collector is a no-op.
func (c *AdvisorCollector) ObserveCall(entryPoint, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Calls.WithLabelValues(entryPoint, outcome).Inc()
	c.CallDurations.WithLabelValues(entryPoint).Observe(elapsed.Seconds())
}

// ObserveFallback records an answer that degraded to its default.
func (c *AdvisorCollector) ObserveFallback(operation, condition string) {
	if c == nil {
		return
	}
	c.Fallbacks.WithLabelValues(operation, condition).Inc()
}

// SetAvailable records whether an entry point resolved.
func (c *AdvisorCollector) SetAvailable(entryPoint string, ok bool) {
	if c == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	c.EntryAvailable.WithLabelValues(entryPoint).Set(v)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AdvisorCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
