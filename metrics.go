package aegis

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "aegis"

// Call modes used as the "mode" label.
const (
	modeSend   = "send"
	modeStream = "stream"
)

// Metrics records dispatcher activity in Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors that
// are already registered (for example by a second dispatcher) are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Provider calls by provider, mode and outcome.",
		}, []string{"provider", "mode", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to the final response or end of stream.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "mode"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stream_chunks_total",
			Help:      "Chunks delivered to stream consumers.",
		}, []string{"provider"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.chunks, err = register(reg, m.chunks); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// outcome returns the outcome label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case err == errStreamAbandoned:
		return "abandoned"
	default:
		return string(KindOf(err))
	}
}

func (m *Metrics) observe(p Provider, mode string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(p.String(), mode, outcome(err)).Inc()
	m.duration.WithLabelValues(p.String(), mode).Observe(elapsed.Seconds())
}

func (m *Metrics) observeChunks(p Provider, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues(p.String()).Add(float64(n))
}
