package custody

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK     = "ok"
	outcomeAbsent = "absent"
)

// Metrics counts custody operations by outcome. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	secretsObserved prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vision",
			Subsystem: "custody",
			Name:      "operations_total",
			Help:      "Custody operations by operation and outcome class.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vision",
			Subsystem: "custody",
			Name:      "operation_duration_seconds",
			Help:      "Custody operation latency.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"op"}),
		secretsObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vision",
			Subsystem: "custody",
			Name:      "device_secret_loads_total",
			Help:      "Device secret get-or-create calls that returned a secret.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.latency, m.secretsObserved)
	}
	return m
}

func (m *Metrics) observe(op string, started time.Time, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) deviceSecretLoaded() {
	if m == nil {
		return
	}
	m.secretsObserved.Inc()
}

func outcomeOf(err error) string {
	if err == nil {
		return outcomeOK
	}
	return Classify(err)
}
