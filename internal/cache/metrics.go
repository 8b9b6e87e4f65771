package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics counts cache operations by outcome. A nil *Metrics records
// nothing.
type Metrics struct {
	ops *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kanban",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache operations by operation and result.",
	}, []string{"op", "result"})
	if reg != nil {
		reg.MustRegister(ops)
	}
	return &Metrics{ops: ops}
}

func (m *Metrics) record(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == ErrCacheMiss:
		result = "miss"
	case err == ErrCacheDown:
		result = "rejected"
	case err != nil:
		result = "error"
	}
	m.ops.WithLabelValues(op, result).Inc()
}

// Count returns the current value of one op/result counter.
func (m *Metrics) Count(op, result string) float64 {
	if m == nil {
		return 0
	}
	c, err := m.ops.GetMetricWithLabelValues(op, result)
	if err != nil {
		return 0
	}
	return counterValue(c)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
