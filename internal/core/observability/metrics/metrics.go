// Package metrics exposes Prometheus collectors for the scheduler and the
// snapshot loader. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "worldcore"

// Load results reported by ObserveLoad.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

type Metrics struct {
	stepDuration     prometheus.Histogram
	functionDuration *prometheus.HistogramVec
	chunks           *prometheus.CounterVec
	loads            *prometheus.CounterVec
	unknownTypes     *prometheus.CounterVec
	liveEntities     prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "step_duration_seconds",
			Help:      "Wall time of one simulation step.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		functionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "function_duration_seconds",
			Help:      "Wall time of one update function within a step, all chunks included.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"function", "phase"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "async_chunks_total",
			Help:      "Chunks submitted to the worker pool.",
		}, []string{"function"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "loads_total",
			Help:      "Snapshot decode and instantiate attempts by stage and result.",
		}, []string{"stage", "result"}),
		unknownTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "unknown_types_total",
			Help:      "Component type batches skipped because the type is not registered.",
		}, []string{"type"}),
		liveEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "live_entities",
			Help:      "Entities currently alive in the world.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.stepDuration, m.functionDuration, m.chunks, m.loads, m.unknownTypes, m.liveEntities,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) ObserveStep(d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveFunction(name, phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.functionDuration.WithLabelValues(name, phase).Observe(d.Seconds())
}

func (m *Metrics) AddChunks(name string, n int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(name).Add(float64(n))
}

func (m *Metrics) ObserveLoad(stage, result string) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(stage, result).Inc()
}

func (m *Metrics) UnknownType(name string) {
	if m == nil {
		return
	}
	m.unknownTypes.WithLabelValues(name).Inc()
}

func (m *Metrics) SetLiveEntities(n int) {
	if m == nil {
		return
	}
	m.liveEntities.Set(float64(n))
}
