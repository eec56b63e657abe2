package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-interaction-manager/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	// PassBuckets and CallbackBuckets default to prom.DefBuckets.
	PassBuckets     []float64
	CallbackBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	passDurationSeconds     *prom.HistogramVec
	transitionsTotal        *prom.CounterVec
	callbackDurationSeconds *prom.HistogramVec
	callbackFailuresTotal   *prom.CounterVec
	queueDepth              *prom.GaugeVec
	activeInteractions      *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
// Exporters sharing a registry and namespace share collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "interactions"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	passBuckets := opts.PassBuckets
	if len(passBuckets) == 0 {
		passBuckets = prom.DefBuckets
	}
	callbackBuckets := opts.CallbackBuckets
	if len(callbackBuckets) == 0 {
		callbackBuckets = prom.DefBuckets
	}

	passVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of commit-and-flush passes in seconds.",
		Buckets:   passBuckets,
	}, []string{"manager"})
	transitionVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Total number of emitted interaction transitions.",
	}, []string{"manager", "event"})
	callbackVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "callback_duration_seconds",
		Help:      "Deferred callback duration in seconds.",
		Buckets:   callbackBuckets,
	}, []string{"manager"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "callback_failures_total",
		Help:      "Total number of deferred callbacks that panicked or returned an error.",
	}, []string{"manager"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Deferred callbacks waiting for interactions to finish.",
	}, []string{"manager"})
	activeVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "active_interactions",
		Help:      "Committed active interaction handles.",
	}, []string{"manager"})

	var err error
	if passVec, err = registerCollector(reg, passVec); err != nil {
		return nil, err
	}
	if transitionVec, err = registerCollector(reg, transitionVec); err != nil {
		return nil, err
	}
	if callbackVec, err = registerCollector(reg, callbackVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if activeVec, err = registerCollector(reg, activeVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		passDurationSeconds:     passVec,
		transitionsTotal:        transitionVec,
		callbackDurationSeconds: callbackVec,
		callbackFailuresTotal:   failureVec,
		queueDepth:              queueDepthVec,
		activeInteractions:      activeVec,
	}, nil
}

// RecordPass records the duration of one pass.
func (m *MetricsExporter) RecordPass(managerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.passDurationSeconds.WithLabelValues(managerLabel(managerName)).Observe(duration.Seconds())
}

// RecordTransition counts an emitted event.
func (m *MetricsExporter) RecordTransition(managerName string, event core.Event) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(managerLabel(managerName), eventLabel(event)).Inc()
}

// RecordCallback records a deferred callback and counts it as failed when it
// panicked or returned an error.
func (m *MetricsExporter) RecordCallback(managerName string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	name := managerLabel(managerName)
	m.callbackDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
	if failed {
		m.callbackFailuresTotal.WithLabelValues(name).Inc()
	}
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(managerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(managerLabel(managerName)).Set(float64(depth))
}

func (m *MetricsExporter) RecordActiveInteractions(managerName string, active int) {
	if m == nil {
		return
	}
	m.activeInteractions.WithLabelValues(managerLabel(managerName)).Set(float64(active))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func managerLabel(name string) string {
	return normalizeLabel(name, "unknown")
}

func eventLabel(event core.Event) string {
	if !event.Valid() {
		return "unknown"
	}
	return event.String()
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
