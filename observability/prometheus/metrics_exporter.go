package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/ktlin/go-task-pool/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
//
// Sequence tokens are process-unique and unbounded, so they are never used
// as label values; durations are labeled by priority and rejections by
// reason, both bounded sets.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      prom.Counter
	taskRejectedTotal   *prom.CounterVec
	readySetDepth       prom.Gauge
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskpool"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"priority"})
	panicCounter := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected posts.",
	}, []string{"reason"})
	readyGauge := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "ready_set_depth",
		Help:      "Number of sequences eligible for worker assignment.",
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicCounter, err = registerCollector(reg, panicCounter); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if readyGauge, err = registerCollector(reg, readyGauge); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicCounter,
		taskRejectedTotal:   rejectedVec,
		readySetDepth:       readyGauge,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(sequence core.SequenceToken, priority core.TaskPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(priorityLabel(priority)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(sequence core.SequenceToken, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.Inc()
}

// RecordReadySetDepth records the ready set depth.
func (m *MetricsExporter) RecordReadySetDepth(depth int) {
	if m == nil {
		return
	}
	m.readySetDepth.Set(float64(depth))
}

// RecordTaskRejected records post rejection events.
func (m *MetricsExporter) RecordTaskRejected(sequence core.SequenceToken, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(priority core.TaskPriority) string {
	switch priority {
	case core.TaskPriorityUserBlocking:
		return "user_blocking"
	case core.TaskPriorityUserVisible:
		return "user_visible"
	case core.TaskPriorityBestEffort:
		return "best_effort"
	default:
		return "unknown"
	}
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
