package monitoring

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/queue"
)

const namespace = "pilot"

// Metrics collects pipeline metrics and exposes them for Prometheus. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	queue    queue.Queue

	tasksCreated   prometheus.Counter
	tasksRejected  prometheus.Counter
	tasksCancelled prometheus.Counter
	tasksFinished  *prometheus.CounterVec
	taskDuration   prometheus.Histogram
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	engineBusy     prometheus.Gauge
	subscribers    prometheus.Gauge
	sessionStarts  *prometheus.CounterVec

	// Mirrors for Snapshot
	created         atomic.Int64
	completed       atomic.Int64
	failed          atomic.Int64
	inProgress      atomic.Int32
	lastQueueDepth  atomic.Int64
	queueDepthHigh  atomic.Int64
	subscriberCount atomic.Int64

	startTime time.Time
	stopOnce  sync.Once
	stop      chan struct{}
}

// MetricsSnapshot provides a point-in-time view of the counters
type MetricsSnapshot struct {
	TasksCreated    int64         `json:"tasks_created"`
	TasksCompleted  int64         `json:"tasks_completed"`
	TasksFailed     int64         `json:"tasks_failed"`
	TasksInProgress int32         `json:"tasks_in_progress"`
	QueueDepth      int64         `json:"queue_depth"`
	QueueDepthHigh  int64         `json:"queue_depth_high"`
	Subscribers     int64         `json:"subscribers"`
	Uptime          time.Duration `json:"uptime"`
}

// NewMetrics creates a collector with its own registry. q may be nil when
// queue depth is not tracked.
func NewMetrics(q queue.Queue) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		queue:     q,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_created_total",
			Help: "Tasks accepted and scheduled.",
		}),
		tasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_rejected_total",
			Help: "Instructions rejected by validation.",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_cancelled_total",
			Help: "Tasks cancelled before finishing.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_finished_total",
			Help: "Tasks that reached a terminal status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Wall time from running to terminal status.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total",
			Help: "Executed actions by kind and outcome.",
		}, []string{"kind", "status"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "action_duration_seconds",
			Help:    "Driver call duration per action kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Task IDs waiting for the engine.",
		}),
		engineBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "engine_busy",
			Help: "1 while the engine is executing a task.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stream_subscribers",
			Help: "Connected event stream subscribers.",
		}),
		sessionStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_starts_total",
			Help: "Automation session initializations by outcome.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.tasksCreated, m.tasksRejected, m.tasksCancelled, m.tasksFinished, m.taskDuration,
		m.actions, m.actionDuration, m.queueDepth, m.engineBusy, m.subscribers, m.sessionStarts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UpdateQueueDepth fetches and updates the current queue depth
func (m *Metrics) UpdateQueueDepth(ctx context.Context) error {
	if m == nil || m.queue == nil {
		return nil
	}
	size, err := m.queue.Size(ctx)
	if err != nil {
		return err
	}

	m.queueDepth.Set(float64(size))
	m.lastQueueDepth.Store(size)
	for {
		high := m.queueDepthHigh.Load()
		if size <= high || m.queueDepthHigh.CompareAndSwap(high, size) {
			break
		}
	}
	return nil
}

// StartCollection samples queue depth every interval until ctx is done or
// Stop is called
func (m *Metrics) StartCollection(ctx context.Context, interval time.Duration, log *logger.Logger) {
	if m == nil || m.queue == nil {
		return
	}
	if log == nil {
		log = logger.Or("metrics")
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				if err := m.UpdateQueueDepth(ctx); err != nil {
					log.Warn("Failed to sample queue depth", logger.Fields{"error": err})
				}
			}
		}
	}()
}

// Stop ends background collection
func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

// RecordTaskCreated counts an accepted task
func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}
	m.tasksCreated.Inc()
	m.created.Add(1)
}

// RecordTaskRejected counts an instruction that failed validation
func (m *Metrics) RecordTaskRejected() {
	if m == nil {
		return
	}
	m.tasksRejected.Inc()
}

// RecordTaskCancelled counts a cancellation request that took effect
func (m *Metrics) RecordTaskCancelled() {
	if m == nil {
		return
	}
	m.tasksCancelled.Inc()
}

// RecordTaskStarted increments the in-progress counter
func (m *Metrics) RecordTaskStarted() {
	if m == nil {
		return
	}
	m.inProgress.Add(1)
}

// RecordTaskFinished records a terminal status. duration is zero for tasks
// that never ran.
func (m *Metrics) RecordTaskFinished(status string, ran bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(status).Inc()
	if status == "completed" {
		m.completed.Add(1)
	} else {
		m.failed.Add(1)
	}
	if ran {
		m.inProgress.Add(-1)
		m.taskDuration.Observe(duration.Seconds())
	}
}

// RecordAction records one driver call
func (m *Metrics) RecordAction(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, status).Inc()
	m.actionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSessionStart records a session initialization attempt
func (m *Metrics) RecordSessionStart(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sessionStarts.WithLabelValues(status).Inc()
}

// SetEngineBusy flips the busy gauge
func (m *Metrics) SetEngineBusy(busy bool) {
	if m == nil {
		return
	}
	if busy {
		m.engineBusy.Set(1)
	} else {
		m.engineBusy.Set(0)
	}
}

// SetSubscribers records the current subscriber count
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
	m.subscriberCount.Store(int64(n))
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		TasksCreated:    m.created.Load(),
		TasksCompleted:  m.completed.Load(),
		TasksFailed:     m.failed.Load(),
		TasksInProgress: m.inProgress.Load(),
		QueueDepth:      m.lastQueueDepth.Load(),
		QueueDepthHigh:  m.queueDepthHigh.Load(),
		Subscribers:     m.subscriberCount.Load(),
		Uptime:          time.Since(m.startTime),
	}
}
