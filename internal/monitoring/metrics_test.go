package monitoring

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
)

// mockQueue implements queue.Queue for testing
type mockQueue struct {
	size atomic.Int64
	err  error
}

func newMockQueue(size int64) *mockQueue {
	q := &mockQueue{}
	q.size.Store(size)
	return q
}

func (m *mockQueue) Enqueue(context.Context, string) error { return nil }
func (m *mockQueue) Dequeue(context.Context) (string, error) {
	return "", errors.New("not implemented")
}
func (m *mockQueue) Size(context.Context) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.size.Load(), nil
}
func (m *mockQueue) Health(context.Context) error { return nil }
func (m *mockQueue) Close() error                 { return nil }

func TestMetrics_QueueDepth(t *testing.T) {
	q := newMockQueue(42)
	metrics := NewMetrics(q)

	ctx := context.Background()
	if err := metrics.UpdateQueueDepth(ctx); err != nil {
		t.Fatalf("UpdateQueueDepth failed: %v", err)
	}
	if got := testutil.ToFloat64(metrics.queueDepth); got != 42 {
		t.Errorf("Expected queue depth 42, got %v", got)
	}

	q.size.Store(7)
	_ = metrics.UpdateQueueDepth(ctx)

	snap := metrics.Snapshot()
	if snap.QueueDepth != 7 {
		t.Errorf("Expected snapshot depth 7, got %d", snap.QueueDepth)
	}
	if snap.QueueDepthHigh != 42 {
		t.Errorf("Expected high water mark 42, got %d", snap.QueueDepthHigh)
	}
}

func TestMetrics_QueueDepthError(t *testing.T) {
	q := newMockQueue(0)
	q.err = errors.New("redis down")

	if err := NewMetrics(q).UpdateQueueDepth(context.Background()); err == nil {
		t.Error("Expected error from queue to propagate")
	}
}

func TestMetrics_TaskTracking(t *testing.T) {
	metrics := NewMetrics(nil)

	metrics.RecordTaskCreated()
	metrics.RecordTaskCreated()
	metrics.RecordTaskRejected()
	metrics.RecordTaskStarted()
	metrics.RecordTaskStarted()
	metrics.RecordTaskFinished("completed", true, time.Second)
	metrics.RecordTaskFinished("failed", true, 2*time.Second)
	metrics.RecordTaskFinished("failed", false, 0)
	metrics.RecordTaskCancelled()

	if got := testutil.ToFloat64(metrics.tasksCreated); got != 2 {
		t.Errorf("Expected 2 created, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.tasksRejected); got != 1 {
		t.Errorf("Expected 1 rejected, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.tasksCancelled); got != 1 {
		t.Errorf("Expected 1 cancelled, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.tasksFinished.WithLabelValues("failed")); got != 2 {
		t.Errorf("Expected 2 failed, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.taskDuration); got != 1 {
		t.Errorf("Expected one histogram series, got %d", got)
	}

	snap := metrics.Snapshot()
	if snap.TasksCreated != 2 || snap.TasksCompleted != 1 || snap.TasksFailed != 2 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
	if snap.TasksInProgress != 0 {
		t.Errorf("Expected nothing in progress, got %d", snap.TasksInProgress)
	}
}

func TestMetrics_ActionsAndEngine(t *testing.T) {
	metrics := NewMetrics(nil)

	metrics.RecordAction("navigate", "success", 10*time.Millisecond)
	metrics.RecordAction("click", "error", time.Millisecond)
	metrics.RecordSessionStart(nil)
	metrics.RecordSessionStart(errors.New("boom"))
	metrics.SetEngineBusy(true)
	metrics.SetSubscribers(3)

	if got := testutil.ToFloat64(metrics.actions.WithLabelValues("click", "error")); got != 1 {
		t.Errorf("Expected 1 click error, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.sessionStarts.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed session start, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.engineBusy); got != 1 {
		t.Errorf("Expected engine busy gauge 1, got %v", got)
	}
	metrics.SetEngineBusy(false)
	if got := testutil.ToFloat64(metrics.engineBusy); got != 0 {
		t.Errorf("Expected engine busy gauge 0, got %v", got)
	}
	if metrics.Snapshot().Subscribers != 3 {
		t.Errorf("Expected 3 subscribers in snapshot")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *Metrics

	metrics.RecordTaskCreated()
	metrics.RecordTaskFinished("completed", true, time.Second)
	metrics.RecordAction("wait", "success", 0)
	metrics.SetEngineBusy(true)
	metrics.SetSubscribers(1)
	metrics.Stop()
	if err := metrics.UpdateQueueDepth(context.Background()); err != nil {
		t.Errorf("Expected nil metrics to ignore queue depth, got %v", err)
	}
	if snap := metrics.Snapshot(); snap.TasksCreated != 0 {
		t.Errorf("Expected empty snapshot, got %+v", snap)
	}
}

func TestMetrics_StartCollection(t *testing.T) {
	q := newMockQueue(5)
	metrics := NewMetrics(q)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.StartCollection(ctx, 5*time.Millisecond, logger.Discard())
	defer metrics.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if metrics.Snapshot().QueueDepth == 5 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Background collection never sampled the queue")
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.RecordTaskCreated()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "pilot_tasks_created_total 1") {
		t.Errorf("Exposition missing task counter:\n%s", body)
	}
}

func BenchmarkMetrics_RecordAction(b *testing.B) {
	metrics := NewMetrics(nil)
	for i := 0; i < b.N; i++ {
		metrics.RecordAction("click", "success", time.Millisecond)
	}
}
