package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aiassistantthx/browser-ai-agent/internal/logger"
	"github.com/aiassistantthx/browser-ai-agent/internal/queue"
)

// Mock Queue for testing
type mockQueue struct {
	mu          sync.Mutex
	ids         []string
	dequeueFunc func(ctx context.Context) (string, error)
}

func newMockQueue(ids ...string) *mockQueue {
	return &mockQueue{ids: ids}
}

func (m *mockQueue) Enqueue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

func (m *mockQueue) Dequeue(ctx context.Context) (string, error) {
	m.mu.Lock()
	fn := m.dequeueFunc
	if fn == nil && len(m.ids) > 0 {
		id := m.ids[0]
		m.ids = m.ids[1:]
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	time.Sleep(5 * time.Millisecond)
	return "", queue.ErrNoTask
}

func (m *mockQueue) Size(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.ids)), nil
}

func (m *mockQueue) Health(ctx context.Context) error { return nil }
func (m *mockQueue) Close() error                     { return nil }

// recordingProcessor remembers processed IDs; failing IDs return an error
type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	failing   map[string]bool
	active    int
	maxActive int
}

func (p *recordingProcessor) Process(ctx context.Context, id string) error {
	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.processed = append(p.processed, id)
	if p.failing[id] {
		return errors.New("boom")
	}
	return nil
}

func (p *recordingProcessor) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.processed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewWorker(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "with defaults",
			config: Config{},
		},
		{
			name: "with custom config",
			config: Config{
				ID:           "test-worker",
				ErrorBackoff: 200 * time.Millisecond,
				Logger:       logger.Discard(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorker(newMockQueue(), &recordingProcessor{}, tt.config)
			if w == nil {
				t.Fatal("expected worker to be created")
			}

			if tt.config.ID != "" && w.ID() != tt.config.ID {
				t.Errorf("expected worker ID %s, got %s", tt.config.ID, w.ID())
			}
			if tt.config.ID == "" && w.ID() == "" {
				t.Error("expected a generated worker ID")
			}

			if w.IsRunning() {
				t.Error("expected worker to not be running initially")
			}
		})
	}
}

func TestWorker_StartStop(t *testing.T) {
	w := NewWorker(newMockQueue(), &recordingProcessor{}, Config{ID: "test-worker", Logger: logger.Discard()})
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	if !w.IsRunning() {
		t.Error("expected worker to be running")
	}

	// Try to start again (should fail)
	if err := w.Start(ctx); err == nil {
		t.Error("expected error when starting already running worker")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("failed to stop worker: %v", err)
	}
	if w.IsRunning() {
		t.Error("expected worker to be stopped")
	}

	// Try to stop again (should fail)
	if err := w.Stop(); err == nil {
		t.Error("expected error when stopping already stopped worker")
	}
}

func TestWorker_ProcessesInOrder(t *testing.T) {
	q := newMockQueue("t1", "t2", "t3", "t4")
	p := &recordingProcessor{failing: map[string]bool{"t2": true}}
	w := NewWorker(q, p, Config{Logger: logger.Discard(), ErrorBackoff: time.Millisecond})

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	waitFor(t, func() bool { return len(p.seen()) == 4 })

	want := []string{"t1", "t2", "t3", "t4"}
	for i, id := range p.seen() {
		if id != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], id)
		}
	}

	processed, failed := w.Stats()
	if processed != 3 || failed != 1 {
		t.Errorf("expected 3 processed / 1 failed, got %d / %d", processed, failed)
	}
}

func TestWorker_OneTaskAtATime(t *testing.T) {
	q := newMockQueue()
	for i := 0; i < 20; i++ {
		_ = q.Enqueue(context.Background(), "t")
	}
	p := &recordingProcessor{}
	w := NewWorker(q, p, Config{Logger: logger.Discard()})

	_ = w.Start(context.Background())
	waitFor(t, func() bool { return len(p.seen()) == 20 })
	_ = w.Stop()

	if p.maxActive != 1 {
		t.Errorf("expected serial processing, saw %d concurrent", p.maxActive)
	}
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	w := NewWorker(newMockQueue(), &recordingProcessor{}, Config{Logger: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, w.IsRunning)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
	if w.IsRunning() {
		t.Error("expected worker to be stopped")
	}
}

func TestWorker_StopsWhenQueueCloses(t *testing.T) {
	q := newMockQueue()
	q.dequeueFunc = func(context.Context) (string, error) { return "", queue.ErrClosed }
	w := NewWorker(q, &recordingProcessor{}, Config{Logger: logger.Discard()})

	_ = w.Start(context.Background())
	waitFor(t, func() bool { return !w.IsRunning() })
}

func TestWorker_BacksOffOnQueueErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	q := newMockQueue()
	q.dequeueFunc = func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return "", errors.New("redis unavailable")
	}
	w := NewWorker(q, &recordingProcessor{}, Config{Logger: logger.Discard(), ErrorBackoff: 50 * time.Millisecond})

	_ = w.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	_ = w.Stop()

	mu.Lock()
	defer mu.Unlock()
	if calls > 4 {
		t.Errorf("expected backoff between failing dequeues, got %d calls", calls)
	}
	if calls == 0 {
		t.Error("expected at least one dequeue attempt")
	}
}
