package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aiassistantthx/browser-ai-agent/internal/action"
	"github.com/aiassistantthx/browser-ai-agent/internal/task"
)

// setupTestRedis creates a test Redis server using miniredis
func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStorage(client, time.Hour), mr
}

func sampleTask(text string) *task.Task {
	return task.New(text, "navigation", []action.Action{
		action.Navigate("https://example.com"),
		action.Wait(1),
	})
}

// TestNewRedisClient tests connecting through the shared client helper
func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(mr.Addr(), "", 0, 4)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient("", "", 0, 4); err == nil {
		t.Error("Expected error for empty address")
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisClient(addr, "", 0, 1); err == nil {
		t.Error("Expected error when redis is down")
	}
}

// TestSaveTask tests saving a task to Redis
func TestSaveTask(t *testing.T) {
	store, mr := setupTestRedis(t)

	tsk := sampleTask("go to example.com")
	if err := store.SaveTask(context.Background(), tsk); err != nil {
		t.Fatalf("Failed to save task: %v", err)
	}

	if !mr.Exists(taskStorePrefix + tsk.ID) {
		t.Error("Task was not saved to Redis")
	}
	if ttl := mr.TTL(taskStorePrefix + tsk.ID); ttl != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", ttl)
	}
	members, err := mr.ZMembers(createdIndexKey)
	if err != nil || len(members) != 1 || members[0] != tsk.ID {
		t.Errorf("Expected task in created index, got %v (%v)", members, err)
	}
}

// TestSaveNilTask tests saving invalid tasks
func TestSaveNilTask(t *testing.T) {
	store, _ := setupTestRedis(t)

	if err := store.SaveTask(context.Background(), nil); err == nil {
		t.Error("Expected error when saving nil task")
	}
	if err := store.SaveTask(context.Background(), &task.Task{}); err == nil {
		t.Error("Expected error when saving task with empty ID")
	}
}

// TestGetTask tests retrieving a task from Redis
func TestGetTask(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	original := sampleTask("go to example.com then wait 1 second")
	original.Context = map[string]interface{}{"source": "test"}
	original.Model = "none"
	if err := original.MarkScheduled(); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTask(ctx, original); err != nil {
		t.Fatalf("Failed to save task: %v", err)
	}

	got, err := store.GetTask(ctx, original.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}

	if got.ID != original.ID {
		t.Errorf("Expected task ID %s, got %s", original.ID, got.ID)
	}
	if got.Status != task.StatusScheduled {
		t.Errorf("Expected status scheduled, got %s", got.Status)
	}
	if len(got.Actions) != 2 || got.Actions[0].URL != "https://example.com" || got.Actions[1].Duration != 1 {
		t.Errorf("Actions not preserved: %+v", got.Actions)
	}
	if got.Context["source"] != "test" || got.Model != "none" {
		t.Errorf("Context/model not preserved: %+v %q", got.Context, got.Model)
	}
}

// TestGetNonExistentTask tests the not-found sentinel
func TestGetNonExistentTask(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}

	if _, err := store.GetTask(context.Background(), ""); err == nil {
		t.Error("Expected error for empty ID")
	}
}

// TestSaveTaskOverwrites tests that status updates replace the record
func TestSaveTaskOverwrites(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	tsk := sampleTask("go to example.com")
	_ = tsk.MarkScheduled()
	if err := store.SaveTask(ctx, tsk); err != nil {
		t.Fatal(err)
	}

	_ = tsk.MarkRunning()
	_ = tsk.MarkCompleted([]task.ActionResult{task.Succeeded(action.KindNavigate, "", time.Millisecond)})
	if err := store.SaveTask(ctx, tsk); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetTask(ctx, tsk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCompleted || len(got.Results) != 1 {
		t.Errorf("Expected completed record with 1 result, got %s with %d", got.Status, len(got.Results))
	}

	list, _ := store.ListTasks(ctx, 0)
	if len(list) != 1 {
		t.Errorf("Expected one indexed task after overwrite, got %d", len(list))
	}
}

// TestListTasks tests newest-first listing with a limit
func TestListTasks(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()

	base := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		tsk := sampleTask(fmt.Sprintf("task %d", i))
		tsk.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.SaveTask(ctx, tsk); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tsk.ID)
	}

	all, err := store.ListTasks(ctx, 0)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 tasks, got %d", len(all))
	}
	if all[0].ID != ids[4] || all[4].ID != ids[0] {
		t.Errorf("Expected newest first, got %s ... %s", all[0].ID, all[4].ID)
	}

	limited, err := store.ListTasks(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[0].ID != ids[4] || limited[1].ID != ids[3] {
		t.Errorf("Unexpected limited listing: %d tasks", len(limited))
	}
}

// TestListTasksSkipsExpired tests that expired records drop out of listings
func TestListTasksSkipsExpired(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	old := sampleTask("old")
	if err := store.SaveTask(ctx, old); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Hour)

	fresh := sampleTask("fresh")
	if err := store.SaveTask(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	list, err := store.ListTasks(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("Expected only the fresh task, got %d tasks", len(list))
	}
	if _, err := store.GetTask(ctx, old.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected expired task to be gone, got %v", err)
	}
}

// TestDeleteTask tests removing a task
func TestDeleteTask(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	tsk := sampleTask("go to example.com")
	if err := store.SaveTask(ctx, tsk); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteTask(ctx, tsk.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if mr.Exists(taskStorePrefix + tsk.ID) {
		t.Error("Task data still present")
	}
	if err := store.DeleteTask(ctx, tsk.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound on second delete, got %v", err)
	}
}

// TestRedisStorageConnectionError tests behavior when redis goes away
func TestRedisStorageConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	if err := store.SaveTask(context.Background(), sampleTask("x")); err == nil {
		t.Error("Expected error when redis is down")
	}
	if _, err := store.GetTask(context.Background(), "x"); err == nil || errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected connection error, got %v", err)
	}
}

func TestRedisStorageClose(t *testing.T) {
	store, _ := setupTestRedis(t)
	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

var _ Storage = (*RedisStorage)(nil)
