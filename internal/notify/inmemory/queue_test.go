package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spendwise/moneytalk/internal/notify"
)

// waitForStatus polls the store until the job reaches a terminal status.
func waitForStatus(t *testing.T, store *Store, jobID string, want notify.JobStatus) *notify.SummaryJob {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestQueue_DeliversJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	var mu sync.Mutex
	var delivered []string

	handler := func(ctx context.Context, job *notify.SummaryJob) error {
		mu.Lock()
		delivered = append(delivered, job.PhoneNumber+": "+job.Body)
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &notify.SummaryJob{PhoneNumber: "+15551234567", Body: "Total spent: $52.50"}
	if err := queue.PublishSummary(ctx, job); err != nil {
		t.Fatalf("PublishSummary failed: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, notify.JobStatusSent)
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set on sent job")
	}
	if done.Error != "" {
		t.Errorf("Error = %q, want empty", done.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != "+15551234567: Total spent: $52.50" {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestQueue_FailureIsRecordedNotRetried(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	var mu sync.Mutex
	attempts := 0

	handler := func(ctx context.Context, job *notify.SummaryJob) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("provider rejected message")
	}

	ctx := context.Background()
	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job := &notify.SummaryJob{PhoneNumber: "+15551234567", Body: "hello"}
	if err := queue.PublishSummary(ctx, job); err != nil {
		t.Fatalf("PublishSummary failed: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, notify.JobStatusFailed)
	if failed.Error != "provider rejected message" {
		t.Errorf("Error = %q, want provider error recorded", failed.Error)
	}

	// Give a would-be retry time to happen, then confirm there was none.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (best-effort, no redelivery)", attempts)
	}
}

func TestQueue_PublishAfterCloseFails(t *testing.T) {
	queue := NewQueue(10, 1, NewStore())
	queue.Close()

	err := queue.PublishSummary(context.Background(), &notify.SummaryJob{PhoneNumber: "+15551234567"})
	if err == nil {
		t.Error("PublishSummary after Close should fail")
	}
}

func TestStore_ListJobsFiltersByStatus(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	store.SaveJob(ctx, &notify.SummaryJob{JobID: "a", Status: notify.JobStatusSent, CreatedAt: time.Now()})
	store.SaveJob(ctx, &notify.SummaryJob{JobID: "b", Status: notify.JobStatusFailed, CreatedAt: time.Now().Add(time.Second)})
	store.SaveJob(ctx, &notify.SummaryJob{JobID: "c", Status: notify.JobStatusFailed, CreatedAt: time.Now().Add(2 * time.Second)})

	failed, err := store.ListJobs(ctx, notify.JobStatusFailed)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("len = %d, want 2", len(failed))
	}
	if failed[0].JobID != "c" {
		t.Errorf("expected newest first, got %s", failed[0].JobID)
	}

	all, _ := store.ListJobs(ctx, "")
	if len(all) != 3 {
		t.Errorf("unfiltered len = %d, want 3", len(all))
	}
}

func TestStore_SaveJobRequiresID(t *testing.T) {
	store := NewStore()
	if err := store.SaveJob(context.Background(), &notify.SummaryJob{}); err == nil {
		t.Error("SaveJob without ID should fail")
	}
}
