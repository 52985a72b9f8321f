package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitForStatus(t *testing.T, svc Service, id string, want Status) Info {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, ok := svc.Status(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if info.Status == want {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, _ := svc.Status(id)
	t.Fatalf("job %s stuck in %s, want %s", id, info.Status, want)
	return Info{}
}

func TestEnqueueRunsJob(t *testing.T) {
	svc := NewService(2, 8, zap.NewNop())
	defer svc.Shutdown(context.Background())

	ran := make(chan struct{})
	id, err := svc.Enqueue("test", func(ctx context.Context) error {
		close(ran)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	info := waitForStatus(t, svc, id, StatusDone)
	if info.Error != "" {
		t.Errorf("unexpected job error: %s", info.Error)
	}
	if info.FinishedAt.IsZero() {
		t.Error("expected finished timestamp")
	}
}

func TestJobFailureIsRecorded(t *testing.T) {
	svc := NewService(1, 8, zap.NewNop())
	defer svc.Shutdown(context.Background())

	id, err := svc.Enqueue("failing", func(ctx context.Context) error {
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	info := waitForStatus(t, svc, id, StatusFailed)
	if info.Error != "boom" {
		t.Errorf("job error = %q, want boom", info.Error)
	}
}

func TestJobPanicIsRecovered(t *testing.T) {
	svc := NewService(1, 8, zap.NewNop())
	defer svc.Shutdown(context.Background())

	id, err := svc.Enqueue("panicking", func(ctx context.Context) error {
		panic("kaboom")
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	info := waitForStatus(t, svc, id, StatusFailed)
	if info.Error == "" {
		t.Error("expected panic recorded as error")
	}

	// The worker must survive the panic.
	id2, err := svc.Enqueue("after", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Enqueue after panic failed: %v", err)
	}
	waitForStatus(t, svc, id2, StatusDone)
}

func TestEnqueueQueueFull(t *testing.T) {
	svc := NewService(1, 1, zap.NewNop())
	defer svc.Shutdown(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	block := make(chan struct{})
	if _, err := svc.Enqueue("blocker", func(ctx context.Context) error {
		wg.Done()
		<-block
		return nil
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	wg.Wait()

	// Worker is busy; fill the single queue slot.
	if _, err := svc.Enqueue("queued", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := svc.Enqueue("overflow", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("error = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestEnqueueAfterShutdown(t *testing.T) {
	svc := NewService(1, 1, zap.NewNop())
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := svc.Enqueue("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrShutdown) {
		t.Fatalf("error = %v, want ErrShutdown", err)
	}
}

func TestShutdownWaitsForInflightJobs(t *testing.T) {
	svc := NewService(1, 1, zap.NewNop())

	finished := false
	started := make(chan struct{})
	id, err := svc.Enqueue("slow", func(ctx context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished = true
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	<-started

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !finished {
		t.Error("shutdown returned before the in-flight job finished")
	}
	info, _ := svc.Status(id)
	if info.Status != StatusDone {
		t.Errorf("job status after shutdown = %s, want DONE", info.Status)
	}
}
