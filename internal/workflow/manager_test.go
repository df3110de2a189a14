package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hillview/internal/capture"
	"hillview/internal/logging"
	"hillview/internal/queue"
	"hillview/internal/services"
	"hillview/internal/testsupport"
	"hillview/internal/upload"
	"hillview/internal/workflow"
)

type fakeClient struct {
	mu        sync.Mutex
	responses []error
	calls     int
}

func (f *fakeClient) Upload(ctx context.Context, item *queue.Item) (upload.PhotoRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.responses) && f.responses[idx] != nil {
		return upload.PhotoRef{}, f.responses[idx]
	}
	return upload.PhotoRef{PhotoID: "photo-" + item.ID, Filename: item.ID + ".jpg", ProcessingStatus: "completed"}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForSignal(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected signal for %q, got %q", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestManagerUploadsAndReleasesCapture(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	succeeded := make(chan string, 1)
	manager.OnItemSucceeded(func(item *queue.Item, ref upload.PhotoRef) {
		if ref.PhotoID == "" {
			t.Errorf("expected photo ref for %s", item.ID)
		}
		succeeded <- item.ID
	})

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_1", capture.ModeSingle))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForSignal(t, succeeded, item.ID)

	if got, err := store.GetByID(ctx, item.ID); err != nil || got != nil {
		t.Fatalf("expected completed capture to leave the queue, got %v (err %v)", got, err)
	}
	snapshot := manager.Stats().Snapshot()
	if snapshot.TotalProcessed != 1 || snapshot.TotalCaptured != 1 {
		t.Fatalf("unexpected stats: %+v", snapshot)
	}
	status := manager.Status(ctx)
	if !status.Running || status.LastCaptureID != item.ID {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestManagerRetriesTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{responses: []error{
		services.Wrap(services.ErrNetwork, "upload-client", "upload", "post photo", errors.New("connection refused")),
		services.Wrap(services.ErrServer, "upload-client", "upload", "backend returned 503", nil),
	}}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	succeeded := make(chan string, 1)
	manager.OnItemSucceeded(func(item *queue.Item, _ upload.PhotoRef) { succeeded <- item.ID })

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_retry", capture.ModeSlow))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForSignal(t, succeeded, item.ID)

	if calls := client.callCount(); calls != 3 {
		t.Fatalf("expected 3 attempts (network, server, success), got %d", calls)
	}
	snapshot := manager.Stats().Snapshot()
	if snapshot.TotalProcessed != 1 || snapshot.TotalFailed != 0 {
		t.Fatalf("unexpected stats after retries: %+v", snapshot)
	}
}

func TestManagerFailsPermanentlyOnClientError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{responses: []error{
		services.Wrap(services.ErrClient, "upload-client", "upload", "backend rejected upload with 422", nil),
	}}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	failed := make(chan string, 1)
	manager.OnItemFailed(func(item *queue.Item, message string) {
		if message == "" {
			t.Error("expected a failure message")
		}
		failed <- item.ID
	})

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_bad", capture.ModeSingle))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForSignal(t, failed, item.ID)

	if calls := client.callCount(); calls != 1 {
		t.Fatalf("client errors must not be retried, got %d attempts", calls)
	}
	if got, err := store.GetByID(ctx, item.ID); err != nil || got != nil {
		t.Fatalf("expected failed capture to leave the queue, got %v (err %v)", got, err)
	}
	snapshot := manager.Stats().Snapshot()
	if snapshot.TotalFailed != 1 {
		t.Fatalf("unexpected stats after permanent failure: %+v", snapshot)
	}
}

func TestManagerRetriesClientErrorWithUniformRetries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(2))
	cfg.Upload.UniformRetries = true
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{responses: []error{
		services.Wrap(services.ErrClient, "upload-client", "upload", "backend rejected upload with 422", nil),
		services.Wrap(services.ErrClient, "upload-client", "upload", "backend rejected upload with 422", nil),
	}}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	failed := make(chan string, 1)
	manager.OnItemFailed(func(item *queue.Item, _ string) { failed <- item.ID })

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_uniform", capture.ModeFast))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForSignal(t, failed, item.ID)

	if calls := client.callCount(); calls != 2 {
		t.Fatalf("expected the attempt limit to bound uniform retries, got %d attempts", calls)
	}
}

func TestManagerExhaustsAttemptLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	transient := services.Wrap(services.ErrNetwork, "upload-client", "upload", "post photo", errors.New("timeout"))
	client := &fakeClient{responses: []error{transient, transient, transient}}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	failed := make(chan string, 1)
	manager.OnItemFailed(func(item *queue.Item, _ string) { failed <- item.ID })

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_exhaust", capture.ModeSlow))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForSignal(t, failed, item.ID)

	if calls := client.callCount(); calls != 3 {
		t.Fatalf("expected exactly max_attempts attempts, got %d", calls)
	}
	snapshot := manager.Stats().Snapshot()
	if snapshot.TotalFailed != 1 || snapshot.TotalProcessed != 0 {
		t.Fatalf("unexpected stats after exhaustion: %+v", snapshot)
	}
}

func TestManagerResetsInterruptedUploadsOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewCapture(t, store, "capture_stuck", capture.ModeSingle)
	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("mark uploading: %v", err)
	}

	client := &fakeClient{}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())

	succeeded := make(chan string, 1)
	manager.OnItemSucceeded(func(it *queue.Item, _ upload.PhotoRef) { succeeded <- it.ID })

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	waitForSignal(t, succeeded, item.ID)
}

func TestManagerCancelRemovesPendingCapture(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := &fakeClient{}
	manager := workflow.NewManager(cfg, store, client, logging.NewNop())
	ctx := context.Background()

	// Not started, so the capture stays pending until cancelled.
	item, err := manager.Enqueue(ctx, testsupport.CaptureParams("capture_cancel", capture.ModeSingle))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	removed, err := manager.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !removed {
		t.Fatal("expected pending capture to be cancellable")
	}

	removed, err = manager.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if removed {
		t.Fatal("expected second cancel to be a no-op")
	}
	if got, err := store.GetByID(ctx, item.ID); err != nil || got != nil {
		t.Fatalf("expected cancelled capture to leave the queue, got %v (err %v)", got, err)
	}
}
