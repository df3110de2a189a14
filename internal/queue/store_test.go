package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hillview/internal/capture"
	"hillview/internal/queue"
	"hillview/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewCapture(ctx, testsupport.CaptureParams("capture_1712000000000", capture.ModeSingle))
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", item.Status)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Location.Latitude != item.Location.Latitude {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}
	if len(fetched.ImageData) == 0 {
		t.Fatal("expected image payload to round-trip")
	}
}

func TestNewCaptureEnforcesCapacity(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxQueueSize(3))
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := range 3 {
		id := fmt.Sprintf("capture_%d", 1712000000000+i)
		if _, err := store.NewCapture(ctx, testsupport.CaptureParams(id, capture.ModeFast)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	_, err := store.NewCapture(ctx, testsupport.CaptureParams("capture_1712000009999", capture.ModeFast))
	if !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// Draining one item frees a slot.
	item, err := store.NextReady(ctx, time.Now())
	if err != nil || item == nil {
		t.Fatalf("next ready: item=%v err=%v", item, err)
	}
	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("mark uploading: %v", err)
	}
	if err := store.Complete(ctx, item.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := store.NewCapture(ctx, testsupport.CaptureParams("capture_1712000010000", capture.ModeFast)); err != nil {
		t.Fatalf("expected free slot after completion, got %v", err)
	}
}

func TestNextReadyHonorsBackoffSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now()
	item := testsupport.NewCapture(t, store, "capture_backoff", capture.ModeSlow)

	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("mark uploading: %v", err)
	}
	if err := store.RequeueTransient(ctx, item, "network error", now.Add(time.Hour)); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	ready, err := store.NextReady(ctx, now)
	if err != nil {
		t.Fatalf("next ready: %v", err)
	}
	if ready != nil {
		t.Fatalf("capture parked for retry must not be ready, got %v", ready.ID)
	}

	ready, err = store.NextReady(ctx, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("next ready after delay: %v", err)
	}
	if ready == nil || ready.ID != item.ID {
		t.Fatalf("expected parked capture to become ready, got %v", ready)
	}

	next, ok, err := store.NextRetryAt(ctx)
	if err != nil || !ok {
		t.Fatalf("next retry at: ok=%v err=%v", ok, err)
	}
	if next.Before(now.Add(59 * time.Minute)) {
		t.Fatalf("unexpected retry schedule %v", next)
	}
}

func TestNextReadyReturnsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewCapture(t, store, "capture_1712000000001", capture.ModeFast)
	testsupport.NewCapture(t, store, "capture_1712000000002", capture.ModeFast)

	ready, err := store.NextReady(ctx, time.Now())
	if err != nil {
		t.Fatalf("next ready: %v", err)
	}
	if ready == nil || ready.ID != first.ID {
		t.Fatalf("expected oldest capture first, got %v", ready)
	}
}

func TestMarkUploadingOnlyClaimsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewCapture(t, store, "capture_claim", capture.ModeSingle)

	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if item.Attempts != 1 {
		t.Fatalf("expected attempts bump, got %d", item.Attempts)
	}

	again := *item
	again.Status = queue.StatusPending
	if err := store.MarkUploading(ctx, &again); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected second claim to fail with ErrNotFound, got %v", err)
	}
}

func TestCancelOnlyRemovesPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewCapture(t, store, "capture_cancel", capture.ModeSingle)

	removed, err := store.Cancel(ctx, item.ID)
	if err != nil || !removed {
		t.Fatalf("cancel pending: removed=%v err=%v", removed, err)
	}

	item = testsupport.NewCapture(t, store, "capture_cancel_uploading", capture.ModeSingle)
	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("mark uploading: %v", err)
	}
	removed, err = store.Cancel(ctx, item.ID)
	if err != nil {
		t.Fatalf("cancel uploading: %v", err)
	}
	if removed {
		t.Fatal("uploading captures must not be cancellable")
	}
}

func TestResetStuckUploading(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item := testsupport.NewCapture(t, store, "capture_stuck", capture.ModeSlow)
	if err := store.MarkUploading(ctx, item); err != nil {
		t.Fatalf("mark uploading: %v", err)
	}

	reset, err := store.ResetStuckUploading(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one reset capture, got %d", reset)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.Status != queue.StatusPending {
		t.Fatalf("expected pending after reset, got %s", fetched.Status)
	}
	// Attempt count survives the reset so the limit still applies.
	if fetched.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", fetched.Attempts)
	}
}

func TestLifetimeCountersSurviveTerminalTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	done := testsupport.NewCapture(t, store, "capture_done", capture.ModeSlow)
	dead := testsupport.NewCapture(t, store, "capture_dead", capture.ModeFast)

	if err := store.MarkUploading(ctx, done); err != nil {
		t.Fatal(err)
	}
	if err := store.Complete(ctx, done.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkUploading(ctx, dead); err != nil {
		t.Fatal(err)
	}
	if err := store.Fail(ctx, dead.ID); err != nil {
		t.Fatal(err)
	}

	counters, err := store.Counters(ctx)
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.TotalCaptured != 2 || counters.TotalProcessed != 1 || counters.TotalFailed != 1 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
	if counters.SlowMode != 1 || counters.FastMode != 1 {
		t.Fatalf("unexpected mode counters: %+v", counters)
	}

	// Terminal rows are deleted; only the counters remember them.
	for _, id := range []string{done.ID, dead.ID} {
		item, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if item != nil {
			t.Fatalf("expected %s to be removed, got %+v", id, item)
		}
	}

	// A fresh store handle sees the same counters.
	store.Close()
	reopened := testsupport.MustOpenStore(t, cfg)
	counters, err = reopened.Counters(ctx)
	if err != nil {
		t.Fatalf("counters after reopen: %v", err)
	}
	if counters.TotalProcessed != 1 || counters.TotalFailed != 1 {
		t.Fatalf("expected counters to persist across restarts: %+v", counters)
	}
}

func TestHealthCountsPerStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewCapture(t, store, "capture_a", capture.ModeSingle)
	b := testsupport.NewCapture(t, store, "capture_b", capture.ModeSingle)
	if err := store.MarkUploading(ctx, b); err != nil {
		t.Fatal(err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Pending != 1 || health.Uploading != 1 || health.Active != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
}
