package daemon_test

import (
	"context"
	"testing"

	"hillview/internal/daemon"
	"hillview/internal/logging"
	"hillview/internal/queue"
	"hillview/internal/testsupport"
	"hillview/internal/upload"
	"hillview/internal/workflow"
)

type stubClient struct{}

func (stubClient) Upload(_ context.Context, item *queue.Item) (upload.PhotoRef, error) {
	return upload.PhotoRef{PhotoID: "photo-" + item.ID}, nil
}

func newDaemon(t *testing.T) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, stubClient{}, logging.NewNop())
	d, err := daemon.New(cfg, store, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if !status.Workflow.Running {
		t.Fatal("expected running workflow")
	}
	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected stopped daemon")
	}
}

func TestDaemonSecondStartFails(t *testing.T) {
	d, _ := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}
}

func TestDaemonQueueHelpers(t *testing.T) {
	d, store := newDaemon(t)
	ctx := context.Background()

	item := testsupport.NewCapture(t, store, "capture_helper", "single")
	items, err := d.ListQueue(ctx, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("expected the enqueued capture, got %v", items)
	}

	removed, err := d.CancelCapture(ctx, item.ID)
	if err != nil || !removed {
		t.Fatalf("cancel: removed=%v err=%v", removed, err)
	}

	health, err := d.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Active != 0 {
		t.Fatalf("expected drained queue, got %+v", health)
	}
}
