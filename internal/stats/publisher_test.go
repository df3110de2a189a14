package stats_test

import (
	"sync"
	"testing"

	"hillview/internal/capture"
	"hillview/internal/queue"
	"hillview/internal/stats"
)

func TestSubscribeDeliversCurrentSnapshotImmediately(t *testing.T) {
	publisher := stats.NewPublisher(stats.Snapshot{TotalCaptured: 7, Pending: 2})

	var got []stats.Snapshot
	publisher.Subscribe(func(s stats.Snapshot) { got = append(got, s) })

	if len(got) != 1 {
		t.Fatalf("expected immediate delivery, got %d snapshots", len(got))
	}
	if got[0].TotalCaptured != 7 || got[0].Pending != 2 {
		t.Fatalf("unexpected initial snapshot: %+v", got[0])
	}
}

func TestRecordLifecycle(t *testing.T) {
	publisher := stats.NewPublisher(stats.Snapshot{})

	publisher.RecordEnqueued(capture.ModeFast)
	publisher.RecordEnqueued(capture.ModeSlow)
	publisher.RecordEnqueued(capture.ModeSingle)

	snap := publisher.Snapshot()
	if snap.TotalCaptured != 3 || snap.Pending != 3 {
		t.Fatalf("unexpected snapshot after enqueues: %+v", snap)
	}
	if snap.FastMode != 1 || snap.SlowMode != 1 || snap.SingleMode != 1 {
		t.Fatalf("unexpected mode counters: %+v", snap)
	}

	publisher.RecordUploadStarted()
	publisher.RecordProcessed()
	snap = publisher.Snapshot()
	if snap.Pending != 2 || snap.Uploading != 0 || snap.TotalProcessed != 1 {
		t.Fatalf("unexpected snapshot after success: %+v", snap)
	}

	publisher.RecordUploadStarted()
	publisher.RecordRetried()
	snap = publisher.Snapshot()
	if snap.Pending != 2 || snap.Uploading != 0 {
		t.Fatalf("retry must return the capture to pending: %+v", snap)
	}

	publisher.RecordUploadStarted()
	publisher.RecordFailed()
	publisher.RecordCancelled()
	snap = publisher.Snapshot()
	if snap.TotalFailed != 1 || snap.Pending != 0 || snap.Uploading != 0 {
		t.Fatalf("unexpected final snapshot: %+v", snap)
	}
	if snap.Active() != 0 {
		t.Fatalf("expected no active captures, got %d", snap.Active())
	}
}

func TestCountsNeverGoNegative(t *testing.T) {
	publisher := stats.NewPublisher(stats.Snapshot{})

	publisher.RecordUploadStarted()
	publisher.RecordProcessed()
	publisher.RecordCancelled()

	snap := publisher.Snapshot()
	if snap.Pending < 0 || snap.Uploading < 0 {
		t.Fatalf("counts went negative: %+v", snap)
	}
}

func TestSubscribersSeeEveryUpdate(t *testing.T) {
	publisher := stats.NewPublisher(stats.Snapshot{})

	var mu sync.Mutex
	var updates []stats.Snapshot
	publisher.Subscribe(func(s stats.Snapshot) {
		mu.Lock()
		updates = append(updates, s)
		mu.Unlock()
	})

	publisher.RecordEnqueued(capture.ModeSingle)
	publisher.RecordUploadStarted()
	publisher.RecordProcessed()

	mu.Lock()
	defer mu.Unlock()
	if len(updates) != 4 { // initial + three records
		t.Fatalf("expected 4 deliveries, got %d", len(updates))
	}
	last := updates[len(updates)-1]
	if last.TotalProcessed != 1 || last.Active() != 0 {
		t.Fatalf("unexpected final update: %+v", last)
	}
}

func TestSeedFromStore(t *testing.T) {
	counters := queue.Counters{
		TotalCaptured:  10,
		TotalProcessed: 6,
		TotalFailed:    1,
		SlowMode:       4,
		FastMode:       5,
		SingleMode:     1,
	}
	health := queue.HealthSummary{Pending: 2, Uploading: 1, Active: 3}

	snap := stats.SeedFromStore(counters, health)
	if snap.TotalCaptured != 10 || snap.TotalProcessed != 6 || snap.TotalFailed != 1 {
		t.Fatalf("unexpected lifetime counters: %+v", snap)
	}
	if snap.Pending != 2 || snap.Uploading != 1 || snap.Active() != 3 {
		t.Fatalf("unexpected queue counts: %+v", snap)
	}

	publisher := stats.NewPublisher(stats.Snapshot{})
	publisher.Seed(snap)
	if got := publisher.Snapshot(); got != snap {
		t.Fatalf("seed did not replace snapshot: %+v", got)
	}
}
