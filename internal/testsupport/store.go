package testsupport

import (
	"context"
	"testing"
	"time"

	"hillview/internal/capture"
	"hillview/internal/config"
	"hillview/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewCapture enqueues a capture item for tests using the provided store.
func NewCapture(t testing.TB, store *queue.Store, id string, mode capture.Mode) *queue.Item {
	t.Helper()

	item, err := store.NewCapture(context.Background(), CaptureParams(id, mode))
	if err != nil {
		t.Fatalf("store.NewCapture: %v", err)
	}
	return item
}

// CaptureParams builds valid enqueue parameters around a tiny JPEG
// payload and a fixed Berlin location.
func CaptureParams(id string, mode capture.Mode) queue.NewCaptureParams {
	return queue.NewCaptureParams{
		ID:            id,
		PlaceholderID: id,
		ImageData:     TinyJPEG(),
		Location: capture.Location{
			Latitude:  52.520008,
			Longitude: 13.404954,
			Accuracy:  5.0,
			Source:    capture.SourceGPS,
		},
		CapturedAt: time.Now().UnixMilli(),
		Mode:       mode,
	}
}
