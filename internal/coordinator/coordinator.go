package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"hillview/internal/capture"
	"hillview/internal/logging"
	"hillview/internal/placeholder"
	"hillview/internal/queue"
	"hillview/internal/upload"
	"hillview/internal/workflow"
)

// ErrMissingLocation is returned when a capture is attempted without a
// usable position fix. Nothing is enqueued and no placeholder appears.
var ErrMissingLocation = errors.New("capture requires a location fix")

// Enqueuer is the slice of the workflow manager the coordinator needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, params queue.NewCaptureParams) (*queue.Item, error)
}

// Coordinator turns a frame plus a location into a queued capture with
// a visible placeholder.
type Coordinator struct {
	registry *placeholder.Registry
	enqueuer Enqueuer
	ids      *capture.IDGenerator
	logger   *slog.Logger
}

// New constructs a coordinator writing placeholders into registry and
// captures into the enqueuer.
func New(registry *placeholder.Registry, enqueuer Enqueuer, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		registry: registry,
		enqueuer: enqueuer,
		ids:      capture.NewIDGenerator(),
		logger:   logging.NewComponentLogger(logger, "capture-coordinator"),
	}
}

// BindQueueObservers wires the manager's terminal transitions back to
// the placeholder registry: successful uploads remove their marker,
// permanent failures flip it to the error state. Call before
// manager.Start.
func (c *Coordinator) BindQueueObservers(manager *workflow.Manager) {
	manager.OnItemSucceeded(func(item *queue.Item, _ upload.PhotoRef) {
		c.registry.Remove(item.PlaceholderID)
	})
	manager.OnItemFailed(func(item *queue.Item, _ string) {
		c.registry.MarkError(item.PlaceholderID)
	})
}

// Capture validates the fix, injects the placeholder, and enqueues the
// frame. The placeholder is visible before Capture returns, so the UI
// shows the marker the moment the shutter closes. On queue rejection
// the placeholder flips to error and the queue error is returned.
func (c *Coordinator) Capture(ctx context.Context, frame []byte, mode capture.Mode, loc capture.Location) (string, error) {
	if !loc.Valid() {
		return "", ErrMissingLocation
	}
	normalized := loc.Normalized()
	id := c.ids.Next()

	c.registry.Inject(normalized, id)

	capturedAt := int64(0)
	if ts, ok := capture.CaptureTime(id); ok {
		capturedAt = ts.UnixMilli()
	}
	_, err := c.enqueuer.Enqueue(ctx, queue.NewCaptureParams{
		ID:            id,
		PlaceholderID: id,
		ImageData:     frame,
		Location:      normalized,
		CapturedAt:    capturedAt,
		Mode:          mode,
	})
	if err != nil {
		c.registry.MarkError(id)
		c.logger.Warn("capture enqueue failed",
			logging.Error(err),
			logging.String(logging.FieldCaptureID, id),
			logging.String(logging.FieldMode, string(mode)),
			logging.String(logging.FieldEventType, "capture_rejected"),
		)
		return "", err
	}
	return id, nil
}
