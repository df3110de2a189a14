package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"hillview/internal/config"
	"hillview/internal/logging"
	"hillview/internal/notifications"
	"hillview/internal/queue"
	"hillview/internal/stats"
	"hillview/internal/upload"
)

// SucceededFunc observes a capture leaving the queue after a successful
// upload. ref carries the backend's identifiers for the photo.
type SucceededFunc func(item *queue.Item, ref upload.PhotoRef)

// FailedFunc observes a capture leaving the queue permanently.
type FailedFunc func(item *queue.Item, message string)

// Manager owns the background upload loop over the capture queue.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	client   upload.Client
	logger   *slog.Logger
	notifier notifications.Service
	stats    *stats.Publisher

	pollInterval time.Duration
	wake         chan struct{}
	now          func() time.Time
	jitter       func() float64

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item

	onSucceeded []SucceededFunc
	onFailed    []FailedFunc

	cycleActive    bool
	cycleStart     time.Time
	cycleProcessed int
	cycleFailed    int
}

// NewManager constructs a workflow manager with the default notifier.
func NewManager(cfg *config.Config, store *queue.Store, client upload.Client, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, client, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom
// notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, client upload.Client, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		client:       client,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:     notifier,
		stats:        stats.NewPublisher(stats.Snapshot{}),
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
		now:          time.Now,
		jitter:       rand.Float64,
	}
}

// Stats exposes the statistics publisher for UI subscriptions.
func (m *Manager) Stats() *stats.Publisher {
	return m.stats
}

// OnItemSucceeded registers an observer for successful uploads.
// Observers must be registered before Start.
func (m *Manager) OnItemSucceeded(fn SucceededFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSucceeded = append(m.onSucceeded, fn)
}

// OnItemFailed registers an observer for permanent upload failures.
// Observers must be registered before Start.
func (m *Manager) OnItemFailed(fn FailedFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = append(m.onFailed, fn)
}

// Enqueue persists a new capture and wakes the upload loop. The call
// fails with queue.ErrQueueFull when the queue is at capacity.
func (m *Manager) Enqueue(ctx context.Context, params queue.NewCaptureParams) (*queue.Item, error) {
	item, err := m.store.NewCapture(ctx, params)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			m.logger.Warn("capture rejected, queue at capacity",
				logging.String(logging.FieldCaptureID, params.ID),
				logging.String(logging.FieldEventType, "queue_full"),
				logging.String(logging.FieldErrorHint, "wait for uploads to drain or raise max_queue_size"),
			)
		}
		return nil, err
	}
	m.stats.RecordEnqueued(item.Mode)
	m.logger.Info("capture enqueued",
		logging.String(logging.FieldCaptureID, item.ID),
		logging.String(logging.FieldMode, string(item.Mode)),
		logging.String(logging.FieldEventType, "capture_enqueued"),
	)
	m.Wake()
	return item, nil
}

// Cancel removes a pending capture before any upload attempt claims it.
// Returns false when the capture is unknown or already uploading.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	removed, err := m.store.Cancel(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		m.stats.RecordCancelled()
		m.logger.Info("capture cancelled",
			logging.String(logging.FieldCaptureID, id),
			logging.String(logging.FieldEventType, "capture_cancelled"),
		)
	}
	return removed, nil
}

// Wake nudges the upload loop out of its poll sleep.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// StatusSummary is a point-in-time view of the manager for status
// output.
type StatusSummary struct {
	Running       bool
	Stats         stats.Snapshot
	Health        queue.HealthSummary
	NextRetryAt   time.Time
	LastError     string
	LastCaptureID string
}

// Status reports the manager's current state.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		summary.LastCaptureID = m.lastItem.ID
	}
	m.mu.RUnlock()

	summary.Stats = m.stats.Snapshot()
	if health, err := m.store.Health(ctx); err == nil {
		summary.Health = health
	}
	if next, ok, err := m.store.NextRetryAt(ctx); err == nil && ok {
		summary.NextRetryAt = next
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

func (m *Manager) setLastItem(item *queue.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastItem = item
}

// backoffDelay computes the retry delay after the given attempt count,
// growing linearly to a cap with a small jitter so parked retries do
// not thunder together.
func (m *Manager) backoffDelay(attempts int) time.Duration {
	base := time.Duration(m.cfg.Capture.RetryBaseDelayMS) * time.Millisecond
	maxDelay := time.Duration(m.cfg.Capture.RetryMaxDelayMS) * time.Millisecond
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	if attempts < 1 {
		attempts = 1
	}
	delay := base * time.Duration(attempts)
	if delay > maxDelay {
		delay = maxDelay
	}
	// ±10% jitter
	factor := 0.9 + 0.2*m.jitter()
	return time.Duration(float64(delay) * factor)
}
