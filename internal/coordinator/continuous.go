package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hillview/internal/capture"
	"hillview/internal/config"
	"hillview/internal/logging"
	"hillview/internal/queue"
)

// FrameSource produces the next camera frame as encoded JPEG bytes.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// LocationProvider reports the device's current position fix.
type LocationProvider interface {
	Current(ctx context.Context) (capture.Location, error)
}

// Runner fires captures on a fixed cadence while continuous mode is
// active. A tick is skipped while the previous capture is still in
// flight and younger than the guard window; an older in-flight capture
// is assumed stalled and no longer blocks the cadence.
type Runner struct {
	coord     *Coordinator
	frames    FrameSource
	locations LocationProvider
	logger    *slog.Logger

	slowInterval time.Duration
	fastInterval time.Duration
	guardWindow  time.Duration
	now          func() time.Time

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mode      capture.Mode
	inFlight  int
	lastStart time.Time
	skipped   uint64
}

// NewRunner builds a continuous-capture runner from configuration.
func NewRunner(cfg *config.Config, coord *Coordinator, frames FrameSource, locations LocationProvider, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		coord:        coord,
		frames:       frames,
		locations:    locations,
		logger:       logging.NewComponentLogger(logger, "continuous-capture"),
		slowInterval: millis(cfg.Capture.SlowIntervalMS, 1000*time.Millisecond),
		fastInterval: millis(cfg.Capture.FastIntervalMS, 100*time.Millisecond),
		guardWindow:  millis(cfg.Capture.GuardWindowMS, 2*time.Second),
		now:          time.Now,
	}
}

func millis(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Millisecond
}

// Start begins ticking in the given continuous mode.
func (r *Runner) Start(ctx context.Context, mode capture.Mode) error {
	if !mode.Continuous() {
		return errors.New("continuous capture requires slow or fast mode")
	}
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("continuous capture already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running = true
	r.cancel = cancel
	r.mode = mode
	r.inFlight = 0
	r.skipped = 0
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("continuous capture started",
		logging.String(logging.FieldMode, string(mode)),
		logging.Duration("interval", r.interval(mode)),
	)
	go r.run(runCtx)
	return nil
}

// Stop halts the cadence and waits for the loop to exit. An in-flight
// capture finishes on its own; its queue item is already safe.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// SetMode switches the cadence between slow and fast without
// restarting. The new interval applies from the next tick.
func (r *Runner) SetMode(mode capture.Mode) error {
	if !mode.Continuous() {
		return errors.New("continuous capture requires slow or fast mode")
	}
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
	return nil
}

// Running reports whether the cadence is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Skipped returns the number of ticks dropped by the guard window.
func (r *Runner) Skipped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

func (r *Runner) interval(mode capture.Mode) time.Duration {
	if mode == capture.ModeFast {
		return r.fastInterval
	}
	return r.slowInterval
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		interval := r.interval(r.mode)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		r.tick(ctx)
	}
}

func (r *Runner) tick(ctx context.Context) {
	r.mu.Lock()
	mode := r.mode
	if r.inFlight > 0 && r.now().Sub(r.lastStart) < r.guardWindow {
		r.skipped++
		r.mu.Unlock()
		r.logger.Debug("tick skipped, capture in flight",
			logging.String(logging.FieldEventType, "tick_skipped"),
		)
		return
	}
	r.inFlight++
	r.lastStart = r.now()
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			r.inFlight--
			r.mu.Unlock()
		}()
		r.captureOnce(ctx, mode)
	}()
}

func (r *Runner) captureOnce(ctx context.Context, mode capture.Mode) {
	loc, err := r.locations.Current(ctx)
	if err != nil {
		r.logger.Warn("location unavailable, tick dropped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "location_unavailable"),
		)
		return
	}
	frame, err := r.frames.Frame(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("frame acquisition failed, tick dropped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "frame_failed"),
		)
		return
	}
	if _, err := r.coord.Capture(ctx, frame, mode, loc); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
		case errors.Is(err, queue.ErrQueueFull):
			// Already logged by the coordinator; the cadence keeps
			// running so captures resume once the queue drains.
		case errors.Is(err, ErrMissingLocation):
			r.logger.Warn("fix lost between tick and capture",
				logging.String(logging.FieldEventType, "location_unavailable"),
			)
		default:
			r.logger.Warn("continuous capture failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "capture_failed"),
			)
		}
	}
}
