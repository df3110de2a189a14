package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hillview/internal/logging"
	"hillview/internal/queue"
	"hillview/internal/services"
	"hillview/internal/stats"
	"hillview/internal/upload"
)

// Start begins background processing. Captures stranded in uploading by
// a previous crash are returned to pending before the loop begins.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if reset, err := m.store.ResetStuckUploading(runCtx); err != nil {
		m.logger.Warn("reset of interrupted uploads failed; stuck items may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "upload_reset_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	} else if reset > 0 {
		m.logger.Info("returned interrupted uploads to pending",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "uploads_reset"),
		)
	}
	m.seedStats(runCtx)

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) seedStats(ctx context.Context) {
	counters, err := m.store.Counters(ctx)
	if err != nil {
		m.logger.Warn("lifetime counters unavailable; statistics start from zero",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stats_seed_failed"),
		)
		return
	}
	health, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("queue health unavailable; statistics start from zero",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stats_seed_failed"),
		)
		return
	}
	m.stats.Seed(stats.SeedFromStore(counters, health))
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := m.store.NextReady(ctx, m.now())
		if err != nil {
			m.handleFetchError(ctx, err)
			continue
		}
		if item == nil {
			m.maybeFinishCycle(ctx)
			m.waitForWork(ctx)
			continue
		}

		m.maybeStartCycle(ctx)
		if err := m.processItem(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
		}
	}
}

func (m *Manager) handleFetchError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	retryInterval := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(retryInterval):
	}
}

// waitForWork parks the loop until a new capture arrives, a scheduled
// retry comes due, or the poll interval elapses.
func (m *Manager) waitForWork(ctx context.Context) {
	wait := m.pollInterval
	if next, ok, err := m.store.NextRetryAt(ctx); err == nil && ok {
		if until := next.Sub(m.now()); until > 0 && until < wait {
			wait = until
		}
	}
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(wait):
	}
}

// processItem runs one upload attempt for the claimed capture.
func (m *Manager) processItem(ctx context.Context, item *queue.Item) error {
	if err := m.store.MarkUploading(ctx, item); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			// Cancelled between fetch and claim.
			return nil
		}
		return err
	}
	m.stats.RecordUploadStarted()
	m.setLastItem(item)

	logger := m.logger.With(
		logging.String(logging.FieldCaptureID, item.ID),
		logging.Int(logging.FieldAttempt, item.Attempts),
	)
	logger.Info("upload attempt started",
		logging.String(logging.FieldMode, string(item.Mode)),
		logging.String(logging.FieldEventType, "upload_started"),
	)

	ref, err := m.attemptUpload(ctx, item)
	if err == nil {
		return m.finishSuccess(ctx, logger, item, ref)
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Shutdown mid-attempt; leave the item uploading so the next
		// start resets it to pending.
		return context.Canceled
	}
	return m.finishFailure(ctx, logger, item, err)
}

func (m *Manager) attemptUpload(ctx context.Context, item *queue.Item) (upload.PhotoRef, error) {
	timeout := time.Duration(m.cfg.Upload.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return m.client.Upload(attemptCtx, item)
}

func (m *Manager) finishSuccess(ctx context.Context, logger *slog.Logger, item *queue.Item, ref upload.PhotoRef) error {
	if err := m.store.Complete(ctx, item.ID); err != nil {
		return err
	}
	m.stats.RecordProcessed()
	m.mu.Lock()
	m.cycleProcessed++
	succeeded := make([]SucceededFunc, len(m.onSucceeded))
	copy(succeeded, m.onSucceeded)
	m.mu.Unlock()

	logger.Info("upload completed",
		logging.String("photo_id", ref.PhotoID),
		logging.String(logging.FieldEventType, "upload_completed"),
	)
	for _, fn := range succeeded {
		fn(item, ref)
	}
	return nil
}

func (m *Manager) finishFailure(ctx context.Context, logger *slog.Logger, item *queue.Item, uploadErr error) error {
	retryable := services.Retryable(uploadErr) || m.cfg.Upload.UniformRetries
	exhausted := item.Attempts >= m.cfg.Capture.MaxAttempts

	if retryable && !exhausted {
		delay := m.backoffDelay(item.Attempts)
		nextAttempt := m.now().Add(delay)
		if err := m.store.RequeueTransient(ctx, item, uploadErr.Error(), nextAttempt); err != nil {
			return err
		}
		m.stats.RecordRetried()
		logger.Warn("upload failed, retry scheduled",
			logging.Error(uploadErr),
			logging.String("error_kind", services.Kind(uploadErr)),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldEventType, "upload_retry_scheduled"),
		)
		return nil
	}

	if err := m.store.Fail(ctx, item.ID); err != nil {
		return err
	}
	m.stats.RecordFailed()
	m.mu.Lock()
	m.cycleFailed++
	failed := make([]FailedFunc, len(m.onFailed))
	copy(failed, m.onFailed)
	m.mu.Unlock()

	reason := "non-retryable error"
	if exhausted {
		reason = "attempt limit reached"
	}
	logger.Error("upload failed permanently",
		logging.Error(uploadErr),
		logging.String("error_kind", services.Kind(uploadErr)),
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "upload_failed"),
	)
	for _, fn := range failed {
		fn(item, uploadErr.Error())
	}
	m.notifyUploadFailed(ctx, item, uploadErr)
	return nil
}
