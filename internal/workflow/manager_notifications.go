package workflow

import (
	"context"
	"errors"
	"time"

	"hillview/internal/logging"
	"hillview/internal/queue"
)

// maybeStartCycle marks the beginning of a drain cycle the first time
// work appears after an idle period and announces the backlog size.
func (m *Manager) maybeStartCycle(ctx context.Context) {
	m.mu.Lock()
	if m.cycleActive {
		m.mu.Unlock()
		return
	}
	m.cycleActive = true
	m.cycleStart = m.now()
	m.cycleProcessed = 0
	m.cycleFailed = 0
	m.mu.Unlock()

	if m.notifier == nil {
		return
	}
	count, err := m.store.ActiveCount(ctx)
	if err != nil {
		m.logger.Debug("active count unavailable for start notification", logging.Error(err))
		count = 0
	}
	if err := m.notifier.NotifyQueueStarted(ctx, count); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutting down, could not send queue start notification")
		} else {
			m.logger.Debug("queue start notification failed", logging.Error(err))
		}
	}
}

// maybeFinishCycle closes the drain cycle once the queue holds no more
// ready work and reports what the cycle accomplished.
func (m *Manager) maybeFinishCycle(ctx context.Context) {
	m.mu.Lock()
	if !m.cycleActive {
		m.mu.Unlock()
		return
	}
	// Items parked on a retry timer keep the cycle open.
	m.mu.Unlock()
	active, err := m.store.ActiveCount(ctx)
	if err != nil || active > 0 {
		return
	}

	m.mu.Lock()
	m.cycleActive = false
	processed := m.cycleProcessed
	failed := m.cycleFailed
	duration := m.now().Sub(m.cycleStart)
	m.mu.Unlock()

	m.logger.Info("queue drained",
		logging.Int("processed", processed),
		logging.Int("failed", failed),
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "queue_drained"),
	)
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyQueueDrained(ctx, processed, failed, duration); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("shutting down, could not send queue drained notification")
		} else {
			m.logger.Debug("queue drained notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) notifyUploadFailed(ctx context.Context, item *queue.Item, uploadErr error) {
	if m.notifier == nil || uploadErr == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := m.notifier.NotifyUploadFailed(notifyCtx, item.ID, uploadErr.Error()); err != nil {
		m.logger.Debug("upload failure notification failed", logging.Error(err))
	}
}
