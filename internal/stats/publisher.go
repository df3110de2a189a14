package stats

import (
	"sync"

	"hillview/internal/capture"
	"hillview/internal/queue"
)

// Snapshot is a point-in-time view of queue statistics. Lifetime
// counters are monotonic; the queued counts track items currently held
// by the store.
type Snapshot struct {
	TotalCaptured  uint64
	TotalProcessed uint64
	TotalFailed    uint64
	SlowMode       uint64
	FastMode       uint64
	SingleMode     uint64
	Pending        int
	Uploading      int
}

// Active returns the number of items still occupying queue capacity.
func (s Snapshot) Active() int {
	return s.Pending + s.Uploading
}

// Publisher tracks queue statistics and pushes snapshots to
// subscribers on every change.
type Publisher struct {
	mu      sync.Mutex
	current Snapshot
	subs    []func(Snapshot)
}

// NewPublisher returns a publisher starting from the provided
// snapshot, normally seeded from the store's persisted counters.
func NewPublisher(seed Snapshot) *Publisher {
	return &Publisher{current: seed}
}

// SeedFromStore builds the startup snapshot from persisted lifetime
// counters and the current queue contents.
func SeedFromStore(counters queue.Counters, health queue.HealthSummary) Snapshot {
	return Snapshot{
		TotalCaptured:  counters.TotalCaptured,
		TotalProcessed: counters.TotalProcessed,
		TotalFailed:    counters.TotalFailed,
		SlowMode:       counters.SlowMode,
		FastMode:       counters.FastMode,
		SingleMode:     counters.SingleMode,
		Pending:        health.Pending,
		Uploading:      health.Uploading,
	}
}

// Seed replaces the current snapshot wholesale, typically once at
// startup after reading persisted counters. Subscribers are notified.
func (p *Publisher) Seed(snapshot Snapshot) {
	p.update(func(s *Snapshot) { *s = snapshot })
}

// Snapshot returns a copy of the current statistics.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe registers fn to receive every future snapshot. The current
// snapshot is delivered immediately so subscribers never start blank.
func (p *Publisher) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	current := p.current
	p.mu.Unlock()
	fn(current)
}

// RecordEnqueued notes a capture accepted into the queue.
func (p *Publisher) RecordEnqueued(mode capture.Mode) {
	p.update(func(s *Snapshot) {
		s.TotalCaptured++
		s.Pending++
		switch mode {
		case capture.ModeSlow:
			s.SlowMode++
		case capture.ModeFast:
			s.FastMode++
		default:
			s.SingleMode++
		}
	})
}

// RecordUploadStarted notes a pending capture claimed for upload.
func (p *Publisher) RecordUploadStarted() {
	p.update(func(s *Snapshot) {
		if s.Pending > 0 {
			s.Pending--
		}
		s.Uploading++
	})
}

// RecordRetried notes an upload attempt that failed transiently and
// returned its capture to the pending set.
func (p *Publisher) RecordRetried() {
	p.update(func(s *Snapshot) {
		if s.Uploading > 0 {
			s.Uploading--
		}
		s.Pending++
	})
}

// RecordProcessed notes a capture uploaded successfully and released.
func (p *Publisher) RecordProcessed() {
	p.update(func(s *Snapshot) {
		s.TotalProcessed++
		if s.Uploading > 0 {
			s.Uploading--
		}
	})
}

// RecordFailed notes a capture failed permanently and released.
func (p *Publisher) RecordFailed() {
	p.update(func(s *Snapshot) {
		s.TotalFailed++
		if s.Uploading > 0 {
			s.Uploading--
		}
	})
}

// RecordCancelled notes a pending capture removed before any upload.
func (p *Publisher) RecordCancelled() {
	p.update(func(s *Snapshot) {
		if s.Pending > 0 {
			s.Pending--
		}
	})
}

func (p *Publisher) update(mutate func(*Snapshot)) {
	p.mu.Lock()
	mutate(&p.current)
	current := p.current
	subs := make([]func(Snapshot), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(current)
	}
}
