package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gpiradze/webharvest/internal/clock"
	"github.com/gpiradze/webharvest/internal/pipeline"
)

// PendingSource supplies the current pending task set at flush time. The
// frontier implements it.
type PendingSource interface {
	Snapshot() []pipeline.Task
}

// TrackerConfig controls flush cadence: a snapshot is written after every
// FlushCount completions/failures or FlushInterval elapsed, whichever comes
// first. Not flushing per task trades a little re-work after a crash for
// much less I/O.
type TrackerConfig struct {
	FlushCount    int
	FlushInterval time.Duration
}

// Tracker accumulates step progress in memory and flushes snapshots to a
// Store at the configured cadence. Methods are called by multiple workers;
// the internal lock serializes mutation.
type Tracker struct {
	store   Store
	pending PendingSource
	cfg     TrackerConfig
	clock   clock.Clock

	mu         sync.Mutex
	snap       Snapshot
	completed  map[string]struct{}
	sinceFlush int
	lastFlush  time.Time
}

// NewTracker builds a tracker seeded from a prior snapshot (or an empty one).
func NewTracker(store Store, pending PendingSource, base Snapshot, cfg TrackerConfig, clk clock.Clock) *Tracker {
	if cfg.FlushCount <= 0 {
		cfg.FlushCount = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 60 * time.Second
	}
	t := &Tracker{
		store:     store,
		pending:   pending,
		cfg:       cfg,
		clock:     clk,
		snap:      base,
		completed: base.CompletedSet(),
		lastFlush: clk.Now(),
	}
	return t
}

// Complete records a task as done and flushes when the cadence is due.
func (t *Tracker) Complete(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.completed[key]; ok {
		return nil
	}
	t.completed[key] = struct{}{}
	t.snap.Completed = append(t.snap.Completed, key)
	t.sinceFlush++
	return t.maybeFlushLocked(ctx)
}

// Fail records a terminal failure and flushes when the cadence is due.
func (t *Tracker) Fail(ctx context.Context, key, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Failed = append(t.snap.Failed, Failure{Key: key, Reason: reason})
	t.sinceFlush++
	return t.maybeFlushLocked(ctx)
}

// Flush writes a snapshot unconditionally. Called on stop signals so no
// progress is reported without being durable first.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(ctx)
}

// Finalize marks the snapshot complete once the frontier is exhausted and
// writes it a final time.
func (t *Tracker) Finalize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Finalized = true
	return t.flushLocked(ctx)
}

// Summary reports current counts.
func (t *Tracker) Summary() pipeline.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pipeline.Summary{
		Succeeded: len(t.completed),
		Failed:    len(t.snap.Failed),
		Pending:   len(t.pending.Snapshot()),
	}
}

func (t *Tracker) maybeFlushLocked(ctx context.Context) error {
	if t.sinceFlush < t.cfg.FlushCount && t.clock.Now().Sub(t.lastFlush) < t.cfg.FlushInterval {
		return nil
	}
	return t.flushLocked(ctx)
}

func (t *Tracker) flushLocked(ctx context.Context) error {
	t.snap.Pending = t.pending.Snapshot()
	t.snap.SavedAt = t.clock.Now()
	t.snap.Version++
	if err := t.store.Save(ctx, t.snap); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", t.snap.StepID, err)
	}
	t.sinceFlush = 0
	t.lastFlush = t.snap.SavedAt
	return nil
}
