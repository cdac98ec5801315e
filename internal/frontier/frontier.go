// Package frontier implements the deduplicated, eligibility-ordered work
// queue feeding a pipeline step.
package frontier

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

// Stats is a point-in-time view of frontier occupancy.
type Stats struct {
	Pending  int
	InFlight int
	Seen     int
}

// Frontier is a set-backed delay queue. Pushing a key that was ever seen
// (pending, in flight, completed, or terminally failed) is a no-op, which
// enforces at-most-once discovery across the step's lifetime, including
// restarts when the frontier is seeded from a checkpoint. All methods are
// safe for concurrent use.
type Frontier struct {
	mu       sync.Mutex
	pending  taskHeap
	seen     map[string]struct{}
	inflight map[string]pipeline.Task
	seq      uint64
}

// New returns an empty frontier.
func New() *Frontier {
	return &Frontier{
		seen:     make(map[string]struct{}),
		inflight: make(map[string]pipeline.Task),
	}
}

// MarkSeen registers keys as already handled without enqueueing them. Used
// when seeding from a checkpoint's completed and failed sets.
func (f *Frontier) MarkSeen(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		f.seen[k] = struct{}{}
	}
}

// Push enqueues the task unless its key is already known. Returns whether
// the task was accepted.
func (f *Frontier) Push(t pipeline.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[t.Key]; ok {
		return false
	}
	f.seen[t.Key] = struct{}{}
	f.push(t)
	return true
}

// Requeue re-enqueues a popped task after a retryable failure. The key is
// already seen, so this bypasses dedup; the task leaves the in-flight set.
func (f *Frontier) Requeue(t pipeline.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, t.Key)
	f.push(t)
}

// PopReady removes and returns the earliest-eligible pending task, moving it
// to the in-flight set. Returns false when nothing is eligible at now; it
// never blocks.
func (f *Frontier) PopReady(now time.Time) (pipeline.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending.Len() == 0 || !f.pending[0].task.Ready(now) {
		return pipeline.Task{}, false
	}
	it := heap.Pop(&f.pending).(*item)
	f.inflight[it.task.Key] = it.task
	return it.task, true
}

// Done removes a key from the in-flight set once the task has completed or
// terminally failed.
func (f *Frontier) Done(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, key)
}

// NextEligible returns the earliest NextEligible time among pending tasks.
// ok is false when the frontier has no pending tasks.
func (f *Frontier) NextEligible() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending.Len() == 0 {
		return time.Time{}, false
	}
	return f.pending[0].task.NextEligible, true
}

// Exhausted is true when no pending or in-flight tasks remain. New tasks can
// only be added as a side effect of processing in-flight tasks, so once this
// holds it holds forever.
func (f *Frontier) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending.Len() == 0 && len(f.inflight) == 0
}

// Snapshot returns every pending and in-flight task for checkpointing.
// In-flight tasks are included so an interrupt mid-attempt leaves them
// recoverable.
func (f *Frontier) Snapshot() []pipeline.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Task, 0, f.pending.Len()+len(f.inflight))
	for _, it := range f.pending {
		out = append(out, it.task)
	}
	for _, t := range f.inflight {
		out = append(out, t)
	}
	return out
}

// Stats reports current occupancy.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{Pending: f.pending.Len(), InFlight: len(f.inflight), Seen: len(f.seen)}
}

func (f *Frontier) push(t pipeline.Task) {
	f.seq++
	heap.Push(&f.pending, &item{task: t, seq: f.seq})
}

// item orders tasks by eligibility time, breaking ties by insertion order.
type item struct {
	task pipeline.Task
	seq  uint64
}

type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.NextEligible.Equal(h[j].task.NextEligible) {
		return h[i].seq < h[j].seq
	}
	return h[i].task.NextEligible.Before(h[j].task.NextEligible)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*item)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
