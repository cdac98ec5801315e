// Package backoff computes per-task retry delay schedules.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Config holds the delay schedule parameters for one step.
type Config struct {
	// Min and Max bound the initial delay drawn for a task on its first
	// failure.
	Min time.Duration
	// Max must be >= Min.
	Max time.Duration
	// Factor multiplies the delay on every subsequent failure. Must be > 1.
	Factor float64
	// MaxRetries caps scheduled retries per task; once a task's attempt
	// count reaches it the task is abandoned as a terminal failure.
	MaxRetries int
}

// Validate checks the schedule parameters.
func (c Config) Validate() error {
	if c.Min < 0 {
		return fmt.Errorf("backoff_min must be >= 0")
	}
	if c.Max < c.Min {
		return fmt.Errorf("backoff_max must be >= backoff_min")
	}
	if c.Factor <= 1 {
		return fmt.Errorf("backoff_factor must be > 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}
	return nil
}

// State is the per-task backoff progression. The zero value means the task
// has not failed yet. Initial is fixed at first failure and reused for every
// later attempt of the same task, so the schedule stays consistent across
// re-enqueues and checkpoint restores.
type State struct {
	Initial time.Duration
	Attempt int
}

// Controller computes retry delays. It never sleeps; the worker pool parks
// the task until now + delay.
type Controller struct {
	cfg Config
	// rnd is replaceable in tests; returns a float64 in [0, 1).
	rnd func() float64
}

// New builds a Controller. The config must already be validated.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg, rnd: rand.Float64}
}

// Next returns the delay before the task may run again and the advanced
// state. The first delay is drawn uniformly from [Min, Max]; each later
// delay is Initial * Factor^Attempt with a multiplicative jitter drawn
// uniformly from [0.9, 1.1].
func (c *Controller) Next(s State) (time.Duration, State) {
	if s.Attempt == 0 {
		initial := c.initialDelay()
		return initial, State{Initial: initial, Attempt: 1}
	}
	d := float64(s.Initial) * math.Pow(c.cfg.Factor, float64(s.Attempt))
	d *= 0.9 + 0.2*c.rnd()
	return time.Duration(d), State{Initial: s.Initial, Attempt: s.Attempt + 1}
}

// Exhausted reports whether the task has used up its retry budget.
func (c *Controller) Exhausted(s State) bool {
	return s.Attempt >= c.cfg.MaxRetries
}

// MaxRetries exposes the configured retry cap.
func (c *Controller) MaxRetries() int {
	return c.cfg.MaxRetries
}

func (c *Controller) initialDelay() time.Duration {
	span := float64(c.cfg.Max - c.cfg.Min)
	return c.cfg.Min + time.Duration(span*c.rnd())
}
