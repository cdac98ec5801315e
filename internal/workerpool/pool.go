// Package workerpool drives a bounded set of concurrent workers over a
// step's frontier.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gpiradze/webharvest/internal/backoff"
	"github.com/gpiradze/webharvest/internal/checkpoint"
	"github.com/gpiradze/webharvest/internal/clock"
	"github.com/gpiradze/webharvest/internal/frontier"
	"github.com/gpiradze/webharvest/internal/metrics"
	"github.com/gpiradze/webharvest/internal/pipeline"
)

// Config controls Pool behavior.
type Config struct {
	// Step labels logs and metrics.
	Step string
	// Concurrency is the fixed worker count for the step's duration.
	Concurrency int
	// SleepTime is a fixed inter-request delay applied by each worker
	// after every attempt, independent of the backoff schedule.
	SleepTime time.Duration
	// PollInterval bounds how long an idle worker sleeps before
	// re-checking the frontier. Defaults to 100ms.
	PollInterval time.Duration
	// ProgressInterval is the cadence of progress log lines. Defaults to
	// 5s; set negative to disable.
	ProgressInterval time.Duration
}

// Pool runs workers until the frontier is exhausted, the context is
// canceled, or a fatal error occurs. Individual task failures never abort
// the pool; they are recorded in the checkpoint and the run continues.
type Pool struct {
	cfg     Config
	backoff *backoff.Controller
	clock   clock.Clock
	logger  *zap.Logger

	retries atomic.Int64
}

// New constructs a Pool.
func New(cfg Config, bo *backoff.Controller, clk clock.Clock, logger *zap.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{cfg: cfg, backoff: bo, clock: clk, logger: logger}
}

// Run blocks until the frontier is exhausted or the run is interrupted. On
// an external stop signal workers finish their in-flight attempt and the
// latest checkpoint is flushed before returning, so no completed task goes
// unrecorded. The returned summary reflects the tracker's final counts.
func (p *Pool) Run(
	ctx context.Context,
	stage pipeline.Stage,
	fr *frontier.Frontier,
	tracker *checkpoint.Tracker,
	sink pipeline.RecordSink,
) (pipeline.Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	fatal := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for i := range p.cfg.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			metrics.WorkerStarted(p.cfg.Step)
			defer metrics.WorkerStopped(p.cfg.Step)
			p.workerLoop(runCtx, id, stage, fr, tracker, sink, fatal)
		}(i)
	}

	stopProgress := p.startProgressLogger(fr, tracker)
	wg.Wait()
	stopProgress()

	// Flush with a fresh context: the run context may already be canceled
	// and the final snapshot must still land.
	if err := tracker.Flush(context.WithoutCancel(ctx)); err != nil {
		p.logger.Error("final checkpoint flush failed", zap.String("step", p.cfg.Step), zap.Error(err))
		if fatalErr == nil {
			fatalErr = err
		}
	}

	summary := tracker.Summary()
	summary.Retries = int(p.retries.Load())

	if fatalErr != nil {
		return summary, fatalErr
	}
	return summary, ctx.Err()
}

func (p *Pool) workerLoop(
	ctx context.Context,
	id int,
	stage pipeline.Stage,
	fr *frontier.Frontier,
	tracker *checkpoint.Tracker,
	sink pipeline.RecordSink,
	fatal func(error),
) {
	log := p.logger.With(zap.String("step", p.cfg.Step), zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		task, ok := fr.PopReady(p.clock.Now())
		if !ok {
			if fr.Exhausted() {
				return
			}
			if !p.idle(ctx, fr) {
				return
			}
			continue
		}

		result, err := p.execute(ctx, stage, task)
		if err != nil {
			fatal(err)
			return
		}
		if err := p.resolve(ctx, task, result, fr, tracker, sink, log); err != nil {
			fatal(err)
			return
		}

		if p.cfg.SleepTime > 0 && !sleep(ctx, p.cfg.SleepTime) {
			return
		}
	}
}

// execute invokes the stage, converting a collaborator panic into a fatal
// error instead of taking down the process.
func (p *Pool) execute(ctx context.Context, stage pipeline.Stage, task pipeline.Task) (result pipeline.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked on task %s: %v", stage.Name(), task.Key, r)
		}
	}()
	return stage.Execute(ctx, task), nil
}

func (p *Pool) resolve(
	ctx context.Context,
	task pipeline.Task,
	result pipeline.TaskResult,
	fr *frontier.Frontier,
	tracker *checkpoint.Tracker,
	sink pipeline.RecordSink,
	log *zap.Logger,
) error {
	switch result.Kind {
	case pipeline.KindSuccess:
		for _, nt := range result.NewTasks {
			fr.Push(nt)
		}
		if len(result.Records) > 0 {
			if err := sink.Append(ctx, result.Records); err != nil {
				return fmt.Errorf("append records for %s: %w", task.Key, err)
			}
		}
		if err := tracker.Complete(ctx, task.Key); err != nil {
			return err
		}
		fr.Done(task.Key)
		metrics.ObserveTask(p.cfg.Step, string(pipeline.KindSuccess))
		log.Debug("task completed", zap.String("key", task.Key), zap.Int("attempt", task.Attempt))

	case pipeline.KindRetryable:
		if ctx.Err() != nil {
			// The run is stopping; the failure is our own cancellation,
			// not the upstream. Park the task unchanged so the attempt
			// does not count against its retry budget.
			fr.Requeue(task)
			return nil
		}
		state := backoff.State{Initial: task.InitialDelay, Attempt: task.Attempt}
		if p.backoff.Exhausted(state) {
			reason := pipeline.ReasonMaxRetries
			if result.Reason != "" {
				reason = fmt.Sprintf("%s: %s", pipeline.ReasonMaxRetries, result.Reason)
			}
			if err := tracker.Fail(ctx, task.Key, reason); err != nil {
				return err
			}
			fr.Done(task.Key)
			metrics.ObserveTask(p.cfg.Step, string(pipeline.KindTerminal))
			log.Warn("task abandoned",
				zap.String("key", task.Key),
				zap.Int("attempts", task.Attempt),
				zap.String("reason", result.Reason),
			)
			return nil
		}
		delay, next := p.backoff.Next(state)
		task.Attempt = next.Attempt
		task.InitialDelay = next.Initial
		task.NextEligible = p.clock.Now().Add(delay)
		fr.Requeue(task)
		p.retries.Add(1)
		metrics.AddRetry(p.cfg.Step)
		log.Info("task scheduled for retry",
			zap.String("key", task.Key),
			zap.Int("attempt", task.Attempt),
			zap.Duration("backoff", delay),
			zap.String("reason", result.Reason),
		)

	case pipeline.KindTerminal:
		// Terminal failures are data: stages may attach a record carrying
		// the error so it lands in the output collection.
		if len(result.Records) > 0 {
			if err := sink.Append(ctx, result.Records); err != nil {
				return fmt.Errorf("append records for %s: %w", task.Key, err)
			}
		}
		if err := tracker.Fail(ctx, task.Key, result.Reason); err != nil {
			return err
		}
		fr.Done(task.Key)
		metrics.ObserveTask(p.cfg.Step, string(pipeline.KindTerminal))
		log.Warn("task failed terminally",
			zap.String("key", task.Key),
			zap.String("reason", result.Reason),
		)

	default:
		return fmt.Errorf("stage returned unknown result kind %q for task %s", result.Kind, task.Key)
	}
	return nil
}

// idle parks the worker until the nearest pending eligibility time or the
// poll interval, whichever is sooner. Returns false when the context ends.
func (p *Pool) idle(ctx context.Context, fr *frontier.Frontier) bool {
	wait := p.cfg.PollInterval
	if next, ok := fr.NextEligible(); ok {
		if d := next.Sub(p.clock.Now()); d > 0 && d < wait {
			wait = d
		}
	}
	return sleep(ctx, wait)
}

func (p *Pool) startProgressLogger(fr *frontier.Frontier, tracker *checkpoint.Tracker) func() {
	if p.cfg.ProgressInterval < 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.cfg.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				stats := fr.Stats()
				sum := tracker.Summary()
				p.logger.Info("progress",
					zap.String("step", p.cfg.Step),
					zap.Int("succeeded", sum.Succeeded),
					zap.Int("failed", sum.Failed),
					zap.Int("pending", stats.Pending),
					zap.Int("in_flight", stats.InFlight),
					zap.Int64("retries", p.retries.Load()),
				)
			}
		}
	}()
	return func() { close(done) }
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
