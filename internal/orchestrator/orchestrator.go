// Package orchestrator sequences pipeline steps, wiring each one's stage,
// frontier, checkpoint tracker and worker pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gpiradze/webharvest/internal/api"
	"github.com/gpiradze/webharvest/internal/backoff"
	"github.com/gpiradze/webharvest/internal/checkpoint"
	"github.com/gpiradze/webharvest/internal/clock"
	"github.com/gpiradze/webharvest/internal/config"
	"github.com/gpiradze/webharvest/internal/dataset"
	"github.com/gpiradze/webharvest/internal/frontier"
	"github.com/gpiradze/webharvest/internal/metrics"
	"github.com/gpiradze/webharvest/internal/pipeline"
	"github.com/gpiradze/webharvest/internal/publisher"
	"github.com/gpiradze/webharvest/internal/rawstore"
	"github.com/gpiradze/webharvest/internal/stage"
	"github.com/gpiradze/webharvest/internal/workerpool"
)

// StepEvent is the payload published after every step.
type StepEvent struct {
	RunID   string           `json:"run_id"`
	Website string           `json:"website"`
	Step    string           `json:"step"`
	Status  string           `json:"status"`
	Summary pipeline.Summary `json:"summary"`
	At      time.Time        `json:"at"`
}

// Orchestrator runs the configured steps in order.
type Orchestrator struct {
	cfg      config.Config
	registry *stage.Registry
	store    checkpoint.Store
	blobs    rawstore.Store
	events   publisher.Publisher
	logger   *zap.Logger
	clock    clock.Clock
	runID    string

	mu       sync.Mutex
	statuses []api.StepStatus
}

// New constructs an Orchestrator.
func New(
	cfg config.Config,
	registry *stage.Registry,
	store checkpoint.Store,
	blobs rawstore.Store,
	events publisher.Publisher,
	logger *zap.Logger,
	clk clock.Clock,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if events == nil {
		events = publisher.NoOp{}
	}
	o := &Orchestrator{
		cfg:      cfg,
		registry: registry,
		store:    store,
		blobs:    blobs,
		events:   events,
		logger:   logger,
		clock:    clk,
		runID:    uuid.NewString(),
	}
	for _, step := range cfg.Steps {
		o.statuses = append(o.statuses, api.StepStatus{
			Step:   step.Name,
			Status: string(pipeline.StepPending),
		})
	}
	return o
}

// RunID identifies this invocation in logs and events.
func (o *Orchestrator) RunID() string { return o.runID }

// StepStatuses implements api.StatusSource.
func (o *Orchestrator) StepStatuses() []api.StepStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]api.StepStatus, len(o.statuses))
	copy(out, o.statuses)
	return out
}

func (o *Orchestrator) setStatus(i int, status pipeline.StepStatus, summary pipeline.Summary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[i].Status = string(status)
	o.statuses[i].Succeeded = summary.Succeeded
	o.statuses[i].Failed = summary.Failed
	o.statuses[i].Pending = summary.Pending
	o.statuses[i].Retries = summary.Retries
}

// Run executes every step in order. A step only starts after its
// predecessor finished; a fatal step error stops the pipeline there.
func (o *Orchestrator) Run(ctx context.Context) error {
	metrics.Init()
	logger := o.logger.With(
		zap.String("run_id", o.runID),
		zap.String("website", o.cfg.Website),
	)
	logger.Info("pipeline starting", zap.Int("steps", len(o.cfg.Steps)))

	for i, step := range o.cfg.Steps {
		stepLogger := logger.With(zap.String("step", step.Name))
		o.setStatus(i, pipeline.StepRunning, pipeline.Summary{})

		start := o.clock.Now()
		summary, err := o.runStep(ctx, step, stepLogger)
		elapsed := o.clock.Now().Sub(start)

		status := pipeline.StepCompleted
		if err != nil {
			status = pipeline.StepFailed
		}
		o.setStatus(i, status, summary)
		metrics.ObserveStepDuration(step.Name, string(status), elapsed)
		o.publishEvent(ctx, step.Name, string(status), summary)

		if err != nil {
			stepLogger.Error("step failed",
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		stepLogger.Info("step finished",
			zap.Duration("elapsed", elapsed),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("retries", summary.Retries),
		)
	}

	logger.Info("pipeline finished")
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step config.StepConfig, logger *zap.Logger) (pipeline.Summary, error) {
	stepID := o.cfg.Website + "/" + step.Name

	seeds, err := o.seedTasks(step)
	if err != nil {
		return pipeline.Summary{}, err
	}
	seedKeys := make([]string, len(seeds))
	for i, t := range seeds {
		seedKeys[i] = t.Key
	}

	digest, err := checkpoint.ConfigDigest(seedKeys, step.Options)
	if err != nil {
		return pipeline.Summary{}, err
	}

	snap, resuming, err := o.loadSnapshot(ctx, stepID, digest, step.Options.ResumeOnDrift, logger)
	if err != nil {
		return pipeline.Summary{}, err
	}
	if snap.Finalized || (!resuming && dataset.Exists(step.Output)) {
		logger.Info("output already present, skipping step",
			zap.String("output", step.Output))
		return snapSummary(snap), nil
	}

	st, err := o.buildStage(step, logger)
	if err != nil {
		return pipeline.Summary{}, err
	}

	fr := frontier.New()
	fr.MarkSeen(snap.Completed...)
	fr.MarkSeen(snap.FailedKeys()...)
	for _, t := range snap.Pending {
		fr.Push(t)
	}
	for _, t := range seeds {
		fr.Push(t)
	}

	writer, err := dataset.NewWriter(step.Output, step.Options.TempDir)
	if err != nil {
		return pipeline.Summary{}, err
	}

	tracker := checkpoint.NewTracker(o.store, fr, snap, checkpoint.TrackerConfig{
		FlushCount:    step.Options.CheckpointCount,
		FlushInterval: step.Options.CheckpointInterval(),
	}, o.clock)

	bo := backoff.New(backoff.Config{
		Min:        step.Options.BackoffMinDuration(),
		Max:        step.Options.BackoffMaxDuration(),
		Factor:     step.Options.BackoffFactor,
		MaxRetries: step.Options.RetryBudget(),
	})

	pool := workerpool.New(workerpool.Config{
		Step:        step.Name,
		Concurrency: step.Options.NumProcesses,
		SleepTime:   step.Options.SleepDuration(),
	}, bo, o.clock, logger)

	summary, runErr := pool.Run(ctx, st, fr, tracker, writer)

	// Publish whatever was produced even on interruption; the merge is
	// idempotent and the checkpoint records which tasks are done.
	finCtx := context.WithoutCancel(ctx)
	if err := writer.Finalize(); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			logger.Error("finalize output failed", zap.Error(err))
		}
	}
	if runErr != nil {
		return summary, runErr
	}
	if err := tracker.Finalize(finCtx); err != nil {
		return summary, err
	}
	return summary, nil
}

// loadSnapshot returns the step's saved snapshot, or a fresh one when none
// exists. resuming reports whether saved progress was found.
func (o *Orchestrator) loadSnapshot(
	ctx context.Context,
	stepID, digest string,
	resumeOnDrift bool,
	logger *zap.Logger,
) (checkpoint.Snapshot, bool, error) {
	fresh := checkpoint.Snapshot{StepID: stepID, ConfigDigest: digest}

	snap, err := o.store.Load(ctx, stepID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return fresh, false, nil
	}
	if err != nil {
		return checkpoint.Snapshot{}, false, fmt.Errorf("load checkpoint: %w", err)
	}

	if err := checkpoint.Verify(snap, digest); err != nil {
		if !resumeOnDrift {
			return checkpoint.Snapshot{}, false, fmt.Errorf(
				"checkpoint for %s: %w (set resume_on_drift to resume anyway)", stepID, err)
		}
		logger.Warn("resuming despite configuration drift",
			zap.String("saved_digest", snap.ConfigDigest),
			zap.String("current_digest", digest),
		)
		snap.ConfigDigest = digest
	}

	logger.Info("resuming from checkpoint",
		zap.Int("version", snap.Version),
		zap.Int("completed", len(snap.Completed)),
		zap.Int("failed", len(snap.Failed)),
		zap.Int("pending", len(snap.Pending)),
	)
	return snap, true, nil
}

// seedTasks builds the step's initial task set: start URLs for crawlers,
// the previous step's dataset for everything else. Error rows carried in
// the input as failure markers are not re-attempted.
func (o *Orchestrator) seedTasks(step config.StepConfig) ([]pipeline.Task, error) {
	if step.Name == StepCrawler {
		if len(step.Options.StartURLs) == 0 {
			return nil, fmt.Errorf("crawler step needs start_urls")
		}
		tasks := make([]pipeline.Task, 0, len(step.Options.StartURLs))
		for _, u := range step.Options.StartURLs {
			tasks = append(tasks, pipeline.NewTask(pipeline.Record{URL: u}))
		}
		return tasks, nil
	}

	if step.Input == "" {
		return nil, fmt.Errorf("%s step needs an input dataset", step.Name)
	}
	records, err := dataset.ReadAll(step.Input)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	tasks := make([]pipeline.Task, 0, len(records))
	for _, rec := range records {
		if rec.Error != "" {
			continue
		}
		tasks = append(tasks, pipeline.NewTask(rec))
	}
	return tasks, nil
}

// Step kinds. The name in the pipeline definition picks both the stage
// adapter and which registry factory is consulted.
const (
	StepCrawler = "Crawler"
	StepScraper = "Scraper"
	StepParser  = "Parser"
)

func (o *Orchestrator) buildStage(step config.StepConfig, logger *zap.Logger) (pipeline.Stage, error) {
	opts := stage.Options{
		Logger:           logger,
		UserAgent:        step.Options.UserAgent,
		Timeout:          step.Options.Timeout(),
		TranslationMode:  step.Options.TranslationMode,
		SourceLang:       step.Options.SourceLang,
		TargetLang:       step.Options.TargetLang,
		QualityThreshold: step.Options.QualityCutoff(),
		Extra:            step.Options.Extra,
	}

	switch step.Name {
	case StepCrawler:
		c, err := o.registry.Crawler(o.cfg.Website, opts)
		if err != nil {
			return nil, err
		}
		return stage.NewCrawlStage(step.Name, c), nil
	case StepScraper:
		s, err := o.registry.Scraper(o.cfg.Website, opts)
		if err != nil {
			return nil, err
		}
		return stage.NewScrapeStage(step.Name, s, o.blobs), nil
	case StepParser:
		p, err := o.registry.Parser(o.cfg.Website, opts)
		if err != nil {
			return nil, err
		}
		return stage.NewParseStage(step.Name, p, o.blobs), nil
	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Name)
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, stepName, status string, summary pipeline.Summary) {
	event := StepEvent{
		RunID:   o.runID,
		Website: o.cfg.Website,
		Step:    stepName,
		Status:  status,
		Summary: summary,
		At:      o.clock.Now(),
	}
	if _, err := o.events.Publish(context.WithoutCancel(ctx), o.cfg.Events.Topic, event); err != nil {
		o.logger.Warn("publish step event failed",
			zap.String("step", stepName),
			zap.Error(err),
		)
	}
}

func snapSummary(snap checkpoint.Snapshot) pipeline.Summary {
	return pipeline.Summary{
		Succeeded: len(snap.Completed),
		Failed:    len(snap.Failed),
		Pending:   len(snap.Pending),
	}
}
