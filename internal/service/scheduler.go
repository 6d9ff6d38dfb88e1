package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// RepoResolver supplies the guide repository coordinates. It is called at the
// start of every pass so configuration edits take effect without a restart.
type RepoResolver func() (domain.RepoConfig, error)

// Scheduler owns the recurring sync timer and guarantees at most one pass
// runs at a time. Everything a pass can raise is caught at this boundary; a
// failed pass is logged and retried on the next tick, never escalated to the
// host process.
type Scheduler struct {
	resolveRepo RepoResolver
	guide       *GuideService
	reconciler  *Reconciler
	deployer    *Deployer
	outcomes    port.OutcomeStore
	logger      *slog.Logger

	enabled  bool
	interval time.Duration

	mu        sync.Mutex
	running   bool
	everRan   bool
	lastRunAt time.Time
	nextRunAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	// pass is the unit of work one tick executes; replaced in tests.
	pass func(ctx context.Context) error
}

// NewScheduler creates the update scheduler.
func NewScheduler(
	resolveRepo RepoResolver,
	guide *GuideService,
	reconciler *Reconciler,
	deployer *Deployer,
	outcomes port.OutcomeStore,
	logger *slog.Logger,
	enabled bool,
	intervalHours int,
) *Scheduler {
	s := &Scheduler{
		resolveRepo: resolveRepo,
		guide:       guide,
		reconciler:  reconciler,
		deployer:    deployer,
		outcomes:    outcomes,
		logger:      logger,
		enabled:     enabled,
		interval:    time.Duration(intervalHours) * time.Hour,
		stopCh:      make(chan struct{}),
	}
	s.pass = s.executePass
	return s
}

// Start begins the recurring timer. If no pass has ever run, one fires
// immediately. A disabled scheduler logs and does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.enabled {
		s.logger.Info("sync scheduler disabled")
		return
	}

	s.logger.Info("sync scheduler starting", "interval", s.interval)
	go s.loop(ctx)
}

// Stop cancels future ticks. A pass already in flight runs to completion.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// TriggerNow runs one pass asynchronously. Returns port.ErrRunInProgress if a
// pass is already executing. The pass outlives the triggering request, so it
// runs on a background context.
func (s *Scheduler) TriggerNow() error {
	if !s.tryBegin() {
		return port.ErrRunInProgress
	}
	go s.runLocked(context.Background(), "manual")
	return nil
}

// Status returns a snapshot of the scheduler state and the most recent run's
// outcomes.
func (s *Scheduler) Status(ctx context.Context) (domain.SchedulerState, []domain.DeploymentOutcome, error) {
	s.mu.Lock()
	state := domain.SchedulerState{
		Enabled:       s.enabled,
		IntervalHours: int(s.interval / time.Hour),
		Running:       s.running,
		LastRunAt:     s.lastRunAt,
		NextRunAt:     s.nextRunAt,
	}
	s.mu.Unlock()

	outcomes, err := s.outcomes.LastOutcomes(ctx)
	if err != nil {
		return state, nil, fmt.Errorf("load last outcomes: %w", err)
	}
	return state, outcomes, nil
}

func (s *Scheduler) loop(ctx context.Context) {
	s.mu.Lock()
	firstRun := !s.everRan
	s.mu.Unlock()

	if firstRun {
		s.runOnce(ctx, "startup")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.Info("sync scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("sync scheduler context cancelled")
			return
		case <-ticker.C:
			s.runOnce(ctx, "timer")
		}
	}
}

// runOnce executes one pass if none is in flight; an overlapping tick is
// dropped, not queued.
func (s *Scheduler) runOnce(ctx context.Context, trigger string) {
	if !s.tryBegin() {
		s.logger.Warn("sync pass already running, dropping tick", "trigger", trigger)
		return
	}
	s.runLocked(ctx, trigger)
}

// tryBegin transitions Idle -> Running. Returns false when already Running.
func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// runLocked executes the pass and always releases the running flag, even on
// panic, so a crashed pass cannot wedge the scheduler.
func (s *Scheduler) runLocked(ctx context.Context, trigger string) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync pass panicked", "trigger", trigger, "panic", r)
		}
		s.mu.Lock()
		s.running = false
		s.everRan = true
		s.lastRunAt = started
		s.nextRunAt = started.Add(s.interval)
		s.mu.Unlock()
	}()

	s.logger.Info("sync pass starting", "trigger", trigger)
	if err := s.pass(ctx); err != nil {
		s.logger.Error("sync pass failed", "trigger", trigger, "error", err)
		return
	}
	s.logger.Info("sync pass complete", "trigger", trigger, "duration", time.Since(started))
}

// executePass runs one full fetch -> cache -> reconcile -> deploy sequence.
func (s *Scheduler) executePass(ctx context.Context) error {
	repo, err := s.resolveRepo()
	if err != nil {
		return &port.ConfigError{Field: "guide repository", Err: err}
	}
	if !repo.IsComplete() {
		return &port.NotConfiguredError{Missing: "repository coordinates"}
	}

	version, defs, err := s.guide.Refresh(ctx, repo)
	if err != nil {
		return err
	}

	plan, err := s.reconciler.Reconcile(ctx, version, defs)
	if err != nil {
		return err
	}

	if plan.IsEmpty() {
		s.logger.Info("nothing to deploy", "version", version.CommitSHA)
		return nil
	}

	outcomes := s.deployer.Apply(ctx, plan)
	if err := s.outcomes.SaveOutcomes(ctx, outcomes); err != nil {
		return fmt.Errorf("save outcomes: %w", err)
	}

	for _, stats := range domain.SummarizeOutcomes(outcomes) {
		s.logger.Info("instance deployment summary",
			"instance_id", stats.InstanceID,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped)
	}
	return nil
}
