package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/report"
)

// Scheduler runs cycles once or on a fixed interval.
//
// Interrupts drain: once ctx is cancelled no new cycle starts, while a cycle
// already running finishes under a context detached from ctx. Every stage of
// a cycle carries its own timeout, so the drain is bounded.
type Scheduler struct {
	cycle    *Cycle
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last *monitor.CycleReport
	runs int
}

// New builds a Scheduler. A non-positive interval falls back to DefaultInterval.
func New(cycle *Cycle, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cycle: cycle, interval: interval, logger: logger}
}

// RunOnce runs a single cycle and returns its report with the process exit
// code: 0 when every site is up, 2 when any site failed.
func (s *Scheduler) RunOnce(ctx context.Context) (monitor.CycleReport, int) {
	rep := s.runCycle(context.WithoutCancel(ctx))
	return rep, report.ExitCode(rep)
}

// RunContinuous runs a cycle immediately, then one per interval until ctx
// is cancelled. A cycle that overruns the interval delays the next one
// rather than overlapping it.
func (s *Scheduler) RunContinuous(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return nil
	}
	s.tick(ctx)
	if ctx.Err() != nil {
		s.logger.Info("scheduler stopped after initial cycle")
		return nil
	}

	logger := cronLogger{s.logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule cycles %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("scheduler running", zap.Duration("interval", s.interval))

	<-ctx.Done()
	s.logger.Info("scheduler stopping, waiting for the running cycle")
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// Last returns the most recent report, if any.
func (s *Scheduler) Last() (monitor.CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return monitor.CycleReport{}, false
	}
	return *s.last, true
}

// Runs returns how many cycles have completed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// tick starts a cycle unless ctx is already cancelled.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		s.logger.Info("skipping cycle, shutdown requested")
		return
	}
	s.runCycle(context.WithoutCancel(ctx))
}

func (s *Scheduler) runCycle(ctx context.Context) monitor.CycleReport {
	rep := s.cycle.Run(ctx)
	s.mu.Lock()
	s.last = &rep
	s.runs++
	s.mu.Unlock()
	return rep
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
