// Package runner captures one site: it opens an isolated browser session,
// navigates, optionally waits for a selector, settles, snapshots, evaluates
// page statistics and stores the artifact. Every failure ends up in the
// returned CaptureResult; Capture never returns an error.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/progress"
)

// Default time budget and viewport.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultWaitTimeout       = 10 * time.Second
	DefaultSettleDelay       = 3 * time.Second
	MinSettleDelay           = time.Second
	DefaultViewportWidth     = 1920
	DefaultViewportHeight    = 1080
)

// TimeBudget bounds each capture phase.
type TimeBudget struct {
	// Navigation bounds session setup, navigation, snapshot and stats each.
	Navigation time.Duration
	// ConditionWait bounds the optional wait for the site's selector.
	ConditionWait time.Duration
	// Settle is a fixed pause after load so late rendering lands in the snapshot.
	Settle time.Duration
}

// Config controls Runner behavior.
type Config struct {
	Budget   TimeBudget
	Viewport monitor.Viewport
}

func (c Config) withDefaults() Config {
	if c.Budget.Navigation <= 0 {
		c.Budget.Navigation = DefaultNavigationTimeout
	}
	if c.Budget.ConditionWait <= 0 {
		c.Budget.ConditionWait = DefaultWaitTimeout
	}
	if c.Budget.Settle <= 0 {
		c.Budget.Settle = DefaultSettleDelay
	}
	if c.Budget.Settle < MinSettleDelay {
		c.Budget.Settle = MinSettleDelay
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = DefaultViewportWidth
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = DefaultViewportHeight
	}
	return c
}

// Runner captures sites against a browser supplied per call.
type Runner struct {
	store  monitor.ArtifactStore
	clock  monitor.Clock
	events progress.Emitter
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSleeper replaces the settle pause, letting callers drive time.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Runner) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// New constructs a Runner. A nil events emitter discards events.
func New(store monitor.ArtifactStore, clock monitor.Clock, events progress.Emitter, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if events == nil {
		events = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:  store,
		clock:  clock,
		events: events,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration after defaults.
func (r *Runner) Config() Config {
	return r.cfg
}

// Capture runs one site through browser and reports the outcome.
func (r *Runner) Capture(ctx context.Context, browser monitor.Browser, cycleID string, site monitor.SiteConfig) (result monitor.CaptureResult) {
	startedAt := r.clock.Now().UTC()
	logger := r.logger.With(zap.String("cycle_id", cycleID), zap.String("site", site.ID), zap.String("url", site.URL))
	r.emit(progress.Event{CycleID: cycleID, TS: startedAt, Stage: progress.StageSiteStart, SiteID: site.ID, URL: site.URL})

	defer func() {
		if p := recover(); p != nil {
			logger.Error("renderer panicked", zap.Any("panic", p))
			result = monitor.Failed(site, startedAt, monitor.ErrorKindUnknown, fmt.Errorf("renderer panic: %v", p))
		}
		r.report(cycleID, result, logger)
	}()

	if browser == nil {
		return monitor.Failed(site, startedAt, monitor.ErrorKindUnknown, errors.New("browser is not available"))
	}
	return r.capture(ctx, browser, cycleID, site, startedAt, logger)
}

func (r *Runner) capture(
	ctx context.Context,
	browser monitor.Browser,
	cycleID string,
	site monitor.SiteConfig,
	startedAt time.Time,
	logger *zap.Logger,
) monitor.CaptureResult {
	budget := r.cfg.Budget
	opts := site.Screenshot.Normalized()

	openCtx, cancel := context.WithTimeout(ctx, budget.Navigation)
	session, err := browser.OpenSession(openCtx, r.cfg.Viewport)
	cancel()
	if err != nil {
		return monitor.Failed(site, startedAt, monitor.Classify(err), fmt.Errorf("open session: %w", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("session close failed", zap.Error(err))
		}
	}()

	navStart := r.clock.Now()
	navCtx, cancel := context.WithTimeout(ctx, budget.Navigation)
	err = session.Navigate(navCtx, site.URL)
	cancel()
	if err != nil {
		return monitor.Failed(site, startedAt, kindOr(err, monitor.ErrorKindNavigation), err)
	}

	if site.WaitCondition != "" {
		waitCtx, cancel := context.WithTimeout(ctx, budget.ConditionWait)
		err = session.WaitFor(waitCtx, site.WaitCondition)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return monitor.Failed(site, startedAt, monitor.Classify(ctx.Err()), ctx.Err())
			}
			logger.Warn("wait condition not met, capturing anyway",
				zap.String("selector", site.WaitCondition), zap.Error(err))
			r.emit(progress.Event{
				CycleID: cycleID, TS: r.clock.Now().UTC(), Stage: progress.StageWaitTimeout,
				SiteID: site.ID, URL: site.URL, Note: site.WaitCondition,
			})
		}
	}

	if err := r.sleep(ctx, budget.Settle); err != nil {
		return monitor.Failed(site, startedAt, monitor.Classify(err), fmt.Errorf("settle: %w", err))
	}
	elapsed := r.clock.Now().Sub(navStart)

	snapCtx, cancel := context.WithTimeout(ctx, budget.Navigation)
	data, err := session.Snapshot(snapCtx, opts)
	cancel()
	if err != nil {
		return monitor.Failed(site, startedAt, kindOr(err, monitor.ErrorKindCapture), err)
	}

	var stats *monitor.PageStats
	statsCtx, cancel := context.WithTimeout(ctx, budget.Navigation)
	pageStats, err := session.EvaluateStats(statsCtx)
	cancel()
	if err != nil {
		logger.Warn("page stats unavailable", zap.Error(err))
	} else {
		stats = &pageStats
	}

	key := monitor.NewArtifactKey(site.ID, startedAt, opts.Format)
	ref, err := r.store.Put(ctx, key, opts.Format.ContentType(), data)
	if err != nil {
		return monitor.Failed(site, startedAt, monitor.ErrorKindCapture, fmt.Errorf("store artifact: %w", err))
	}
	return monitor.Succeeded(site, startedAt, elapsed, stats, ref)
}

func (r *Runner) report(cycleID string, result monitor.CaptureResult, logger *zap.Logger) {
	evt := progress.Event{
		CycleID: cycleID,
		TS:      r.clock.Now().UTC(),
		SiteID:  result.Site.ID,
		URL:     result.Site.URL,
	}
	if result.Success {
		evt.Stage = progress.StageSiteDone
		if result.ResponseTimeMs != nil {
			evt.Dur = time.Duration(*result.ResponseTimeMs) * time.Millisecond
		}
		logger.Info("site captured", zap.Int64p("response_ms", result.ResponseTimeMs), zap.String("artifact", result.ArtifactRef))
	} else {
		evt.Stage = progress.StageSiteError
		evt.ErrorKind = string(result.ErrorKind)
		evt.Note = result.ErrorMessage
		logger.Warn("site capture failed",
			zap.String("error_kind", string(result.ErrorKind)), zap.String("error", result.ErrorMessage))
	}
	r.emit(evt)
}

func (r *Runner) emit(evt progress.Event) {
	r.events.Emit(evt)
}

// kindOr classifies err, substituting fallback when the adapter returned an
// error without a recognizable cause.
func kindOr(err error, fallback monitor.ErrorKind) monitor.ErrorKind {
	if kind := monitor.Classify(err); kind != monitor.ErrorKindUnknown {
		return kind
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle interrupted: %w", ctx.Err())
	}
}
