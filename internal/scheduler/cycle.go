// Package scheduler drives monitoring cycles: one browser per cycle, every
// enabled site captured, artifacts pruned, the report aggregated and
// persisted, then published, mirrored to the status page and mailed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/progress"
	"github.com/JakeFAU/sitewatch/internal/report"
	"github.com/JakeFAU/sitewatch/internal/retention"
	"github.com/JakeFAU/sitewatch/internal/runner"
)

// Defaults for cycle pacing and scheduling.
const (
	DefaultSiteDelay = 2 * time.Second
	DefaultInterval  = 8 * time.Hour
)

// Config controls one cycle.
type Config struct {
	// SiteDelay pauses between consecutive sites in sequential mode.
	SiteDelay time.Duration
	// Concurrency > 1 captures sites with a bounded pool.
	Concurrency int
	// MaxArtifactsPerSite bounds retention per capture date.
	MaxArtifactsPerSite int
	// Topic receives the cycle report when a publisher is configured.
	Topic string
}

// Deps are the collaborators of a Cycle. Publisher, Syncer and Notifier are
// optional.
type Deps struct {
	Launcher  monitor.Launcher
	Runner    *runner.Runner
	Retention *retention.Manager
	Reports   monitor.ReportStore
	Publisher monitor.Publisher
	Syncer    monitor.StatusSyncer
	Notifier  monitor.Notifier
	Events    progress.Emitter
	Clock     monitor.Clock
	IDs       monitor.IDGenerator
}

// Cycle runs complete monitoring passes over a fixed site list.
type Cycle struct {
	deps   Deps
	sites  []monitor.SiteConfig
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewCycle validates deps and builds a Cycle.
func NewCycle(deps Deps, sites []monitor.SiteConfig, cfg Config, logger *zap.Logger) (*Cycle, error) {
	switch {
	case deps.Launcher == nil:
		return nil, fmt.Errorf("scheduler: launcher is required")
	case deps.Runner == nil:
		return nil, fmt.Errorf("scheduler: runner is required")
	case deps.Reports == nil:
		return nil, fmt.Errorf("scheduler: report store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("scheduler: clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("scheduler: id generator is required")
	}
	if deps.Events == nil {
		deps.Events = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SiteDelay < 0 {
		cfg.SiteDelay = 0
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Cycle{
		deps:   deps,
		sites:  append([]monitor.SiteConfig(nil), sites...),
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

// Sites returns the monitored sites.
func (c *Cycle) Sites() []monitor.SiteConfig {
	return append([]monitor.SiteConfig(nil), c.sites...)
}

// Run performs one full pass. It always returns a report; every failure
// after configuration is contained, logged and reflected in events.
func (c *Cycle) Run(ctx context.Context) monitor.CycleReport {
	start := c.deps.Clock.Now()
	startedAt := start.UTC()
	cycleID, err := c.deps.IDs.NewID()
	if err != nil {
		cycleID = "cycle-" + startedAt.Format("20060102T150405Z")
		c.logger.Warn("cycle id generation failed, using timestamp", zap.Error(err))
	}
	logger := c.logger.With(zap.String("cycle_id", cycleID))
	logger.Info("cycle starting", zap.Int("sites", len(c.sites)), zap.Int("concurrency", c.cfg.Concurrency))
	c.emit(progress.Event{CycleID: cycleID, TS: startedAt, Stage: progress.StageCycleStart, Total: len(c.sites)})

	results := c.captureAll(ctx, cycleID, logger)
	c.prune(ctx, cycleID, logger)

	rep := report.Aggregate(cycleID, startedAt, results)
	if ref, err := c.deps.Reports.Save(ctx, rep); err != nil {
		logger.Error("report persistence failed", zap.Error(err))
	} else {
		logger.Info("report saved", zap.String("ref", ref))
	}

	c.publish(ctx, rep, logger)
	c.syncStatus(ctx, rep, logger)
	if c.deps.Notifier != nil {
		if err := c.deps.Notifier.Notify(ctx, rep); err != nil {
			logger.Warn("notification failed", zap.Error(err))
			c.emit(progress.Event{CycleID: cycleID, TS: c.now(), Stage: progress.StageSyncError, Note: err.Error()})
		}
	}

	dur := c.deps.Clock.Now().Sub(start)
	c.emit(progress.Event{
		CycleID: cycleID, TS: c.now(), Stage: progress.StageCycleDone,
		Dur: max(dur, 0), Count: rep.Successful, Total: rep.TotalSites, Uptime: rep.UptimePercent,
	})
	logger.Info("cycle finished",
		zap.String("summary", report.Subject(rep)),
		zap.String("average", report.AverageLabel(rep)),
		zap.Duration("duration", dur))
	return rep
}

// captureAll launches the browser and captures every site, returning
// results in site order.
func (c *Cycle) captureAll(ctx context.Context, cycleID string, logger *zap.Logger) []monitor.CaptureResult {
	results := make([]monitor.CaptureResult, len(c.sites))
	if len(c.sites) == 0 {
		return results
	}

	browser, err := c.deps.Launcher.Launch(ctx)
	if err != nil {
		logger.Error("browser launch failed, failing every site", zap.Error(err))
		at := c.now()
		for i, site := range c.sites {
			results[i] = monitor.Failed(site, at, monitor.ErrorKindUnknown, fmt.Errorf("launch browser: %w", err))
			c.emit(progress.Event{
				CycleID: cycleID, TS: at, Stage: progress.StageSiteError,
				SiteID: site.ID, URL: site.URL, ErrorKind: string(monitor.ErrorKindUnknown), Note: err.Error(),
			})
		}
		return results
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Warn("browser close failed", zap.Error(err))
		}
	}()

	if c.cfg.Concurrency <= 1 {
		for i, site := range c.sites {
			if i > 0 && c.cfg.SiteDelay > 0 {
				// The next capture observes cancellation itself.
				_ = c.sleep(ctx, c.cfg.SiteDelay)
			}
			results[i] = c.deps.Runner.Capture(ctx, browser, cycleID, site)
		}
		return results
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for range min(c.cfg.Concurrency, len(c.sites)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = c.deps.Runner.Capture(ctx, browser, cycleID, c.sites[i])
			}
		}()
	}
	for i := range c.sites {
		indexes <- i
	}
	close(indexes)
	wg.Wait()
	return results
}

func (c *Cycle) prune(ctx context.Context, cycleID string, logger *zap.Logger) {
	if c.deps.Retention == nil || c.cfg.MaxArtifactsPerSite <= 0 {
		return
	}
	for _, site := range c.sites {
		deleted, err := c.deps.Retention.Prune(ctx, site.ID, c.cfg.MaxArtifactsPerSite)
		if err != nil {
			logger.Warn("retention incomplete", zap.String("site", site.ID), zap.Error(err))
		}
		if deleted > 0 {
			c.emit(progress.Event{CycleID: cycleID, TS: c.now(), Stage: progress.StagePrune, SiteID: site.ID, Count: deleted})
		}
	}
}

func (c *Cycle) publish(ctx context.Context, rep monitor.CycleReport, logger *zap.Logger) {
	if c.deps.Publisher == nil || c.cfg.Topic == "" {
		return
	}
	id, err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, rep)
	if err != nil {
		logger.Warn("report publish failed", zap.String("topic", c.cfg.Topic), zap.Error(err))
		c.emit(progress.Event{CycleID: rep.CycleID, TS: c.now(), Stage: progress.StageSyncError, Note: "publish: " + err.Error()})
		return
	}
	logger.Debug("report published", zap.String("topic", c.cfg.Topic), zap.String("message_id", id))
}

func (c *Cycle) syncStatus(ctx context.Context, rep monitor.CycleReport, logger *zap.Logger) {
	if c.deps.Syncer == nil {
		return
	}
	for _, res := range rep.Results {
		err := c.deps.Syncer.SyncSiteStatus(ctx, res.Site.Name, res.Success, res.ResponseTimeMs, res.ErrorMessage)
		if err != nil {
			logger.Warn("status sync failed", zap.String("site", res.Site.ID), zap.Error(err))
			c.emit(progress.Event{
				CycleID: rep.CycleID, TS: c.now(), Stage: progress.StageSyncError,
				SiteID: res.Site.ID, Note: err.Error(),
			})
		}
	}
}

func (c *Cycle) emit(evt progress.Event) {
	c.deps.Events.Emit(evt)
}

func (c *Cycle) now() time.Time {
	return c.deps.Clock.Now().UTC()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
