// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/api"
	"github.com/JakeFAU/sitewatch/internal/clock/system"
	"github.com/JakeFAU/sitewatch/internal/config"
	"github.com/JakeFAU/sitewatch/internal/id/uuid"
	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/notify"
	"github.com/JakeFAU/sitewatch/internal/progress"
	"github.com/JakeFAU/sitewatch/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/sitewatch/internal/publisher/pubsub"
	"github.com/JakeFAU/sitewatch/internal/renderer"
	"github.com/JakeFAU/sitewatch/internal/renderer/headless"
	"github.com/JakeFAU/sitewatch/internal/renderer/rodbrowser"
	"github.com/JakeFAU/sitewatch/internal/retention"
	"github.com/JakeFAU/sitewatch/internal/runner"
	"github.com/JakeFAU/sitewatch/internal/scheduler"
	"github.com/JakeFAU/sitewatch/internal/statuspage"
	gcsstore "github.com/JakeFAU/sitewatch/internal/storage/gcs"
	"github.com/JakeFAU/sitewatch/internal/storage/local"
	"github.com/JakeFAU/sitewatch/internal/storage/memory"
	"github.com/JakeFAU/sitewatch/internal/storage/postgres"
	"github.com/JakeFAU/sitewatch/internal/storage/sqlite"
)

// Version is reported on the root HTTP route.
var Version = "dev"

const closeTimeout = 10 * time.Second

// App holds all the shared, long-lived services for the application.
// It is built once at startup from the loaded configuration and sites, and
// closed once on exit.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	clock     monitor.Clock
	artifacts monitor.ArtifactStore
	reports   monitor.ReportStore
	launcher  monitor.Launcher
	runner    *runner.Runner
	hub       *progress.Hub
	scheduler *scheduler.Scheduler
	server    *api.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Option overrides a service NewApp would otherwise build from config.
type Option func(*options)

type options struct {
	launcher      monitor.Launcher
	transport     notify.Transport
	clock         monitor.Clock
	ids           monitor.IDGenerator
	runnerOptions []runner.Option
}

// WithLauncher replaces the configured browser launcher.
func WithLauncher(l monitor.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithTransport replaces the configured notification transport. It only
// takes effect when notifications are enabled.
func WithTransport(t notify.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithClock replaces the system clock.
func WithClock(c monitor.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator replaces the UUID cycle id generator.
func WithIDGenerator(ids monitor.IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

// WithRunnerOptions forwards options to the site runner.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(o *options) { o.runnerOptions = append(o.runnerOptions, opts...) }
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetScheduler returns the cycle scheduler.
func (a *App) GetScheduler() *scheduler.Scheduler {
	return a.scheduler
}

// GetServer returns the health/status HTTP server.
func (a *App) GetServer() *api.Server {
	return a.server
}

// GetRunner returns the site runner, used for single-site captures.
func (a *App) GetRunner() *runner.Runner {
	return a.runner
}

// GetLauncher returns the browser launcher.
func (a *App) GetLauncher() monitor.Launcher {
	return a.launcher
}

// GetReports returns the report history.
func (a *App) GetReports() monitor.ReportStore {
	return a.reports
}

// GetArtifacts returns the snapshot store.
func (a *App) GetArtifacts() monitor.ArtifactStore {
	return a.artifacts
}

// GetRegistry returns the Prometheus registry backing /metrics.
func (a *App) GetRegistry() *prometheus.Registry {
	return a.registry
}

// NewApp creates and initializes a new App from cfg and the enabled sites.
// It fails fast when any configured backend cannot be initialized; services
// already built are closed before returning the error.
func NewApp(ctx context.Context, cfg config.Config, sites []monitor.SiteConfig, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: metrics.NewRegistry(),
		clock:    o.clock,
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if a.clock == nil {
		a.clock = system.New()
	}
	ids := o.ids
	if ids == nil {
		ids = uuid.New()
	}

	logger.Info("initializing application services",
		zap.Int("sites", len(sites)),
		zap.String("artifacts", cfg.Storage.Artifacts.Provider),
		zap.String("reports", cfg.Storage.Reports.Provider))

	if a.artifacts, err = a.buildArtifactStore(ctx); err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	if a.reports, err = a.buildReportStore(ctx); err != nil {
		return nil, fmt.Errorf("init report store: %w", err)
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		Logger:         logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("events")), promSink)
	a.addCloser("progress hub", a.hub.Close)

	a.launcher = o.launcher
	if a.launcher == nil {
		a.launcher = buildLauncher(cfg.Capture)
	}
	a.runner = runner.New(a.artifacts, a.clock, a.hub, runner.Config{
		Budget: runner.TimeBudget{
			Navigation:    cfg.Capture.NavigationTimeout,
			ConditionWait: cfg.Capture.WaitTimeout,
			Settle:        cfg.Capture.SettleDelay,
		},
		Viewport: monitor.Viewport{Width: cfg.Capture.ViewportWidth, Height: cfg.Capture.ViewportHeight},
	}, logger.Named("runner"), o.runnerOptions...)

	deps := scheduler.Deps{
		Launcher:  a.launcher,
		Runner:    a.runner,
		Retention: retention.New(a.artifacts, logger.Named("retention")),
		Reports:   a.reports,
		Events:    a.hub,
		Clock:     a.clock,
		IDs:       ids,
	}
	if cfg.StatusPage.Enabled {
		if deps.Syncer, err = buildSyncer(cfg.StatusPage, logger.Named("statuspage")); err != nil {
			return nil, fmt.Errorf("init status page: %w", err)
		}
	}
	if cfg.Notify.Enabled {
		if deps.Notifier, err = a.buildNotifier(o.transport); err != nil {
			return nil, fmt.Errorf("init notifier: %w", err)
		}
	}
	if cfg.PubSub.Enabled() {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.addCloser("pubsub publisher", func(context.Context) error { return pub.Close() })
		deps.Publisher = pub
	}

	cycle, err := scheduler.NewCycle(deps, sites, scheduler.Config{
		SiteDelay:           cfg.Monitor.SiteDelay,
		Concurrency:         cfg.Monitor.Concurrency,
		MaxArtifactsPerSite: cfg.Retention.MaxArtifactsPerSite,
		Topic:               cfg.PubSub.Topic,
	}, logger.Named("cycle"))
	if err != nil {
		return nil, err
	}
	a.scheduler = scheduler.New(cycle, cfg.Monitor.Interval(), logger.Named("scheduler"))

	a.server, err = api.NewServer(a.reports, a.clock, api.Info{
		Service:     "Website Monitor",
		Description: "Monitors websites, captures snapshots, and reports their status",
		Version:     Version,
		Sites:       len(sites),
		Interval:    cfg.Monitor.Interval(),
	}, a.registry, logger.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) buildArtifactStore(ctx context.Context) (monitor.ArtifactStore, error) {
	c := a.cfg.Storage.Artifacts
	switch c.Provider {
	case "local":
		return local.New(local.Config{BaseDir: c.BaseDir})
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		a.addCloser("gcs client", func(context.Context) error { return client.Close() })
		return gcsstore.New(client, gcsstore.Config{Bucket: c.GCSBucket, Prefix: c.Prefix})
	case "memory":
		a.logger.Warn("using in-memory artifact store; snapshots are lost on exit")
		return memory.NewArtifactStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifact provider %q", c.Provider)
	}
}

func (a *App) buildReportStore(ctx context.Context) (monitor.ReportStore, error) {
	c := a.cfg.Storage.Reports
	switch c.Provider {
	case "local":
		return local.NewReportStore(c.Dir)
	case "postgres":
		store, err := postgres.NewReportStore(ctx, postgres.Config{
			DSN:          c.DSN,
			Table:        c.Table,
			EnsureSchema: true,
		})
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres", func(context.Context) error { store.Close(); return nil })
		return store, nil
	case "sqlite":
		store, err := sqlite.Open(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.addCloser("sqlite", func(context.Context) error { return store.Close() })
		return store, nil
	case "memory":
		a.logger.Warn("using in-memory report store; history is lost on exit")
		return memory.NewReportStore(), nil
	default:
		return nil, fmt.Errorf("unknown report provider %q", c.Provider)
	}
}

func buildLauncher(c config.CaptureConfig) monitor.Launcher {
	opts := renderer.Options{
		ChromePath: c.ChromePath,
		UserAgent:  c.UserAgent,
		NoSandbox:  c.NoSandbox,
		Stealth:    c.Stealth,
	}
	if c.Renderer == "rod" {
		return rodbrowser.NewLauncher(opts)
	}
	return headless.NewLauncher(opts)
}

func buildSyncer(c config.StatusPageConfig, logger *zap.Logger) (*statuspage.Syncer, error) {
	client, err := statuspage.NewClient(statuspage.Config{
		BaseURL:  c.BaseURL,
		APIToken: c.APIToken,
		Timeout:  c.Timeout,
		RateQPS:  c.RateQPS,
	})
	if err != nil {
		return nil, err
	}
	if c.APIToken == "" {
		logger.Warn("status page token not set; components are read but never updated")
	}
	return statuspage.NewSyncer(client, statuspage.SyncerConfig{
		ResponseTimeMetricID: c.ResponseTimeMetricID,
		ResolveOnRecovery:    c.ResolveOnRecovery,
	}, logger), nil
}

func (a *App) buildNotifier(transport notify.Transport) (*notify.Dispatcher, error) {
	c := a.cfg.Notify
	if transport == nil {
		switch c.Transport {
		case "log":
			transport = notify.NewLogTransport(a.logger.Named("notify"))
		default:
			mg, err := notify.NewMailgunTransport(notify.MailgunConfig{
				Domain:  c.Mailgun.Domain,
				APIKey:  c.Mailgun.APIKey,
				APIBase: c.Mailgun.APIBase,
			})
			if err != nil {
				return nil, err
			}
			transport = mg
		}
	}
	statusURL := ""
	if a.cfg.StatusPage.Enabled {
		statusURL = a.cfg.StatusPage.BaseURL
	}
	return notify.NewDispatcher(transport, a.artifacts, notify.Config{
		From:            c.Mailgun.From,
		To:              c.Mailgun.To,
		StatusPageURL:   statusURL,
		AttachArtifacts: c.AttachArtifacts,
		AttachReport:    c.AttachReport,
	}, a.logger.Named("notify")), nil
}

func (a *App) addCloser(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close shuts down services in reverse construction order. It is safe to
// call more than once.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
