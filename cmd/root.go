package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/app"
	"github.com/JakeFAU/sitewatch/internal/config"
	"github.com/JakeFAU/sitewatch/internal/logging"
	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/report"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fatal(err error) error {
	return &exitError{code: report.ExitFatal, err: err}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	once       bool
}

// newApp is the application factory. It's a variable so tests can swap in
// fakes for the browser and notification transport.
var newApp = func(ctx context.Context, cfg config.Config, sites []monitor.SiteConfig, logger *zap.Logger) (*app.App, error) {
	return app.NewApp(ctx, cfg, sites, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sitewatch",
		Short: "Monitors websites with a headless browser and reports their status.",
		Long: `sitewatch loads a list of sites, visits each one in an isolated headless
browser session, stores a snapshot, and aggregates the results into a cycle
report. Reports are persisted, optionally mirrored to a status page,
published, and sent to operators.

Without --once it runs a cycle immediately and then on a fixed interval
while serving /health and /status.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMonitor(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML or JSON); env vars use the SITEWATCH_ prefix")
	cmd.Flags().BoolVar(&opts.once, "once", false, "run a single cycle and exit (0 all up, 2 any site down)")

	cmd.AddCommand(newServeCmd(opts), newCaptureCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return report.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code == report.ExitFatal && ee.err != nil {
			fmt.Fprintln(os.Stderr, "sitewatch:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "sitewatch:", err)
	return report.ExitFatal
}

// bootstrap loads configuration, builds the logger and the App. When
// requireSites is false a broken sites file is logged and ignored.
func bootstrap(ctx context.Context, opts *rootOptions, requireSites bool) (*app.App, config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, config.Config{}, fatal(fmt.Errorf("%w: %w", monitor.ErrConfig, err))
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, cfg, fatal(fmt.Errorf("logger init failed: %w", err))
	}
	zap.ReplaceGlobals(logger)

	sites, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		if requireSites {
			logger.Error("failed to load sites", zap.String("path", cfg.SitesFile), zap.Error(err))
			return nil, cfg, fatal(err)
		}
		logger.Warn("sites file not loaded", zap.String("path", cfg.SitesFile), zap.Error(err))
	}

	a, err := newApp(ctx, cfg, sites, logger)
	if err != nil {
		logger.Error("failed to initialize application services", zap.Error(err))
		return nil, cfg, fatal(err)
	}
	return a, cfg, nil
}

func runMonitor(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, cfg, err := bootstrap(ctx, opts, true)
	if err != nil {
		return err
	}
	defer closeApp(a)
	logger := a.GetLogger()

	if opts.once {
		rep, code := a.GetScheduler().RunOnce(ctx)
		if code != report.ExitOK {
			return &exitError{code: code, err: fmt.Errorf("%d of %d sites failed", rep.Failed, rep.TotalSites)}
		}
		return nil
	}

	if cfg.Server.Enabled {
		shutdown := startServer(ctx, stop, a, cfg.Server.Port)
		defer shutdown()
	}
	if err := a.GetScheduler().RunContinuous(ctx); err != nil {
		return fatal(err)
	}
	logger.Info("shutdown complete")
	return nil
}

// startServer serves the App's HTTP handler until the returned function is
// called. A listen failure cancels the run through stop.
func startServer(ctx context.Context, stop context.CancelFunc, a *app.App, port int) func() {
	logger := a.GetLogger()
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.GetServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}
}

func closeApp(a *app.App) {
	logger := a.GetLogger()
	a.Close()
	_ = logger.Sync()
}
