// Package headless renders sites with headless Chrome driven by chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/renderer"
)

// Launcher starts one Chrome process per call to Launch.
type Launcher struct {
	opts renderer.Options
}

// NewLauncher builds a chromedp launcher.
func NewLauncher(opts renderer.Options) *Launcher {
	return &Launcher{opts: opts}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ChromePath))
	}
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	return opts
}

// Launch starts Chrome. The browser outlives ctx; release it with Close.
func (l *Launcher) Launch(ctx context.Context) (monitor.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startCtx, stop := renderer.Bind(browserCtx, ctx)
	defer stop()
	// Run with no actions starts the browser process and its first tab.
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch chrome: %w", renderer.CauseOf(ctx, err))
	}
	return &Browser{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}, nil
}

// Browser is a running Chrome process.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

// OpenSession creates a tab inside a fresh browser context so cookies and
// cache never leak between sites.
func (b *Browser) OpenSession(ctx context.Context, viewport monitor.Viewport) (monitor.Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	runCtx, stop := renderer.Bind(tabCtx, ctx)
	defer stop()
	err := chromedp.Run(runCtx, chromedp.EmulateViewport(
		int64(viewport.Width), int64(viewport.Height), chromedp.EmulateScale(1)))
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open session: %w", renderer.CauseOf(ctx, err))
	}
	return &Session{ctx: tabCtx, cancel: tabCancel}, nil
}

// Close shuts Chrome down. Repeated calls return the first result.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if err := chromedp.Cancel(b.ctx); err != nil {
			b.closeErr = fmt.Errorf("close chrome: %w", err)
		}
		b.cancel()
		b.allocCancel()
	})
	return b.closeErr
}

// Session is one isolated tab.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, stop := renderer.Bind(s.ctx, ctx)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return renderer.CauseOf(ctx, err)
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %w", monitor.ErrNavigation, url, err)
	}
	return nil
}

// WaitFor blocks until selector matches a visible element.
func (s *Session) WaitFor(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: %s: %w", monitor.ErrConditionTimeout, selector, err)
	}
	return nil
}

// Snapshot captures the viewport or the full page.
func (s *Session) Snapshot(ctx context.Context, opts monitor.ScreenshotOptions) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = captureParams(opts).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %w", monitor.ErrCapture, err)
	}
	return buf, nil
}

// captureParams builds the screenshot command. A full-page capture clips to
// the CSS content size and renders beyond the viewport.
func captureParams(opts monitor.ScreenshotOptions) fullPageCapture {
	opts = opts.Normalized()
	params := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
	if opts.Format == monitor.FormatJPEG {
		params = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(opts.Quality))
	}
	return fullPageCapture{params: params, fullPage: opts.FullPage}
}

type fullPageCapture struct {
	params   *page.CaptureScreenshotParams
	fullPage bool
}

func (c fullPageCapture) Do(ctx context.Context) ([]byte, error) {
	params := c.params
	if c.fullPage {
		_, _, _, _, _, contentSize, err := page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("layout metrics: %w", err)
		}
		params = params.
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{X: 0, Y: 0, Width: contentSize.Width, Height: contentSize.Height, Scale: 1})
	}
	return params.Do(ctx)
}

// EvaluateStats counts elements, images, scripts and stylesheets.
func (s *Session) EvaluateStats(ctx context.Context) (monitor.PageStats, error) {
	var stats monitor.PageStats
	if err := s.run(ctx, chromedp.Evaluate(renderer.StatsExpression, &stats)); err != nil {
		return monitor.PageStats{}, fmt.Errorf("%w: evaluate stats: %w", monitor.ErrCapture, err)
	}
	return stats, nil
}

// Close closes the tab and disposes its browser context.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
