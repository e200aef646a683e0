// Package rodbrowser renders sites with Chrome driven by go-rod, optionally
// with the stealth evasions applied to every page.
package rodbrowser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/renderer"
)

// Launcher starts Chrome through rod's launcher.
type Launcher struct {
	opts renderer.Options
}

// NewLauncher builds a rod launcher.
func NewLauncher(opts renderer.Options) *Launcher {
	return &Launcher{opts: opts}
}

func (l *Launcher) newProcess() *launcher.Launcher {
	proc := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if l.opts.NoSandbox {
		proc = proc.NoSandbox(true)
	}
	if l.opts.ChromePath != "" {
		proc = proc.Bin(l.opts.ChromePath)
	}
	return proc
}

// Launch starts Chrome and connects to it.
func (l *Launcher) Launch(ctx context.Context) (monitor.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	proc := l.newProcess().Context(ctx)
	controlURL, err := proc.Launch()
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("launch chrome: %w", renderer.CauseOf(ctx, err))
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		proc.Kill()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	return &Browser{browser: browser, proc: proc, opts: l.opts}, nil
}

// Browser is a connected Chrome process.
type Browser struct {
	browser   *rod.Browser
	proc      *launcher.Launcher
	opts      renderer.Options
	closeOnce sync.Once
	closeErr  error
}

// OpenSession opens a page in a new incognito context.
func (b *Browser) OpenSession(ctx context.Context, viewport monitor.Viewport) (monitor.Session, error) {
	incognito, err := b.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("open incognito context: %w", renderer.CauseOf(ctx, err))
	}
	var page *rod.Page
	if b.opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", renderer.CauseOf(ctx, err))
	}
	if b.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.opts.UserAgent}); err != nil {
			_ = incognito.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewport.Width,
		Height:            viewport.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}
	return &Session{page: page, incognito: incognito}, nil
}

// Close disconnects and kills Chrome.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		if err := b.browser.Close(); err != nil {
			b.closeErr = fmt.Errorf("close chrome: %w", err)
		}
		b.proc.Kill()
	})
	return b.closeErr
}

// Session is one page inside its own incognito context.
type Session struct {
	page      *rod.Page
	incognito *rod.Browser
	closeOnce sync.Once
	closeErr  error
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %w", monitor.ErrNavigation, url, renderer.CauseOf(ctx, err))
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %s: wait load: %w", monitor.ErrNavigation, url, renderer.CauseOf(ctx, err))
	}
	return nil
}

// WaitFor polls until selector matches an element.
func (s *Session) WaitFor(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", monitor.ErrConditionTimeout, selector, renderer.CauseOf(ctx, err))
	}
	return nil
}

// Snapshot captures the viewport or the full page.
func (s *Session) Snapshot(ctx context.Context, opts monitor.ScreenshotOptions) ([]byte, error) {
	opts = opts.Normalized()
	data, err := s.page.Context(ctx).Screenshot(opts.FullPage, screenshotRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %w", monitor.ErrCapture, renderer.CauseOf(ctx, err))
	}
	return data, nil
}

func screenshotRequest(opts monitor.ScreenshotOptions) *proto.PageCaptureScreenshot {
	if opts.Format != monitor.FormatJPEG {
		return &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	}
	quality := opts.Quality
	return &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatJpeg, Quality: &quality}
}

// EvaluateStats counts elements, images, scripts and stylesheets.
func (s *Session) EvaluateStats(ctx context.Context) (monitor.PageStats, error) {
	res, err := s.page.Context(ctx).Eval(renderer.StatsFunction)
	if err != nil {
		return monitor.PageStats{}, fmt.Errorf("%w: evaluate stats: %w", monitor.ErrCapture, renderer.CauseOf(ctx, err))
	}
	var stats monitor.PageStats
	if err := res.Value.Unmarshal(&stats); err != nil {
		return monitor.PageStats{}, fmt.Errorf("%w: decode stats: %w", monitor.ErrCapture, err)
	}
	return stats, nil
}

// Close closes the page and its incognito context.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.page.Close(), s.incognito.Close())
	})
	return s.closeErr
}
