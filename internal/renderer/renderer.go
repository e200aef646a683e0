// Package renderer holds what the browser adapters share: launch options and
// the page statistics script.
package renderer

import (
	"context"
	"time"
)

// Options configure a browser adapter.
type Options struct {
	// ChromePath overrides the browser binary. Empty uses auto-detection.
	ChromePath string
	// UserAgent overrides the browser user agent when set.
	UserAgent string
	// NoSandbox disables the Chrome sandbox, needed in most containers.
	NoSandbox bool
	// Stealth applies anti-automation evasions (rod adapter only).
	Stealth bool
}

// StatsFunction is a JavaScript arrow function returning the page statistics
// object. Its keys match monitor.PageStats JSON tags.
const StatsFunction = `() => ({
	title: document.title || "",
	elementCount: document.querySelectorAll("*").length,
	imageCount: document.images.length,
	scriptCount: document.scripts.length,
	stylesheetCount: document.styleSheets.length
})`

// StatsExpression is StatsFunction as an immediately invoked expression.
const StatsExpression = "(" + StatsFunction + ")()"

// Bind derives an adapter context from parent that also ends when ctx is
// done, carrying ctx's deadline. parent holds the adapter's browser state;
// ctx is the caller's operation budget.
func Bind(parent, ctx context.Context) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(parent, deadline)
	} else {
		runCtx, cancel = context.WithCancel(parent)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// CauseOf prefers the caller's context error so a deadline surfaces as
// context.DeadlineExceeded even when the adapter reports something vaguer.
func CauseOf(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// DefaultLaunchTimeout bounds browser startup.
const DefaultLaunchTimeout = 30 * time.Second
