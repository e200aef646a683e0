package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
	"github.com/JakeFAU/sitewatch/internal/report"
)

type captureOptions struct {
	id       string
	name     string
	wait     string
	format   string
	quality  int
	viewport bool
}

func newCaptureCmd(root *rootOptions) *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Capture a single URL and print the result as JSON",
		Long: `Runs the site runner once against an ad-hoc site using the configured
browser, timeouts and artifact store. Nothing is aggregated, published or
synced. Exits 2 when the capture fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.id, "id", "", "site id used for the artifact path (default: the URL host)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (default: the URL host)")
	cmd.Flags().StringVar(&opts.wait, "wait", "", "CSS selector to wait for after load")
	cmd.Flags().StringVar(&opts.format, "format", string(monitor.FormatPNG), "snapshot format: png or jpeg")
	cmd.Flags().IntVar(&opts.quality, "quality", 0, "jpeg quality (default 90)")
	cmd.Flags().BoolVar(&opts.viewport, "viewport-only", false, "capture the viewport instead of the full page")
	return cmd
}

func (o *captureOptions) site(raw string) (monitor.SiteConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return monitor.SiteConfig{}, fmt.Errorf("%w: parse url: %w", monitor.ErrConfig, err)
	}
	site := monitor.SiteConfig{
		ID:            o.id,
		Name:          o.name,
		URL:           raw,
		Enabled:       true,
		WaitCondition: o.wait,
		Screenshot: monitor.ScreenshotOptions{
			FullPage: !o.viewport,
			Format:   monitor.ImageFormat(o.format),
			Quality:  o.quality,
		}.Normalized(),
	}
	if site.ID == "" {
		site.ID = u.Hostname()
	}
	if site.Name == "" {
		site.Name = u.Hostname()
	}
	if err := site.Validate(); err != nil {
		return monitor.SiteConfig{}, err
	}
	return site, nil
}

func runCapture(cmd *cobra.Command, root *rootOptions, opts *captureOptions, raw string) error {
	site, err := opts.site(raw)
	if err != nil {
		return fatal(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, _, err := bootstrap(ctx, root, false)
	if err != nil {
		return err
	}
	defer closeApp(a)
	logger := a.GetLogger()

	browser, err := a.GetLauncher().Launch(ctx)
	if err != nil {
		logger.Error("browser launch failed", zap.Error(err))
		return fatal(fmt.Errorf("launch browser: %w", err))
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			logger.Warn("failed to close browser", zap.Error(cerr))
		}
	}()

	cycleID := "capture-" + time.Now().UTC().Format("20060102T150405Z")
	result := a.GetRunner().Capture(ctx, browser, cycleID, site)

	if err := writeJSON(cmd, result); err != nil {
		return fatal(err)
	}
	if !result.Success {
		return &exitError{code: report.ExitSitesFailed}
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
