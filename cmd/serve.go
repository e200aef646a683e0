package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /health and /status without running cycles",
		Long: `Runs only the health/status HTTP server over the configured report
store. Useful next to a separate "sitewatch --once" job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cfg, err := bootstrap(ctx, opts, false)
			if err != nil {
				return err
			}
			defer closeApp(a)

			shutdown := startServer(ctx, stop, a, cfg.Server.Port)
			<-ctx.Done()
			a.GetLogger().Info("shutdown initiated")
			shutdown()
			return nil
		},
	}
}
