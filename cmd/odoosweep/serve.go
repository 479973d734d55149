package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aatumaykin/odoosweep/internal/cleanup"
	"github.com/aatumaykin/odoosweep/internal/constants"
	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/server"
	"github.com/aatumaykin/odoosweep/internal/version"
)

const shutdownTimeout = 30 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled cleanups and the HTTP trigger",
	Long: `Start the scheduler for every [[schedules]] entry and, when
[server] is enabled, the HTTP endpoint with /healthz, /metrics and the
/v1/instances run triggers. Stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a.log.Info(constants.MsgServeStarting,
			logger.Field{Key: "version", Value: version.Version},
			logger.Field{Key: "git_commit", Value: version.GitCommit},
			logger.Field{Key: "instances", Value: a.registry.Names()},
			logger.Field{Key: "schedules", Value: len(a.cfg.Schedules)},
			logger.Field{Key: "server", Value: a.cfg.Server.Enabled})

		scheduler := cleanup.NewScheduler(a.service, a.log)
		for _, job := range a.cfg.Jobs() {
			if err := scheduler.AddJob(job); err != nil {
				return err
			}
		}
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		g, gctx := errgroup.WithContext(ctx)

		if a.cfg.Server.Enabled {
			srv := server.New(a.service, a.registry, a.gatherer, server.Defaults{
				DaysThreshold: a.cfg.Cleanup.DaysThreshold,
				Reset:         a.cfg.ResetOptions(true),
			}, a.log)

			g.Go(func() error {
				return srv.Start(a.cfg.Server.Listen)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		g.Go(func() error {
			<-gctx.Done()
			a.log.Info(constants.MsgServeStopping)
			return nil
		})

		return g.Wait()
	},
}
