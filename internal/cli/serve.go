package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"repoforge/internal/app"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the poller, build workers, purge and health loops",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().Duration("polling-cycle", 0, "Interval between poll cycles")
	cmd.Flags().Duration("quiet-time", 0, "Delay applied to every queued build")
	_ = viper.BindPFlag("polling_cycle", cmd.Flags().Lookup("polling-cycle"))
	_ = viper.BindPFlag("quiet_time", cmd.Flags().Lookup("quiet-time"))
	return cmd
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to shut down cleanly")
		}
	}()
	if err := rt.Queue.Start(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("hostname", rt.Service.Config.Hostname).Msg("repoforge started")
	if err := app.NewDaemon(rt.Service).Run(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Msg("repoforge stopped")
	return nil
}
