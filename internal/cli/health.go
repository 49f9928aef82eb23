package cli

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"repoforge/internal/adapters"
	"repoforge/internal/core"
)

type healthOptions struct {
	Ping bool
}

func newHealthCommand() *cobra.Command {
	opts := healthOptions{}
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Run the health checks and optionally ping the monitor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Ping = resolveBool(cmd, opts.Ping, "health.ping", "ping")
			return runHealth(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Ping, "ping", false, "Send the health ping when every check passes")
	return cmd
}

func runHealth(ctx context.Context, opts healthOptions) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	rt.Service.Health = oneShotHealth(rt.Service.Health)
	log.Ctx(ctx).Info().Str("check", adapters.WorkersCheckName).Msg("skipping check that needs a serving process")
	result := rt.Service.CheckHealth(ctx)
	if !result.Healthy {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%s: %s check failed: %s", unhealthyMessagePrefix, result.Failed, result.Error))
	}
	fmt.Println("healthy")
	if opts.Ping {
		rt.Service.Config.Health.Ping = true
		if rt.Service.PostIfHealthy(ctx) {
			fmt.Println("health ping sent")
		}
	}
	return nil
}

// oneShotHealth drops the workers check; a one-shot command owns no build
// pool.
func oneShotHealth(checker core.HealthChecker) core.HealthChecker {
	return checker.Without(adapters.WorkersCheckName)
}
