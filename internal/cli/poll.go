package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type pollOptions struct {
	Wait time.Duration
}

func newPollCommand() *cobra.Command {
	opts := pollOptions{}
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle and wait for the builds it queued",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoll(cmd.Context(), opts)
		},
	}
	cmd.Flags().DurationVar(&opts.Wait, "wait", 30*time.Minute, "Maximum time to wait for queued builds")
	return cmd
}

func runPoll(ctx context.Context, opts pollOptions) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if err := rt.Queue.Start(ctx); err != nil {
		return err
	}
	result, pollErr := rt.Service.PollRepos(ctx)
	if len(result.Queued) > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, opts.Wait)
		defer cancel()
		if err := rt.Queue.Drain(waitCtx); err != nil {
			return err
		}
	}
	fmt.Printf("polled: queued=%d built=%d inferred=%d skipped=%d\n",
		len(result.Queued), len(result.Built), len(result.Inferred), result.Skipped)
	return pollErr
}
