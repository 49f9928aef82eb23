package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"repoforge/internal/types"
)

type purgeOptions struct {
	DryRun bool
	Force  bool
}

func newPurgeCommand() *cobra.Command {
	opts := purgeOptions{}
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete repositories selected by the retention rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPurge(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only report the repositories that would be deleted")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Purge even when purge.enabled is false")
	return cmd
}

func runPurge(ctx context.Context, opts purgeOptions) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if opts.DryRun {
		plan, err := rt.Service.PlanPurge(ctx, time.Time{})
		if err != nil {
			return err
		}
		for _, repo := range plan.Delete {
			printPurgeCandidate(repo)
		}
		fmt.Printf("dry-run: delete=%d selections=%d\n", len(plan.Delete), len(plan.Selections))
		return nil
	}
	if opts.Force {
		rt.Service.Config.Purge.Enabled = true
	}
	result, err := rt.Service.PurgeRepos(ctx, time.Time{})
	fmt.Printf("purged repos: deleted=%d skipped=%d\n", len(result.Deleted), len(result.Skipped))
	return err
}

func printPurgeCandidate(repo types.Repo) {
	fmt.Printf("would delete: %s modified=%s\n", repo.Key, repo.Modified.Format(time.RFC3339))
}
