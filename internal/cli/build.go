package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"repoforge/internal/types"
)

func newBuildCommand() *cobra.Command {
	opts := repoKeyOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a repository now, bypassing the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), opts.key())
		},
	}
	opts.register(cmd)
	return cmd
}

func newUpdateCommand() *cobra.Command {
	opts := repoKeyOptions{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Request a rebuild of a repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd.Context(), opts.key())
		},
	}
	opts.register(cmd)
	return cmd
}

func newRecreateCommand() *cobra.Command {
	opts := repoKeyOptions{}
	cmd := &cobra.Command{
		Use:   "recreate",
		Short: "Remove a repository from disk and rebuild it from scratch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecreate(cmd.Context(), opts.key())
		},
	}
	opts.register(cmd)
	return cmd
}

func runBuild(ctx context.Context, key types.RepoKey) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	result, err := rt.Service.BuildRepo(ctx, key)
	if err != nil {
		return err
	}
	printRepo("built", result.Repo)
	return nil
}

func runUpdate(ctx context.Context, key types.RepoKey) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	repo, err := rt.Service.Update(ctx, key)
	if err != nil {
		return err
	}
	printRepo("update requested", repo)
	return nil
}

func runRecreate(ctx context.Context, key types.RepoKey) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	repo, err := rt.Service.Recreate(ctx, key)
	if err != nil {
		return err
	}
	printRepo("recreate requested", repo)
	return nil
}

func printRepo(action string, repo types.Repo) {
	fmt.Printf("%s: %s type=%s state=%s path=%s\n", action, repo.Key, repo.Type, repo.State(), repo.Path)
}
