package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"repoforge/internal/app"
)

type binaryAddOptions struct {
	Key   repoKeyOptions
	Arch  string
	Name  string
	Force bool
}

func newBinaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binary",
		Short: "Add or remove uploaded binaries",
	}
	cmd.AddCommand(newBinaryAddCommand())
	cmd.AddCommand(newBinaryRemoveCommand())
	return cmd
}

func newBinaryAddCommand() *cobra.Command {
	opts := binaryAddOptions{}
	cmd := &cobra.Command{
		Use:   "add FILE",
		Short: "Store a binary and mark the repositories that carry it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBinaryAdd(cmd.Context(), args[0], opts)
		},
	}
	opts.Key.register(cmd)
	cmd.Flags().StringVar(&opts.Arch, "arch", "", "Binary architecture (x86_64, noarch, source, ...)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Stored file name (defaults to the base name of FILE)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Replace an existing binary with the same name")
	_ = cmd.MarkFlagRequired("arch")
	return cmd
}

func newBinaryRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Delete a binary and any repository or project it leaves empty",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeInvalidArgument).
					WithMsg("binary id must be an integer").
					WithCause(err)
			}
			return runBinaryRemove(cmd.Context(), id)
		},
	}
}

func runBinaryAdd(ctx context.Context, source string, opts binaryAddOptions) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	binary, err := rt.Service.AddBinary(ctx, app.AddBinaryRequest{
		Key:    opts.Key.key(),
		Arch:   opts.Arch,
		Name:   opts.Name,
		Source: source,
		Force:  opts.Force,
	})
	if err != nil {
		return err
	}
	fmt.Printf("added binary %d: %s size=%d sha512=%s\n", binary.ID, binary.Path, binary.Size, binary.Checksum)
	return nil
}

func runBinaryRemove(ctx context.Context, id int64) (err error) {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	result, err := rt.Service.RemoveBinary(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("removed binary %d: %s repo_deleted=%t project_deleted=%t\n",
		result.Binary.ID, result.Binary.Name, result.RepoDeleted, result.ProjectDeleted)
	return nil
}
