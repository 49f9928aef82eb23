package adapters

import (
	"context"
	"os/exec"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"repoforge/internal/ports"
	"repoforge/internal/shared"
	"repoforge/internal/types"
)

// ExecCommandRunner runs the external repository tools on the host.
type ExecCommandRunner struct{}

func NewExecCommandRunner() ExecCommandRunner {
	return ExecCommandRunner{}
}

func (ExecCommandRunner) Run(ctx context.Context, command types.Command) error {
	if strings.TrimSpace(command.Name) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("command name is empty")
	}
	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(command.Name + " command failed").
			WithCause(shared.CommandError(output, err))
	}
	if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
		log.Ctx(ctx).Debug().Str("command", command.Name).Msg(trimmed)
	}
	return nil
}

var _ ports.CommandRunnerPort = ExecCommandRunner{}
