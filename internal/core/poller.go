package core

import (
	"repoforge/internal/types"
)

type DispatchAction int

const (
	DispatchSkip DispatchAction = iota
	DispatchInferType
	DispatchBuildInline
	DispatchEnqueue
)

func (a DispatchAction) String() string {
	switch a {
	case DispatchInferType:
		return "infer-type"
	case DispatchBuildInline:
		return "build-inline"
	case DispatchEnqueue:
		return "enqueue"
	}
	return "skip"
}

// Dispatch is what one poll cycle should do with one dirty repo.
type Dispatch struct {
	Action DispatchAction
	Queue  string
	Type   types.RepoType
	Reason string
}

// DecideDispatch maps a candidate repo onto the poller state machine.
// binaries is only consulted when the repo type is still unknown.
func DecideDispatch(repo types.Repo, binaries []types.Binary) Dispatch {
	if !repo.NeedsUpdate || repo.IsQueued {
		return Dispatch{Action: DispatchSkip, Reason: "repo is not dirty"}
	}
	if repo.IsUpdating {
		return Dispatch{Action: DispatchSkip, Reason: "repo is being built"}
	}
	switch repo.Type {
	case types.RepoTypeRPM, types.RepoTypeDeb:
		return Dispatch{Action: DispatchEnqueue, Queue: types.QueueForRepoType(repo.Type), Type: repo.Type}
	case types.RepoTypeRaw:
		return Dispatch{Action: DispatchBuildInline, Type: repo.Type}
	}
	for _, binary := range binaries {
		if inferred := types.InferRepoType(binary.Extension()); inferred != types.RepoTypeUnknown {
			return Dispatch{Action: DispatchInferType, Type: inferred}
		}
	}
	return Dispatch{Action: DispatchSkip, Reason: "failed to infer repository type"}
}
