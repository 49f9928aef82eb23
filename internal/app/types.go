package app

import "repoforge/internal/types"

type PollResult struct {
	Queued   []int64
	Built    []int64
	Inferred []int64
	Skipped  int
}

type BuildResult struct {
	Repo types.Repo
}

type PurgeResult struct {
	Plan    types.PurgePlan
	Deleted []types.Repo
	Skipped []types.Repo
}

type AddBinaryRequest struct {
	Key    types.RepoKey
	Arch   string
	Name   string
	Source string
	Force  bool
}

type RemoveBinaryResult struct {
	Binary         types.Binary
	RepoDeleted    bool
	ProjectDeleted bool
}

type HealthResult struct {
	Healthy bool
	Failed  string
	Error   string
}
