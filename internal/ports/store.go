package ports

import (
	"context"
	"time"

	"repoforge/internal/types"
)

// StorePort is the persistence boundary for projects, repos and binaries.
// Every method commits on its own; the compare-and-set transitions
// (MarkQueued, BeginBuild, ClaimForPurge) report whether they won.
// SaveRepo overwrites every column and is reserved for forced resets;
// MarkDirty, ClearDirty and SetRepoType touch only the columns they own.
type StorePort interface {
	Ping(ctx context.Context) error

	GetProject(ctx context.Context, name string) (types.Project, error)
	GetOrCreateProject(ctx context.Context, name string) (types.Project, error)
	DeleteProjectIfEmpty(ctx context.Context, projectID int64) (bool, error)

	GetRepo(ctx context.Context, id int64) (types.Repo, error)
	FindRepo(ctx context.Context, key types.RepoKey) (types.Repo, error)
	FindOrCreateRepo(ctx context.Context, key types.RepoKey, now time.Time) (types.Repo, error)
	SaveRepo(ctx context.Context, repo types.Repo) error
	DeleteRepo(ctx context.Context, id int64) error
	ListDirtyRepos(ctx context.Context) ([]types.Repo, error)
	ListRepos(ctx context.Context, filter types.RepoFilter) ([]types.Repo, error)

	MarkDirty(ctx context.Context, id int64, now time.Time, inferred types.RepoType) error
	ClearDirty(ctx context.Context, id int64) error
	SetRepoType(ctx context.Context, id int64, repoType types.RepoType) error

	MarkQueued(ctx context.Context, id int64, now time.Time) (bool, error)
	UnmarkQueued(ctx context.Context, id int64) error
	BeginBuild(ctx context.Context, id int64, path string, now time.Time) (bool, error)
	FinishBuild(ctx context.Context, id int64, now time.Time) error
	ClaimForPurge(ctx context.Context, id int64) (bool, error)
	ReleasePurge(ctx context.Context, id int64) error

	AttachBinary(ctx context.Context, repo types.Repo, binary types.Binary) (types.Binary, error)
	GetBinary(ctx context.Context, id int64) (types.Binary, error)
	DeleteBinary(ctx context.Context, id int64) error
	BinariesForRepo(ctx context.Context, repoID int64) ([]types.Binary, error)
	FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error)

	Close() error
}
