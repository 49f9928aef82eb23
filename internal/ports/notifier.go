package ports

import (
	"context"

	"repoforge/internal/types"
)

// NotifierPort reports lifecycle transitions. Implementations never return
// errors to the caller; delivery failures are logged.
type NotifierPort interface {
	Notify(ctx context.Context, status types.RepoStatus, repo types.Repo)
	Ping(ctx context.Context, url string)
}
