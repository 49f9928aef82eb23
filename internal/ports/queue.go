package ports

import (
	"context"

	"repoforge/internal/types"
)

type JobHandler func(ctx context.Context, job types.BuildJob) error

// QueuePort accepts build jobs and runs them on workers after their delay.
type QueuePort interface {
	Enqueue(ctx context.Context, job types.BuildJob) error
	OnJob(queue string, handler JobHandler)
	Workers() int
}
