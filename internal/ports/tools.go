package ports

import (
	"context"

	"repoforge/internal/types"
)

type CommandRunnerPort interface {
	Run(ctx context.Context, command types.Command) error
}

// DistributionsPort renders the per-project reprepro configuration and
// returns the directory to pass as --confdir.
type DistributionsPort interface {
	WriteDistributions(ctx context.Context, project string, fields map[string]string) (string, error)
}

type DiskUsagePort interface {
	UsedPercent(ctx context.Context, path string) (float64, error)
}

// BinaryStoragePort keeps uploaded files under the binary root.
type BinaryStoragePort interface {
	// Put copies source into place and returns binary with Path, Size and
	// Checksum filled in.
	Put(ctx context.Context, binary types.Binary, source string) (types.Binary, error)
	Exists(ctx context.Context, path string) bool
	// Remove deletes a stored file; a missing file is not an error.
	Remove(ctx context.Context, path string) error
}
