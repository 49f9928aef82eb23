package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/shirou/gopsutil/v4/disk"

	"repoforge/internal/core"
	"repoforge/internal/ports"
)

type DiskUsageAdapter struct{}

func NewDiskUsageAdapter() DiskUsageAdapter {
	return DiskUsageAdapter{}
}

func (DiskUsageAdapter) UsedPercent(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read disk usage").
			WithCause(err)
	}
	return usage.UsedPercent, nil
}

var _ ports.DiskUsagePort = DiskUsageAdapter{}

// WorkersCheckName names the check that only a serving process can pass.
const WorkersCheckName = "workers"

func WorkersCheck(queue ports.QueuePort) core.HealthCheck {
	return core.HealthCheck{
		Name: WorkersCheckName,
		Check: func(ctx context.Context) error {
			if queue == nil || queue.Workers() == 0 {
				return errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg("no build workers are running")
			}
			return nil
		},
	}
}

func DatabaseCheck(store ports.StorePort) core.HealthCheck {
	return core.HealthCheck{
		Name: "database",
		Check: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg("database is not reachable").
					WithCause(err)
			}
			return nil
		},
	}
}

// FailCheck fails while the maintenance marker file exists.
func FailCheck(path string) core.HealthCheck {
	return core.HealthCheck{
		Name: "fail_check",
		Check: func(ctx context.Context) error {
			if path == "" {
				return nil
			}
			_, err := os.Stat(path)
			if err == nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg(fmt.Sprintf("maintenance marker %s is present", path))
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to stat maintenance marker").
				WithCause(err)
		},
	}
}

func DiskUsageCheck(usage ports.DiskUsagePort, path string, threshold float64) core.HealthCheck {
	return core.HealthCheck{
		Name: "disk_usage",
		Check: func(ctx context.Context) error {
			used, err := usage.UsedPercent(ctx, path)
			if err != nil {
				return err
			}
			if used > threshold {
				return errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg(fmt.Sprintf("disk usage of %s is %.1f%%, above %.1f%%", path, used, threshold))
			}
			return nil
		},
	}
}
