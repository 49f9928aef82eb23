package app

import (
	"context"
	"time"

	assert "github.com/ZanzyTHEbar/assert-lib"

	"repoforge/internal/adapters"
	"repoforge/internal/core"
	"repoforge/internal/ports"
	"repoforge/internal/types"
)

type Service struct {
	Store         ports.StorePort
	Queue         ports.QueuePort
	Notifier      ports.NotifierPort
	Runner        ports.CommandRunnerPort
	Distributions ports.DistributionsPort
	Storage       ports.BinaryStoragePort
	Health        core.HealthChecker
	Config        types.Config
	Clock         func() time.Time
}

// NewService wires the host adapters around the given store, queue and
// notifier.
func NewService(ctx context.Context, cfg types.Config, store ports.StorePort, queue ports.QueuePort, notifier ports.NotifierPort) Service {
	assert.NotEmpty(ctx, cfg.Tools.Createrepo, "tools.createrepo must be set")
	assert.NotEmpty(ctx, cfg.Tools.Reprepro, "tools.reprepro must be set")
	return Service{
		Store:         store,
		Queue:         queue,
		Notifier:      notifier,
		Runner:        adapters.NewExecCommandRunner(),
		Distributions: adapters.NewDistributionsFileAdapter(cfg.DistributionsRoot),
		Storage:       adapters.NewBinaryFileStorage(cfg.BinaryRoot),
		Health: core.NewHealthChecker(
			adapters.WorkersCheck(queue),
			adapters.DatabaseCheck(store),
			adapters.FailCheck(cfg.Health.FailCheckTriggerPath),
			adapters.DiskUsageCheck(adapters.NewDiskUsageAdapter(), diskUsagePath(cfg), cfg.Health.DiskUsageThreshold),
		),
		Config: cfg,
		Clock:  time.Now,
	}
}

func (s Service) builder() core.Builder {
	return core.NewBuilder(s.Store, s.Runner, s.Distributions, s.Notifier, s.Config, s.Clock)
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func diskUsagePath(cfg types.Config) string {
	if cfg.ReposRoot != "" {
		return cfg.ReposRoot
	}
	return "/"
}
