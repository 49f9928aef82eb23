package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"repoforge/internal/adapters"
	"repoforge/internal/app"
	"repoforge/internal/ports"
	"repoforge/internal/types"
)

// runtime owns the long-lived adapters behind a Service for one command
// invocation.
type runtime struct {
	Service  app.Service
	Store    ports.StorePort
	Queue    *adapters.MemoryQueue
	Notifier *adapters.HTTPNotifier
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := adapters.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	queue := adapters.NewMemoryQueue(cfg.BuildWorkers)
	notifier := adapters.NewHTTPNotifier(cfg.Callback, cfg.Hostname)
	service := app.NewService(ctx, cfg, store, queue, notifier)
	service.RegisterWorkers()
	log.Ctx(ctx).Debug().
		Str("driver", cfg.Database.Driver).
		Str("hostname", cfg.Hostname).
		Msg("runtime ready")
	return &runtime{
		Service:  service,
		Store:    store,
		Queue:    queue,
		Notifier: notifier,
	}, nil
}

func openStore(ctx context.Context, database types.DatabaseConfig) (ports.StorePort, error) {
	if database.Driver == adapters.MemoryDriver {
		log.Ctx(ctx).Warn().Msg("using the in-memory store, state is lost on exit")
		return adapters.NewMemoryStore(), nil
	}
	return adapters.OpenSQLStore(ctx, database.Driver, database.DSN)
}

// Close stops the workers, then flushes pending callbacks and closes the
// store.
func (r *runtime) Close() error {
	queueErr := r.Queue.Close()
	r.Notifier.Wait()
	return errors.Join(queueErr, r.Store.Close())
}
