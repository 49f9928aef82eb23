package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Daemon drives the recurring loops of a serve process: polling, purging
// and health pings.
type Daemon struct {
	Service Service
}

func NewDaemon(service Service) Daemon {
	return Daemon{Service: service}
}

// Run blocks until ctx is cancelled.
func (d Daemon) Run(ctx context.Context) error {
	cfg := d.Service.Config
	if recovered, err := d.Service.RecoverInterrupted(ctx); err != nil {
		return err
	} else if recovered > 0 {
		log.Ctx(ctx).Warn().Int("repos", recovered).Msg("reset repos interrupted by a previous run")
	}

	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		enabled  bool
		run      func(ctx context.Context)
	}{
		{name: "poll", interval: cfg.PollingCycle, enabled: true, run: d.poll},
		{name: "purge", interval: cfg.Purge.Interval, enabled: cfg.Purge.Enabled, run: d.purge},
		{name: "health", interval: cfg.Health.PingInterval, enabled: cfg.Health.Ping, run: d.ping},
	}
	for _, loop := range loops {
		if !loop.enabled || loop.interval <= 0 {
			log.Ctx(ctx).Info().Str("loop", loop.name).Msg("loop disabled")
			continue
		}
		wg.Add(1)
		go func(name string, interval time.Duration, run func(ctx context.Context)) {
			defer wg.Done()
			every(ctx, name, interval, run)
		}(loop.name, loop.interval, loop.run)
	}
	wg.Wait()
	return nil
}

func every(ctx context.Context, name string, interval time.Duration, run func(ctx context.Context)) {
	loopCtx := log.Ctx(ctx).With().Str("loop", name).Logger().WithContext(ctx)
	log.Ctx(loopCtx).Info().Dur("interval", interval).Msg("loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	run(loopCtx)
	for {
		select {
		case <-ctx.Done():
			log.Ctx(loopCtx).Info().Msg("loop stopped")
			return
		case <-ticker.C:
			run(loopCtx)
		}
	}
}

func (d Daemon) poll(ctx context.Context) {
	if _, err := d.Service.PollRepos(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("poll cycle failed")
	}
}

func (d Daemon) purge(ctx context.Context) {
	if _, err := d.Service.PurgeRepos(ctx, d.Service.now()); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("purge failed")
	}
}

func (d Daemon) ping(ctx context.Context) {
	d.Service.PostIfHealthy(ctx)
}
