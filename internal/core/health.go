package core

import (
	"context"

	"github.com/rs/zerolog/log"
)

type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthReport struct {
	Healthy bool
	Failed  string
	Err     error
}

// HealthChecker runs its checks in order and stops at the first failure.
type HealthChecker struct {
	Checks []HealthCheck
}

func NewHealthChecker(checks ...HealthCheck) HealthChecker {
	return HealthChecker{Checks: checks}
}

// Without returns a copy of the checker minus the named checks.
func (h HealthChecker) Without(names ...string) HealthChecker {
	skip := map[string]struct{}{}
	for _, name := range names {
		skip[name] = struct{}{}
	}
	checks := make([]HealthCheck, 0, len(h.Checks))
	for _, check := range h.Checks {
		if _, ok := skip[check.Name]; !ok {
			checks = append(checks, check)
		}
	}
	return HealthChecker{Checks: checks}
}

func (h HealthChecker) Run(ctx context.Context) HealthReport {
	for _, check := range h.Checks {
		if err := check.Check(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("check", check.Name).Msg("system is unhealthy")
			return HealthReport{Failed: check.Name, Err: err}
		}
		log.Ctx(ctx).Debug().Str("check", check.Name).Msg("health check passed")
	}
	return HealthReport{Healthy: true}
}

func (h HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.Run(ctx).Healthy
}
