package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"repoforge/internal/shared"
)

func (s Service) CheckHealth(ctx context.Context) HealthResult {
	report := s.Health.Run(ctx)
	result := HealthResult{Healthy: report.Healthy, Failed: report.Failed}
	if report.Err != nil {
		result.Error = report.Err.Error()
	}
	return result
}

// PostIfHealthy pings <ping_url>/<hostname>/ when pings are enabled and
// every health check passes. It reports whether a ping was sent.
func (s Service) PostIfHealthy(ctx context.Context) bool {
	if !s.Config.Health.Ping || strings.TrimSpace(s.Config.Health.PingURL) == "" {
		log.Ctx(ctx).Info().Msg("system is not configured to send health ping")
		return false
	}
	if !s.Health.IsHealthy(ctx) {
		log.Ctx(ctx).Error().Msg("system is not healthy and will not send health ping")
		return false
	}
	s.Notifier.Ping(ctx, shared.JoinURL(s.Config.Health.PingURL, s.Config.Hostname))
	return true
}
