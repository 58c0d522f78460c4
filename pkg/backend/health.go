package backend

import (
	"context"
	"time"

	"github.com/forgecli/forge-api/pkg/model"
	"github.com/forgecli/forge-api/pkg/version"
	"golang.org/x/exp/maps"
)

// Health probes each dependency and folds the results into one verdict.
// Every service up is healthy, every service down is unhealthy, anything
// in between is degraded.
func (b *backend) Health(ctx context.Context) model.HealthCheckResponse {
	services := map[string]model.ServiceHealth{
		"database": b.checkService(ctx, "database", b.db.HealthCheck),
		"dns":      b.checkService(ctx, "dns", b.provider.HealthCheck),
	}

	return model.HealthCheckResponse{
		Status:    overallStatus(maps.Values(services)),
		Timestamp: time.Now(),
		Services:  services,
		Uptime:    int64(time.Since(b.startTime).Seconds()),
		Version:   version.Get().String(),
	}
}

func (b *backend) checkService(ctx context.Context, name string, check func(context.Context) bool) model.ServiceHealth {
	start := time.Now()
	up := check(ctx)
	elapsed := time.Since(start).Milliseconds()

	health := model.ServiceHealth{
		Status:       model.HealthStatusHealthy,
		ResponseTime: elapsed,
		LastCheck:    time.Now(),
	}
	if !up {
		health.Status = model.HealthStatusUnhealthy
		health.Message = name + " check failed"
		b.log.WithField("service", name).Warn("dependency health check failed")
	}
	return health
}

func overallStatus(services []model.ServiceHealth) string {
	healthy := 0
	for _, s := range services {
		if s.Status == model.HealthStatusHealthy {
			healthy++
		}
	}

	switch healthy {
	case len(services):
		return model.OverallHealthy
	case 0:
		return model.OverallUnhealthy
	default:
		return model.OverallDegraded
	}
}
