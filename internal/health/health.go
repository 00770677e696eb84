package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"assistant/backend/internal/storage"
)

const (
	maxGoroutines = 10000
	checkTimeout  = 5 * time.Second
)

// Pinger is satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker exposes liveness and readiness endpoints.
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  Pinger
	logger *zap.Logger
}

// NewHealthChecker creates a checker. redis may be nil when Redis is
// disabled.
func NewHealthChecker(store storage.Store, redis Pinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(maxGoroutines))

	hc.health.AddReadinessCheck("database", healthcheck.Timeout(hc.store.Health, checkTimeout))

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", RedisHealthCheck(hc.redis))
	}
}

// LiveEndpoint serves the liveness checks only.
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint serves liveness and readiness checks.
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth runs every check once and reports a status per component.
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		hc.logger.Warn("database health check failed", zap.Error(err))
		results["database"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["database"] = "OK"
	}

	if hc.redis != nil {
		if err := RedisHealthCheck(hc.redis)(); err != nil {
			hc.logger.Warn("redis health check failed", zap.Error(err))
			results["redis"] = fmt.Sprintf("ERROR: %v", err)
		} else {
			results["redis"] = "OK"
		}
	} else {
		results["redis"] = "NOT_AVAILABLE"
	}

	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}

// Healthy reports whether every component in a CheckHealth result is OK.
func Healthy(results map[string]string) bool {
	for name, status := range results {
		if name == "timestamp" || status == "NOT_AVAILABLE" {
			continue
		}
		if status != "OK" {
			return false
		}
	}
	return true
}

// RedisHealthCheck pings Redis with a timeout.
func RedisHealthCheck(p Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		return p.Ping(ctx)
	}
}
