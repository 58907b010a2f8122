package monitoring

import (
	"context"

	"gorm.io/gorm"
)

// Pinger is satisfied by the Redis cache store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database probes the primary store.
func Database(db *gorm.DB) Check {
	return Check{Name: "database", Run: func(ctx context.Context) ProbeResult {
		if db == nil {
			return ProbeResult{Status: StatusDown, Details: "database not configured"}
		}
		sqlDB, err := db.DB()
		if err != nil {
			return resultFromError(err)
		}
		return resultFromError(sqlDB.PingContext(ctx))
	}}
}

// Cache probes Redis. A configured but unreachable cache is degraded, since
// rate limiting falls back to the database.
func Cache(client Pinger, enabled bool) Check {
	return Check{Name: "redis", Run: func(ctx context.Context) ProbeResult {
		switch {
		case !enabled:
			return ProbeResult{Status: StatusUp, Details: "disabled"}
		case client == nil:
			return ProbeResult{Status: StatusDegraded, Details: "unavailable, using database fallback"}
		}
		result := resultFromError(client.Ping(ctx))
		if result.Status == StatusDown {
			result.Status = StatusDegraded
		}
		return result
	}}
}
