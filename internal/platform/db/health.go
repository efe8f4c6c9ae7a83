package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check tests one dependency, e.g. a Redis ping. nil means healthy.
type Check func(ctx context.Context) error

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// Report is the readiness payload. A failing database makes the service
// unhealthy; a failing optional dependency only degrades it.
type Report struct {
	Status       HealthStatus      `json:"status"`
	Database     string            `json:"database"`
	Pool         *PoolStats        `json:"pool,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (r *Report) HTTPStatus() int {
	if r.Status == Healthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// buildReport runs ping and every check and grades the result.
func buildReport(ctx context.Context, ping Check, checks map[string]Check) *Report {
	r := &Report{Status: Healthy, Database: "ok", Dependencies: make(map[string]string, len(checks))}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			r.Dependencies[name] = err.Error()
			r.Status = Degraded
			continue
		}
		r.Dependencies[name] = "ok"
	}
	if err := ping(ctx); err != nil {
		r.Database = err.Error()
		r.Status = Unhealthy
	}
	return r
}

// HealthHandler serves the readiness report for pool plus checks.
func HealthHandler(pool *pgxpool.Pool, checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		r := buildReport(ctx, pool.Ping, checks)
		r.Pool = GetPoolStats(pool)
		return c.JSON(r.HTTPStatus(), r)
	}
}
