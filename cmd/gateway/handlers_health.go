package main

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/R3E-Network/api-gateway/infrastructure/httputil"
	"github.com/R3E-Network/api-gateway/internal/cache"
)

// healthHandler reports basic liveness plus cache/database reachability
// (§6.1). It is intentionally cheap: both dependency pings use a short
// timeout so an unhealthy instance fails fast rather than hanging a probe.
func healthHandler(db pinger, c *cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "cache": "ok"}
		healthy := true

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
		if err := c.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": healthyLabel(healthy),
			"checks": checks,
		})
	}
}

// pinger is satisfied by *sql.DB; narrowed here so health handlers don't
// need the database package imported just to ping it.
type pinger interface {
	PingContext(ctx context.Context) error
}

func healthyLabel(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// detailedHealthHandler adds per-dependency latency and process resource
// usage on top of healthHandler, for operator triage (§6.1). CPU/memory
// figures come from the host's own process-stats facility rather than
// Go's runtime package alone, since goroutine/heap stats don't show RSS or
// the process's share of host CPU.
func detailedHealthHandler(db pinger, c *cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		deps := map[string]any{}
		healthy := true

		dbStart := time.Now()
		dbErr := db.PingContext(ctx)
		deps["database"] = dependencyStatus(dbErr, time.Since(dbStart))
		if dbErr != nil {
			healthy = false
		}

		cacheStart := time.Now()
		cacheErr := c.Ping(ctx)
		deps["cache"] = dependencyStatus(cacheErr, time.Since(cacheStart))
		if cacheErr != nil {
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       healthyLabel(healthy),
			"dependencies": deps,
			"process":      processStats(),
		})
	}
}

func dependencyStatus(err error, latency time.Duration) map[string]any {
	out := map[string]any{"latency_ms": latency.Milliseconds()}
	if err != nil {
		out["status"] = "error"
		out["error"] = err.Error()
	} else {
		out["status"] = "ok"
	}
	return out
}

func processStats() map[string]any {
	stats := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	if cpuPercent, cpuErr := proc.CPUPercent(); cpuErr == nil {
		stats["cpu_percent"] = cpuPercent
	}
	if mem, memErr := proc.MemoryInfo(); memErr == nil && mem != nil {
		stats["rss_bytes"] = mem.RSS
		stats["vms_bytes"] = mem.VMS
	}
	return stats
}
