// internal/handlers/health.go
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/emartell/storeflow-be/internal/adapters/db"
	"github.com/emartell/storeflow-be/internal/pkg/config"
)

// HealthHandler serves the liveness and readiness endpoints. Liveness
// probes every dependency and reports details; readiness only answers
// whether the process can take traffic.
type HealthHandler struct {
	db        *db.Database
	redis     *redis.Client
	asynq     *asynq.Inspector
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
}

func NewHealthHandler(
	database *db.Database,
	redisClient *redis.Client,
	asynqInspector *asynq.Inspector,
	cfg *config.Config,
	logger *slog.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:        database,
		redis:     redisClient,
		asynq:     asynqInspector,
		cfg:       cfg,
		logger:    logger.With(slog.String("handler", "health")),
		startedAt: time.Now(),
	}
}

// HealthStatus is the full liveness report.
type HealthStatus struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]ServiceInfo `json:"services"`
	System      SystemInfo             `json:"system"`
}

// ServiceInfo is one dependency's probe result.
type ServiceInfo struct {
	Status       string                 `json:"status"`
	Message      string                 `json:"message,omitempty"`
	ResponseTime string                 `json:"response_time,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// SystemInfo carries runtime statistics for the process.
type SystemInfo struct {
	GoVersion      string `json:"go_version"`
	NumGoroutines  int    `json:"num_goroutines"`
	NumCPU         int    `json:"num_cpu"`
	MemoryAllocMB  uint64 `json:"memory_alloc_mb"`
	MemorySysMB    uint64 `json:"memory_sys_mb"`
	GCPauseTotalMs uint64 `json:"gc_pause_total_ms"`
	NumGC          uint32 `json:"num_gc"`
}

type probe struct {
	name  string
	check func(context.Context) ServiceInfo
}

// Health handles GET /health. Any degraded dependency turns the whole
// report degraded and the status code 503, which is what the compose
// healthcheck and the load balancer key off.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := HealthStatus{
		Status:      "healthy",
		Version:     h.cfg.App.Version,
		Environment: h.cfg.App.Environment,
		Uptime:      time.Since(h.startedAt).Round(time.Second).String(),
		Timestamp:   time.Now(),
		Services:    make(map[string]ServiceInfo),
		System:      systemInfo(),
	}

	probes := []probe{
		{"database", h.probeDatabase},
		{"redis", h.probeRedis},
	}
	if h.asynq != nil {
		probes = append(probes, probe{"asynq", h.probeAsynq})
	}

	for _, p := range probes {
		result := p.check(ctx)
		report.Services[p.name] = result
		if result.Status != "healthy" {
			report.Status = "degraded"
		}
	}

	code := http.StatusOK
	if report.Status == "degraded" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(ctx, w, code, report)
}

// Readiness handles GET /ready. It pings the stores the request path
// cannot live without and nothing else.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ready := true
	details := make(map[string]string)

	if err := h.db.Ping(ctx); err != nil {
		ready = false
		details["database"] = "not ready"
	} else {
		details["database"] = "ready"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		ready = false
		details["redis"] = "not ready"
	} else {
		details["redis"] = "ready"
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(ctx, w, code, map[string]interface{}{
		"ready":   ready,
		"details": details,
	})
}

func (h *HealthHandler) writeJSON(ctx context.Context, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode health response",
			slog.String("error", err.Error()))
	}
}

func (h *HealthHandler) probeDatabase(ctx context.Context) ServiceInfo {
	start := time.Now()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "database probe failed",
			slog.String("error", err.Error()))
		return ServiceInfo{Status: "unhealthy", Message: err.Error()}
	}

	// Pool statistics double as the probe details.
	return ServiceInfo{
		Status:       "healthy",
		ResponseTime: time.Since(start).String(),
		Details:      h.db.Health(ctx),
	}
}

func (h *HealthHandler) probeRedis(ctx context.Context) ServiceInfo {
	start := time.Now()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		h.logger.ErrorContext(ctx, "redis probe failed",
			slog.String("error", err.Error()))
		return ServiceInfo{Status: "unhealthy", Message: err.Error()}
	}

	stats := h.redis.PoolStats()
	return ServiceInfo{
		Status:       "healthy",
		ResponseTime: time.Since(start).String(),
		Details: map[string]interface{}{
			"total_conns": stats.TotalConns,
			"idle_conns":  stats.IdleConns,
			"stale_conns": stats.StaleConns,
			"hits":        stats.Hits,
			"misses":      stats.Misses,
		},
	}
}

func (h *HealthHandler) probeAsynq(ctx context.Context) ServiceInfo {
	start := time.Now()

	queues, err := h.asynq.Queues()
	if err != nil {
		h.logger.ErrorContext(ctx, "asynq probe failed",
			slog.String("error", err.Error()))
		return ServiceInfo{Status: "unhealthy", Message: err.Error()}
	}

	details := make(map[string]interface{})
	queueStats := make(map[string]interface{}, len(queues))
	for _, queue := range queues {
		qi, err := h.asynq.GetQueueInfo(queue)
		if err != nil {
			continue
		}
		queueStats[queue] = map[string]interface{}{
			"size":      qi.Size,
			"active":    qi.Active,
			"pending":   qi.Pending,
			"scheduled": qi.Scheduled,
			"retry":     qi.Retry,
			"archived":  qi.Archived,
		}
	}
	details["queues"] = queueStats

	if servers, err := h.asynq.Servers(); err == nil {
		details["servers"] = len(servers)
		// No running worker means exports and reminders silently stall.
		if len(servers) == 0 {
			return ServiceInfo{
				Status:       "unhealthy",
				Message:      "no worker servers registered",
				ResponseTime: time.Since(start).String(),
				Details:      details,
			}
		}
	}

	return ServiceInfo{
		Status:       "healthy",
		ResponseTime: time.Since(start).String(),
		Details:      details,
	}
}

func systemInfo() SystemInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemInfo{
		GoVersion:      runtime.Version(),
		NumGoroutines:  runtime.NumGoroutine(),
		NumCPU:         runtime.NumCPU(),
		MemoryAllocMB:  mem.Alloc / 1024 / 1024,
		MemorySysMB:    mem.Sys / 1024 / 1024,
		GCPauseTotalMs: mem.PauseTotalNs / 1000 / 1000,
		NumGC:          mem.NumGC,
	}
}
