package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

const serviceName = "ton-sweeper"

var startTime = time.Now()

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthCheck represents a health check result
type HealthCheck struct {
	Service   string        `json:"service"`
	Status    string        `json:"status"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CoreHandlers contains health, readiness and metrics handlers
type CoreHandlers struct {
	checks map[string]CheckFunc
	logger *logger.Logger
}

func NewCoreHandlers(logger *logger.Logger) *CoreHandlers {
	return &CoreHandlers{
		checks: make(map[string]CheckFunc),
		logger: logger,
	}
}

// AddCheck registers a readiness probe. Optional dependencies that are not
// configured simply never register one.
func (h *CoreHandlers) AddCheck(name string, fn CheckFunc) {
	h.checks[name] = fn
}

// Health is the liveness probe. It never touches dependencies.
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *CoreHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   serviceName,
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().Unix(),
	})
}

// Ready runs every registered dependency check
// @Summary Readiness check
// @Description Pings every configured dependency (database, redis, signer)
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{} "A dependency is unhealthy"
// @Router /health/ready [get]
func (h *CoreHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]HealthCheck, len(names))
	ready := true
	for _, name := range names {
		check := h.runCheck(ctx, name, h.checks[name])
		if check.Status != "healthy" {
			ready = false
			h.logger.Warn("Readiness check failed", "service", name, "error", check.Error)
		}
		checks[name] = check
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now(),
		"checks":    checks,
	})
}

func (h *CoreHandlers) runCheck(ctx context.Context, name string, fn CheckFunc) HealthCheck {
	start := time.Now()
	check := HealthCheck{Service: name, Timestamp: start}

	err := fn(ctx)
	check.Latency = time.Since(start)
	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	} else {
		check.Status = "healthy"
	}
	return check
}

// Metrics serves the Prometheus registry
// @Summary Prometheus metrics
// @Tags health
// @Produce plain
// @Success 200 {string} string
// @Router /metrics [get]
func Metrics() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
