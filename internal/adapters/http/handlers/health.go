// Package handlers provides the gin handlers for the users API and the probes.
package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// readinessTimeout bounds one readiness probe across all checks.
const readinessTimeout = 5 * time.Second

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// NewBuildInfo fills in the Go version.
func NewBuildInfo(version, commit, buildTime string) BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime, GoVersion: runtime.Version()}
}

// HealthChecks aggregates dependency checks. *ports.HealthRegistry implements it.
type HealthChecks interface {
	CheckAll(ctx context.Context) *ports.HealthResult
}

// HealthHandler serves the operational endpoints under /-/.
type HealthHandler struct {
	checks   HealthChecks
	build    BuildInfo
	gatherer prometheus.Gatherer
}

// NewHealthHandler creates a health handler. Nil checks always report ready;
// a nil gatherer serves the default Prometheus registry.
func NewHealthHandler(checks HealthChecks, build BuildInfo, gatherer prometheus.Gatherer) *HealthHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &HealthHandler{checks: checks, build: build, gatherer: gatherer}
}

// Register mounts the probes on engine:
//
//	GET /-/live     process is up, no dependency is touched
//	GET /-/ready    store and event sinks answer (503 otherwise)
//	GET /-/build    BuildInfo
//	GET /-/metrics  Prometheus text format
func (h *HealthHandler) Register(engine *gin.Engine) {
	probes := engine.Group("/-")
	probes.GET("/live", h.live)
	probes.GET("/ready", h.ready)
	probes.GET("/build", func(c *gin.Context) { c.JSON(http.StatusOK, h.build) })
	probes.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

type probeResponse struct {
	Status string                        `json:"status"`
	Checks map[string]*ports.CheckResult `json:"checks,omitempty"`
}

func (h *HealthHandler) live(c *gin.Context) {
	c.JSON(http.StatusOK, probeResponse{Status: "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.checks == nil {
		c.JSON(http.StatusOK, probeResponse{Status: string(ports.HealthStatusHealthy)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	result := h.checks.CheckAll(ctx)

	code := http.StatusOK
	if result.Status != ports.HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, probeResponse{Status: string(result.Status), Checks: result.Checks})
}
