package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/cellar/pkg/dto"
)

// ReadinessChecker reports the state of each backing service by name.
type ReadinessChecker interface {
	Ready(ctx context.Context) map[string]error
}

// Pinger is an optional dependency such as the NATS producer.
type Pinger interface {
	Ping() error
}

type SystemHandler struct {
	checker ReadinessChecker
	extra   map[string]Pinger
}

func NewSystemHandler(checker ReadinessChecker, extra map[string]Pinger) *SystemHandler {
	return &SystemHandler{checker: checker, extra: extra}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := h.checker.Ready(ctx)
	for name, p := range h.extra {
		results[name] = p.Ping()
	}

	checks := make(map[string]string, len(results))
	healthy := true
	for name, err := range results {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, dto.ReadyResponse{
		Status: map[bool]string{true: "ready", false: "not ready"}[healthy],
		Checks: checks,
	})
}
