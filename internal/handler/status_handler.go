package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/habitnudge/internal/middleware"
	"github.com/quocanhngo/habitnudge/internal/model"
	"github.com/quocanhngo/habitnudge/internal/scheduler"
)

const checkTimeout = 2 * time.Second

// RunTracker is the part of the scheduler the status endpoints need.
type RunTracker interface {
	LastRuns() []scheduler.Status
	Trigger(name string)
}

// Check pings one dependency for the health endpoint.
type Check func(ctx context.Context) error

// StatusHandler exposes liveness and the last run of each engine.
type StatusHandler struct {
	runs   RunTracker
	checks map[string]Check
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(runs RunTracker, checks map[string]Check) *StatusHandler {
	return &StatusHandler{runs: runs, checks: checks}
}

// Register mounts the status routes on r. The trigger route is only mounted
// when adminToken is set.
func (h *StatusHandler) Register(r gin.IRouter, adminToken string) {
	r.GET("/health", h.Health)
	r.GET("/runs", h.Runs)
	if adminToken != "" {
		r.POST("/runs/:engine", middleware.AdminTokenMiddleware(adminToken), h.Trigger)
	}
}

// RunsResponse lists the status of every scheduled engine.
type RunsResponse struct {
	Runs []scheduler.Status `json:"runs"`
}

// Health godoc
// @Summary Liveness and dependency checks
// @Description Reports ok when every dependency check passes, 503 otherwise.
// @Tags Status
// @Produce json
// @Success 200 {object} model.HealthResponse
// @Failure 503 {object} model.HealthResponse
// @Router /health [get]
func (h *StatusHandler) Health(c *gin.Context) {
	resp := model.HealthResponse{
		Status:  "ok",
		Service: "habitnudge",
		Time:    time.Now().Format(time.RFC3339),
	}
	code := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	c.JSON(code, resp)
}

// Runs godoc
// @Summary Last run of every scheduled engine
// @Tags Status
// @Produce json
// @Success 200 {object} RunsResponse
// @Router /runs [get]
func (h *StatusHandler) Runs(c *gin.Context) {
	c.JSON(http.StatusOK, RunsResponse{Runs: h.runs.LastRuns()})
}

// Trigger godoc
// @Summary Start an engine run now
// @Description The run happens in the background; poll GET /runs for the result.
// @Tags Status
// @Produce json
// @Security BearerAuth
// @Param engine path string true "Engine name" Enums(daily, followup)
// @Success 202 {object} model.TriggerResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /runs/{engine} [post]
func (h *StatusHandler) Trigger(c *gin.Context) {
	engine := c.Param("engine")

	known := false
	for _, st := range h.runs.LastRuns() {
		if st.Engine == engine {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "Unknown engine", Message: engine})
		return
	}

	go h.runs.Trigger(engine)
	c.JSON(http.StatusAccepted, model.TriggerResponse{Engine: engine, Message: "run started"})
}
