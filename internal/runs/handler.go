package runs

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contrib-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the runs service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches run routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/runs", h.startRun)
	rg.GET("/runs/:id", h.getRun)
	rg.POST("/runs/:id/resume", h.resumeRun)
	rg.POST("/runs/:id/pause", h.pauseRun)
	rg.POST("/runs/:id/cancel", h.cancelRun)
	rg.POST("/runs/:id/confirm", h.confirmRun)
	rg.GET("/runs/:id/estimate", h.getEstimate)
}

type startRunRequest struct {
	Org         string  `json:"org"`
	Contributor string  `json:"contributor"`
	Year        int     `json:"year"`
	Options     Options `json:"options"`
}

func (h *Handler) startRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	run, err := h.Svc.Start(ctx, req.Org, req.Contributor, req.Year, req.Options)
	if err != nil {
		switch {
		case errors.Is(err, ErrActiveRunExists):
			respond.Error(c, http.StatusConflict, "run_exists", "an active run already exists for this contributor and year", nil)
		default:
			respond.Error(c, http.StatusBadRequest, "start_failed", err.Error(), nil)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, runStatusBody(run))
}

func (h *Handler) getRun(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	respond.OK(c, runStatusBody(run))
}

type resumeRunRequest struct {
	Mode string `json:"mode"`
}

func (h *Handler) resumeRun(c *gin.Context) {
	var req resumeRunRequest
	_ = c.ShouldBindJSON(&req)

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	run, err := h.Svc.Resume(ctx, c.Param("id"), req.Mode)
	if err != nil {
		h.controlError(c, err)
		return
	}
	respond.JSON(c, http.StatusAccepted, runStatusBody(run))
}

func (h *Handler) pauseRun(c *gin.Context) {
	run, err := h.Svc.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.controlError(c, err)
		return
	}
	respond.OK(c, runStatusBody(run))
}

func (h *Handler) cancelRun(c *gin.Context) {
	run, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.controlError(c, err)
		return
	}
	respond.OK(c, runStatusBody(run))
}

type confirmRunRequest struct {
	Decision string `json:"decision"`
}

func (h *Handler) confirmRun(c *gin.Context) {
	var req confirmRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	var skip bool
	switch req.Decision {
	case "confirm":
	case "skip":
		skip = true
	default:
		respond.Error(c, http.StatusBadRequest, "validation_error", "decision must be confirm or skip", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	run, err := h.Svc.Confirm(ctx, c.Param("id"), skip)
	if err != nil {
		h.controlError(c, err)
		return
	}
	respond.JSON(c, http.StatusAccepted, runStatusBody(run))
}

func (h *Handler) getEstimate(c *gin.Context) {
	estimate, err := h.Svc.Estimate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.controlError(c, err)
		return
	}
	respond.OK(c, gin.H{"estimate": estimate})
}

func (h *Handler) loadRun(c *gin.Context) (AnalysisRun, bool) {
	run, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.controlError(c, err)
		return AnalysisRun{}, false
	}
	return run, true
}

func (h *Handler) controlError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "run not found", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "operation failed", nil)
	}
}

func runStatusBody(run AnalysisRun) gin.H {
	body := gin.H{
		"runId":    run.ID,
		"status":   run.Status,
		"phase":    run.Phase,
		"progress": run.Progress,
	}
	if run.Error != "" {
		body["error"] = run.Error
	}
	return body
}
