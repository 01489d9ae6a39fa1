package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preplab/proctord/internal/response"
	"github.com/preplab/proctord/internal/service"
)

// MonitorHandler serves the proctor-facing progress view.
type MonitorHandler struct {
	monitorService *service.MonitorService
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitorService: monitorService}
}

// GetProgress godoc
// GET /api/v1/proctor/tests/:test_id/progress
// Returns per-student answered counts and violation counts.
func (h *MonitorHandler) GetProgress(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	snapshot, err := h.monitorService.GetProgress(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, snapshot)
}
