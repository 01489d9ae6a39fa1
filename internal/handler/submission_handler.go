package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preplab/proctord/internal/middleware"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/response"
	"github.com/preplab/proctord/internal/service"
	"github.com/preplab/proctord/internal/validator"
)

// SubmissionHandler accepts the attempt submission payload.
type SubmissionHandler struct {
	attemptService *service.AttemptService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(attemptService *service.AttemptService) *SubmissionHandler {
	return &SubmissionHandler{attemptService: attemptService}
}

// Submit godoc
// POST /api/v1/student/tests/:test_id/submit
// Body: { responses: [{questionId, answer}], reason }. Field names and
// the scalar-vs-array answer convention are a contract with the
// lockdown client.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var sub model.Submission
	if fields := validator.Bind(c, &sub); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), testID, claims.UserID, &sub)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReason):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidReason)
		case errors.Is(err, service.ErrUnknownQuestion):
			response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
		case errors.Is(err, service.ErrTestNotStarted):
			response.Fail(c, http.StatusForbidden, response.ErrTestNotStarted)
		case errors.Is(err, service.ErrTestClosed):
			response.Fail(c, http.StatusForbidden, response.ErrTestClosed)
		case errors.Is(err, service.ErrAttemptsExhausted):
			response.Fail(c, http.StatusForbidden, response.ErrAttemptsExhausted)
		case errors.Is(err, service.ErrTestNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ListAttempts godoc
// GET /api/v1/student/attempts
// Returns the caller's completed attempts, newest first.
func (h *SubmissionHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempts, err := h.attemptService.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
