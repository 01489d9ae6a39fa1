package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preplab/proctord/internal/middleware"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/repository"
	"github.com/preplab/proctord/internal/response"
	"github.com/preplab/proctord/internal/service"
)

// TestHandler handles student-facing test retrieval endpoints.
type TestHandler struct {
	testService *service.TestService
	studentRepo *repository.StudentRepository
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService, studentRepo *repository.StudentRepository) *TestHandler {
	return &TestHandler{testService: testService, studentRepo: studentRepo}
}

// GetTest godoc
// GET /api/v1/student/tests/:test_id
// Returns the wire-contract test definition for the caller, including
// questions, schedule window, and remaining attempts.
func (h *TestHandler) GetTest(c *gin.Context) {
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

	def, err := h.testService.GetStudentDefinition(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTestNotPublished):
			response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
		case errors.Is(err, pgx.ErrNoRows):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, def)
}

// GetMe godoc
// GET /api/v1/student/me
// Returns the caller's identity; the lockdown client uses it only for
// watermarking.
func (h *TestHandler) GetMe(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	student, err := h.studentRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, model.Identity{
		Email: student.Email,
		Name:  student.Name,
	})
}
