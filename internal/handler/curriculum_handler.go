package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/response"
)

type curriculumService interface {
	List(ctx context.Context, filter models.CurriculumFilter) ([]models.Curriculum, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Curriculum, error)
	Create(ctx context.Context, req dto.CreateCurriculumRequest) (*models.Curriculum, error)
	ListLessons(ctx context.Context, curriculumID string) ([]models.Lesson, error)
	CreateLesson(ctx context.Context, curriculumID string, req dto.CreateLessonRequest) (*models.Lesson, error)
	UpdateAssignments(ctx context.Context, curriculumID string, req dto.UpdateCurriculumAssignmentsRequest) (*dto.ReconcileResponse, error)
	ListAudit(ctx context.Context, curriculumID string, limit int) ([]models.AuditLog, error)
}

type curriculumRecomputeService interface {
	RecomputeCurriculum(ctx context.Context, curriculumID, actorID string) (*dto.RecomputeResponse, error)
}

type recomputeScheduler interface {
	Schedule(ctx context.Context, curriculumID, actorID string) (*dto.RecomputeJobResponse, error)
}

// CurriculumHandler exposes curriculum, lesson and assignment structure endpoints.
type CurriculumHandler struct {
	curricula curriculumService
	summaries curriculumRecomputeService
	scheduler recomputeScheduler
}

// NewCurriculumHandler constructs the handler. scheduler may be nil, in which
// case async recomputes are rejected.
func NewCurriculumHandler(curricula curriculumService, summaries curriculumRecomputeService, scheduler recomputeScheduler) *CurriculumHandler {
	return &CurriculumHandler{curricula: curricula, summaries: summaries, scheduler: scheduler}
}

// List godoc
// @Summary List curricula
// @Tags Curricula
// @Produce json
// @Param search query string false "Search by name or code"
// @Param status query string false "Filter by status (draft,active,archived,deprecated)"
// @Param campus_id query string false "Filter by campus in the assignment structure"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (name,code,created_at,updated_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /curricula [get]
func (h *CurriculumHandler) List(c *gin.Context) {
	filter := models.CurriculumFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Status:    models.CurriculumStatus(strings.ToLower(c.Query("status"))),
		CampusID:  strings.TrimSpace(c.Query("campus_id")),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status filter"))
		return
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	curricula, pagination, err := h.curricula.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curricula, pagination)
}

// Get godoc
// @Summary Get curriculum detail
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id} [get]
func (h *CurriculumHandler) Get(c *gin.Context) {
	curriculum, err := h.curricula.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, curriculum, nil)
}

// Create godoc
// @Summary Create curriculum
// @Tags Curricula
// @Accept json
// @Produce json
// @Param payload body dto.CreateCurriculumRequest true "Curriculum payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /curricula [post]
func (h *CurriculumHandler) Create(c *gin.Context) {
	var req dto.CreateCurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid curriculum payload"))
		return
	}
	curriculum, err := h.curricula.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, curriculum)
}

// ListLessons godoc
// @Summary List curriculum lessons
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Success 200 {object} response.Envelope
// @Router /curricula/{id}/lessons [get]
func (h *CurriculumHandler) ListLessons(c *gin.Context) {
	lessons, err := h.curricula.ListLessons(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// CreateLesson godoc
// @Summary Add a lesson to a curriculum
// @Description Assigned teachers receive not_started progress rows for the new lesson.
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Router /curricula/{id}/lessons [post]
func (h *CurriculumHandler) CreateLesson(c *gin.Context) {
	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}
	lesson, err := h.curricula.CreateLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// UpdateAssignments godoc
// @Summary Replace the curriculum assignment structure
// @Description Reconciles teacher assignments and lesson progress rows with the submitted structure. Safe to retry.
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param payload body dto.UpdateCurriculumAssignmentsRequest true "Assignment structure"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/assignments [put]
func (h *CurriculumHandler) UpdateAssignments(c *gin.Context) {
	var req dto.UpdateCurriculumAssignmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment structure"))
		return
	}
	result, err := h.curricula.UpdateAssignments(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Recompute godoc
// @Summary Recompute curriculum progress summaries
// @Description With async=true the recompute is queued and 202 is returned.
// @Tags Curricula
// @Accept json
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param async query bool false "Queue the recompute instead of running it inline"
// @Param payload body dto.RecomputeRequest true "Actor"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /curricula/{id}/progress/recompute [post]
func (h *CurriculumHandler) Recompute(c *gin.Context) {
	var req dto.RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "actorId is required"))
		return
	}
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		if h.scheduler == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "async recompute is not enabled"))
			return
		}
		job, err := h.scheduler.Schedule(c.Request.Context(), c.Param("id"), req.ActorID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, job, nil)
		return
	}
	result, err := h.summaries.RecomputeCurriculum(c.Request.Context(), c.Param("id"), req.ActorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Audit godoc
// @Summary Curriculum audit trail
// @Description Newest reconciliation and recompute entries first.
// @Tags Curricula
// @Produce json
// @Param id path string true "Curriculum ID"
// @Param limit query int false "Maximum entries (default 20, max 100)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /curricula/{id}/audit [get]
func (h *CurriculumHandler) Audit(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
		return
	}
	logs, err := h.curricula.ListAudit(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
