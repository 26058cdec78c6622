package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/middleware"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	"github.com/cpmappstudio/cpca-teachers/internal/service"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/response"
)

type progressLedger interface {
	UpsertProgress(ctx context.Context, req dto.RecordProgressRequest) (*models.LessonProgress, bool, error)
	VerifyProgress(ctx context.Context, id string, req dto.VerifyProgressRequest) (*models.LessonProgress, error)
}

type progressReader interface {
	LessonCompletion(ctx context.Context, lessonID, assignmentID string) (float64, error)
	AssignmentCompletion(ctx context.Context, assignmentID string) (float64, error)
	TeacherProgress(ctx context.Context, teacherID string) (*dto.TeacherProgressResponse, bool, error)
	AssignmentLessonProgress(ctx context.Context, assignmentID string) (*dto.AssignmentLessonProgressResponse, bool, error)
}

type progressExporter interface {
	ExportAssignmentProgress(ctx context.Context, assignmentID string, format service.ExportFormat) (*service.ExportFile, error)
}

// ProgressHandler serves lesson progress recording and aggregation endpoints.
type ProgressHandler struct {
	ledger   progressLedger
	reader   progressReader
	exporter progressExporter
}

// NewProgressHandler constructs the handler. exporter may be nil when exports are not wired.
func NewProgressHandler(ledger progressLedger, reader progressReader, exporter progressExporter) *ProgressHandler {
	return &ProgressHandler{ledger: ledger, reader: reader, exporter: exporter}
}

// Record godoc
// @Summary Record lesson progress
// @Description Creates or updates the progress row for a teacher, lesson and grade/group unit.
// @Tags Progress
// @Accept json
// @Produce json
// @Param payload body dto.RecordProgressRequest true "Progress payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /progress [post]
func (h *ProgressHandler) Record(c *gin.Context) {
	var req dto.RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid progress payload"))
		return
	}
	record, created, err := h.ledger.UpsertProgress(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, record)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Verify godoc
// @Summary Verify completed progress
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Progress ID"
// @Param payload body dto.VerifyProgressRequest true "Verifier"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /progress/{id}/verify [post]
func (h *ProgressHandler) Verify(c *gin.Context) {
	var req dto.VerifyProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}
	record, err := h.ledger.VerifyProgress(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// TeacherProgress godoc
// @Summary Teacher progress overview
// @Description Averages the progress of every active assignment. Cancelled assignments are listed but excluded.
// @Tags Progress
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/progress [get]
func (h *ProgressHandler) TeacherProgress(c *gin.Context) {
	data, hit, err := h.reader.TeacherProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondCached(c, data, hit)
}

// AssignmentLessons godoc
// @Summary Lesson progress of an assignment
// @Tags Progress
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id}/lessons/progress [get]
func (h *ProgressHandler) AssignmentLessons(c *gin.Context) {
	data, hit, err := h.reader.AssignmentLessonProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondCached(c, data, hit)
}

// AssignmentCompletion godoc
// @Summary Assignment completion percentage
// @Tags Progress
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/progress [get]
func (h *ProgressHandler) AssignmentCompletion(c *gin.Context) {
	id := c.Param("id")
	pct, err := h.reader.AssignmentCompletion(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompletionResponse{ID: id, ProgressPercentage: pct}, nil)
}

// LessonCompletion godoc
// @Summary Lesson completion within an assignment
// @Tags Progress
// @Produce json
// @Param lessonId path string true "Lesson ID"
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /lessons/{lessonId}/assignments/{id}/completion [get]
func (h *ProgressHandler) LessonCompletion(c *gin.Context) {
	lessonID := c.Param("lessonId")
	pct, err := h.reader.LessonCompletion(c.Request.Context(), lessonID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompletionResponse{ID: lessonID, ProgressPercentage: pct}, nil)
}

// Export godoc
// @Summary Export assignment progress
// @Tags Progress
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Assignment ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /assignments/{id}/progress/export [get]
func (h *ProgressHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.ExportAssignmentProgress(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

func (h *ProgressHandler) respondCached(c *gin.Context, data interface{}, hit bool) {
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}
