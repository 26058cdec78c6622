package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	"github.com/cpmappstudio/cpca-teachers/pkg/cache"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
)

type aggregatorAssignmentStore interface {
	FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error)
	ListByTeacher(ctx context.Context, teacherID string, activeOnly bool) ([]models.TeacherAssignment, error)
	ListActiveByCurriculum(ctx context.Context, curriculumID string) ([]models.TeacherAssignment, error)
	UpdateProgressSummary(ctx context.Context, id string, summary models.ProgressSummary) error
}

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Lesson, error)
}

type teacherProgressReader interface {
	ListByTeacherCurriculum(ctx context.Context, teacherID, curriculumID string) ([]models.LessonProgress, error)
	CountByAssignment(ctx context.Context, assignmentID string) (int, error)
}

type curriculumMetricsStore interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
	UpdateMetrics(ctx context.Context, id string, metrics models.CurriculumMetrics) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AggregatorServiceParams groups constructor dependencies.
type AggregatorServiceParams struct {
	Assignments aggregatorAssignmentStore
	Lessons     lessonReader
	Progress    teacherProgressReader
	Curricula   curriculumMetricsStore
	Audit       auditWriter
	Cache       *CacheService
	Metrics     *MetricsService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// AggregatorService answers completion questions from the progress ledger and
// keeps the cached assignment summaries and curriculum metrics in line with it.
type AggregatorService struct {
	assignments aggregatorAssignmentStore
	lessons     lessonReader
	progress    teacherProgressReader
	curricula   curriculumMetricsStore
	audit       auditWriter
	cache       *CacheService
	metrics     *MetricsService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewAggregatorService constructs the aggregator.
func NewAggregatorService(params AggregatorServiceParams) *AggregatorService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregatorService{
		assignments: params.Assignments,
		lessons:     params.Lessons,
		progress:    params.Progress,
		curricula:   params.Curricula,
		audit:       params.Audit,
		cache:       params.Cache,
		metrics:     params.Metrics,
		cacheTTL:    params.CacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

func teacherCacheKey(teacherID string) string {
	return cache.Key("progress", "teacher", teacherID)
}

func assignmentCacheKey(teacherID, assignmentID string) string {
	return cache.Key("progress", "teacher", teacherID, "assignment", assignmentID)
}

// LessonCompletion returns the percentage of the lesson's units completed with
// evidence under the assignment.
func (s *AggregatorService) LessonCompletion(ctx context.Context, lessonID, assignmentID string) (float64, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.CurriculumID != assignment.CurriculumID {
		return 0, appErrors.Clone(appErrors.ErrInvalidState, "lesson does not belong to the assignment curriculum")
	}
	idx, err := s.teacherIndex(ctx, assignment.TeacherID, assignment.CurriculumID)
	if err != nil {
		return 0, err
	}
	return scoreLesson(*assignment, *lesson, idx).Percentage, nil
}

// AssignmentCompletion returns the mean completion of the assignment's applicable lessons.
func (s *AggregatorService) AssignmentCompletion(ctx context.Context, assignmentID string) (float64, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return 0, err
	}
	summary, _, err := s.score(ctx, *assignment)
	if err != nil {
		return 0, err
	}
	return summary.ProgressPercentage, nil
}

// TeacherCompletion returns the mean completion over the teacher's active assignments.
func (s *AggregatorService) TeacherCompletion(ctx context.Context, teacherID string) (float64, error) {
	progress, _, err := s.TeacherProgress(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	return progress.ProgressPercentage, nil
}

// TeacherProgress lists all of the teacher's assignments. Active ones are
// scored live; cancelled ones report their frozen summary and do not count.
func (s *AggregatorService) TeacherProgress(ctx context.Context, teacherID string) (*dto.TeacherProgressResponse, bool, error) {
	if teacherID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	key := teacherCacheKey(teacherID)
	var cached dto.TeacherProgressResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	assignments, err := s.assignments.ListByTeacher(ctx, teacherID, false)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher assignments")
	}
	resp := &dto.TeacherProgressResponse{TeacherID: teacherID, Assignments: make([]dto.AssignmentProgressItem, 0, len(assignments))}
	var activeValues []float64
	for _, assignment := range assignments {
		summary := assignment.ProgressSummary
		if assignment.IsActive {
			live, _, err := s.score(ctx, assignment)
			if err != nil {
				return nil, false, err
			}
			live.LastUpdated = summary.LastUpdated
			summary = live
			activeValues = append(activeValues, summary.ProgressPercentage)
		}
		resp.Assignments = append(resp.Assignments, dto.AssignmentProgressItem{
			AssignmentID:       assignment.ID,
			CurriculumID:       assignment.CurriculumID,
			CampusID:           assignment.CampusID,
			Status:             string(assignment.Status),
			TotalLessons:       summary.TotalLessons,
			CompletedLessons:   summary.CompletedLessons,
			ProgressPercentage: summary.ProgressPercentage,
			LastUpdated:        summary.LastUpdated,
		})
	}
	resp.ProgressPercentage = meanPercentage(activeValues)
	s.cache.Set(ctx, key, resp, s.cacheTTL)
	return resp, false, nil
}

// AssignmentLessonProgress returns the per-lesson, per-unit view of an assignment.
func (s *AggregatorService) AssignmentLessonProgress(ctx context.Context, assignmentID string) (*dto.AssignmentLessonProgressResponse, bool, error) {
	assignment, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, false, err
	}
	key := assignmentCacheKey(assignment.TeacherID, assignment.ID)
	var cached dto.AssignmentLessonProgressResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	lessons, err := s.listLessons(ctx, assignment.CurriculumID)
	if err != nil {
		return nil, false, err
	}
	idx, err := s.teacherIndex(ctx, assignment.TeacherID, assignment.CurriculumID)
	if err != nil {
		return nil, false, err
	}
	owned, err := s.progress.CountByAssignment(ctx, assignment.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignment progress")
	}
	summary, scores := scoreAssignment(*assignment, lessons, idx)

	resp := &dto.AssignmentLessonProgressResponse{
		AssignmentID:       assignment.ID,
		TeacherID:          assignment.TeacherID,
		CurriculumID:       assignment.CurriculumID,
		CampusID:           assignment.CampusID,
		ProgressPercentage: summary.ProgressPercentage,
		ProgressRows:       owned,
		Lessons:            make([]dto.LessonProgressView, 0, len(scores)),
	}
	for _, score := range scores {
		if !score.Applicable() {
			continue
		}
		view := dto.LessonProgressView{
			LessonID:             score.Lesson.ID,
			Title:                score.Lesson.Title,
			Quarter:              score.Lesson.Quarter,
			Order:                score.Lesson.OrderInQuarter,
			OverallStatus:        string(lessonStatus(score, idx)),
			CompletionPercentage: score.Percentage,
			CompletedGrades:      score.Completed,
			TotalGrades:          len(score.Units),
			ProgressByGrade:      make([]dto.UnitProgress, 0, len(score.Units)),
		}
		for _, unit := range score.Units {
			item := dto.UnitProgress{
				GradeCode: string(unit.Grade),
				GroupCode: string(unit.Group),
				Status:    string(models.ProgressStatusNotStarted),
			}
			if row, ok := idx.lookup(score.Lesson.ID, unit); ok {
				item.ProgressID = row.ID
				item.Status = string(row.Status)
				item.HasEvidence = len(row.EvidenceRefs) > 0
				item.CompletedAt = row.CompletedAt
				item.IsVerified = row.IsVerified
			}
			view.ProgressByGrade = append(view.ProgressByGrade, item)
		}
		resp.Lessons = append(resp.Lessons, view)
	}
	s.cache.Set(ctx, key, resp, s.cacheTTL)
	return resp, false, nil
}

// RecomputeTeacherCurriculum refreshes the summaries of the teacher's active
// assignments in the curriculum, then the curriculum metrics.
func (s *AggregatorService) RecomputeTeacherCurriculum(ctx context.Context, teacherID, curriculumID string) error {
	defer s.InvalidateTeacher(ctx, teacherID)

	assignments, err := s.assignments.ListByTeacher(ctx, teacherID, true)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher assignments")
	}
	lessons, err := s.listLessons(ctx, curriculumID)
	if err != nil {
		return err
	}
	idx, err := s.teacherIndex(ctx, teacherID, curriculumID)
	if err != nil {
		return err
	}
	updated := 0
	for _, assignment := range assignments {
		if assignment.CurriculumID != curriculumID {
			continue
		}
		summary, _ := scoreAssignment(assignment, lessons, idx)
		if err := s.storeSummary(ctx, assignment.ID, summary); err != nil {
			return err
		}
		updated++
	}
	s.metrics.RecordRecompute(updated)
	_, err = s.refreshMetrics(ctx, curriculumID, len(lessons))
	return err
}

// RecomputeCurriculum refreshes every active assignment summary of the
// curriculum and its metrics. A non-empty actorID records an audit entry.
func (s *AggregatorService) RecomputeCurriculum(ctx context.Context, curriculumID, actorID string) (*dto.RecomputeResponse, error) {
	if _, err := s.curricula.FindByID(ctx, curriculumID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	lessons, err := s.listLessons(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	active, err := s.assignments.ListActiveByCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curriculum assignments")
	}

	indexes := make(map[string]progressIndex)
	for _, assignment := range active {
		idx, ok := indexes[assignment.TeacherID]
		if !ok {
			idx, err = s.teacherIndex(ctx, assignment.TeacherID, curriculumID)
			if err != nil {
				return nil, err
			}
			indexes[assignment.TeacherID] = idx
		}
		summary, _ := scoreAssignment(assignment, lessons, idx)
		if err := s.storeSummary(ctx, assignment.ID, summary); err != nil {
			return nil, err
		}
	}
	s.metrics.RecordRecompute(len(active))
	for teacherID := range indexes {
		s.InvalidateTeacher(ctx, teacherID)
	}

	metrics, err := s.refreshMetrics(ctx, curriculumID, len(lessons))
	if err != nil {
		return nil, err
	}
	resp := &dto.RecomputeResponse{
		CurriculumID:       curriculumID,
		AssignmentsUpdated: len(active),
		TotalLessons:       metrics.TotalLessons,
		AssignedTeachers:   metrics.AssignedTeachers,
		ActiveAssignments:  metrics.ActiveAssignments,
		AverageProgress:    metrics.AverageProgress,
	}
	if actorID != "" {
		s.recordAudit(ctx, actorID, curriculumID, resp)
	}
	return resp, nil
}

// ResetCurriculumMetrics zeroes the curriculum metrics.
func (s *AggregatorService) ResetCurriculumMetrics(ctx context.Context, curriculumID string) error {
	if err := s.curricula.UpdateMetrics(ctx, curriculumID, models.CurriculumMetrics{}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset curriculum metrics")
	}
	return nil
}

// InvalidateTeacher drops every cached progress view of the teacher.
func (s *AggregatorService) InvalidateTeacher(ctx context.Context, teacherID string) {
	s.cache.Invalidate(ctx, teacherCacheKey(teacherID)+"*")
}

// refreshMetrics recomputes curriculum metrics from the stored summaries of
// the active assignments.
func (s *AggregatorService) refreshMetrics(ctx context.Context, curriculumID string, totalLessons int) (models.CurriculumMetrics, error) {
	active, err := s.assignments.ListActiveByCurriculum(ctx, curriculumID)
	if err != nil {
		return models.CurriculumMetrics{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curriculum assignments")
	}
	teachers := make(map[string]struct{}, len(active))
	values := make([]float64, 0, len(active))
	for _, assignment := range active {
		teachers[assignment.TeacherID] = struct{}{}
		values = append(values, assignment.ProgressPercentage)
	}
	metrics := models.CurriculumMetrics{
		TotalLessons:      totalLessons,
		AssignedTeachers:  len(teachers),
		ActiveAssignments: len(active),
		AverageProgress:   meanPercentage(values),
	}
	if err := s.curricula.UpdateMetrics(ctx, curriculumID, metrics); err != nil {
		return models.CurriculumMetrics{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update curriculum metrics")
	}
	return metrics, nil
}

func (s *AggregatorService) storeSummary(ctx context.Context, assignmentID string, summary models.ProgressSummary) error {
	stamp := s.now().UTC()
	summary.LastUpdated = &stamp
	if err := s.assignments.UpdateProgressSummary(ctx, assignmentID, summary); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store progress summary")
	}
	return nil
}

func (s *AggregatorService) score(ctx context.Context, assignment models.TeacherAssignment) (models.ProgressSummary, []lessonScore, error) {
	lessons, err := s.listLessons(ctx, assignment.CurriculumID)
	if err != nil {
		return models.ProgressSummary{}, nil, err
	}
	idx, err := s.teacherIndex(ctx, assignment.TeacherID, assignment.CurriculumID)
	if err != nil {
		return models.ProgressSummary{}, nil, err
	}
	summary, scores := scoreAssignment(assignment, lessons, idx)
	return summary, scores, nil
}

func (s *AggregatorService) loadAssignment(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

func (s *AggregatorService) listLessons(ctx context.Context, curriculumID string) ([]models.Lesson, error) {
	lessons, err := s.lessons.ListByCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

func (s *AggregatorService) teacherIndex(ctx context.Context, teacherID, curriculumID string) (progressIndex, error) {
	rows, err := s.progress.ListByTeacherCurriculum(ctx, teacherID, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson progress")
	}
	return indexProgress(rows), nil
}

func (s *AggregatorService) recordAudit(ctx context.Context, actorID, curriculumID string, resp *dto.RecomputeResponse) {
	if s.audit == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("encode recompute audit payload", zap.Error(err))
		return
	}
	resourceID := curriculumID
	entry := &models.AuditLog{
		ActorID:    actorID,
		Action:     models.AuditActionProgressRecompute,
		Resource:   models.AuditResourceCurriculum,
		ResourceID: &resourceID,
		NewValues:  types.JSONText(payload),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("record recompute audit", zap.String("curriculum_id", curriculumID), zap.Error(err))
	}
}
