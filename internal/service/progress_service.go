package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	"github.com/cpmappstudio/cpca-teachers/pkg/database"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/middleware/requestid"
)

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error)
}

type lessonFinder interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type progressLedger interface {
	FindByID(ctx context.Context, id string) (*models.LessonProgress, error)
	FindByKey(ctx context.Context, key models.ProgressKey) (*models.LessonProgress, error)
	Create(ctx context.Context, record *models.LessonProgress) error
	Update(ctx context.Context, record *models.LessonProgress) error
}

type summaryRefresher interface {
	RecomputeTeacherCurriculum(ctx context.Context, teacherID, curriculumID string) error
	InvalidateTeacher(ctx context.Context, teacherID string)
}

// ProgressService records lesson progress against the ledger state machine.
type ProgressService struct {
	assignments assignmentReader
	lessons     lessonFinder
	ledger      progressLedger
	summaries   summaryRefresher
	audit       auditWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	encode      func(v interface{}) ([]byte, error)
}

// NewProgressService constructs the progress service.
func NewProgressService(
	assignments assignmentReader,
	lessons lessonFinder,
	ledger progressLedger,
	summaries summaryRefresher,
	audit auditWriter,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ProgressService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ProgressService{
		assignments: assignments,
		lessons:     lessons,
		ledger:      ledger,
		summaries:   summaries,
		audit:       audit,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
		encode:      json.Marshal,
	}
	registerCohortCode(svc.validator)
	svc.validator.RegisterValidation("progress_status", func(fl validator.FieldLevel) bool {
		return models.ProgressStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// registerCohortCode installs the cohort_code tag used by grade and group fields.
func registerCohortCode(v *validator.Validate) {
	v.RegisterValidation("cohort_code", func(fl validator.FieldLevel) bool {
		return models.ValidCohortCode(fl.Field().String())
	})
}

// UpsertProgress creates or patches the ledger row for the teacher, lesson and
// unit. It reports whether a new row was created.
func (s *ProgressService) UpsertProgress(ctx context.Context, req dto.RecordProgressRequest) (*models.LessonProgress, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	status := models.ProgressStatus(strings.ToLower(req.Status))
	var grade models.GradeCode
	var group models.GroupCode
	var err error
	if strings.TrimSpace(req.GradeCode) != "" {
		if grade, err = models.ParseGradeCode(req.GradeCode); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gradeCode")
		}
	}
	if strings.TrimSpace(req.GroupCode) != "" {
		if group, err = models.ParseGroupCode(req.GroupCode); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid groupCode")
		}
	}

	assignment, lesson, err := s.checkCoverage(ctx, req, grade, group)
	if err != nil {
		return nil, false, err
	}

	actor := req.ActorID
	if actor == "" {
		actor = req.TeacherID
	}
	key := models.ProgressKey{TeacherID: req.TeacherID, LessonID: lesson.ID, GradeCode: grade, GroupCode: group}
	existing, err := s.ledger.FindByKey(ctx, key)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson progress")
	}

	created := false
	var record *models.LessonProgress
	if existing == nil {
		record, err = s.create(ctx, assignment, lesson, key, status, req, actor)
		if err != nil && database.IsUniqueViolation(err) {
			// lost a race with a concurrent create; fall through to a patch
			existing, err = s.ledger.FindByKey(ctx, key)
			if err == nil && existing == nil {
				err = fmt.Errorf("lesson progress %s/%s vanished after conflict", key.TeacherID, key.LessonID)
			}
		} else if err == nil {
			created = true
		}
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record lesson progress")
		}
	}
	if !created {
		record, err = s.patch(ctx, existing, status, req, actor)
		if err != nil {
			return nil, false, err
		}
	}

	s.metrics.RecordProgressUpsert(string(status), created)
	s.logger.Info("lesson progress recorded",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("progress_id", record.ID),
		zap.String("teacher_id", record.TeacherID),
		zap.String("lesson_id", record.LessonID),
		zap.String("status", string(record.Status)),
		zap.Bool("created", created),
	)

	if err := s.summaries.RecomputeTeacherCurriculum(ctx, assignment.TeacherID, assignment.CurriculumID); err != nil {
		return nil, false, err
	}
	return record, created, nil
}

// checkCoverage loads the assignment and lesson and verifies that the unit
// may be progressed under the assignment.
func (s *ProgressService) checkCoverage(ctx context.Context, req dto.RecordProgressRequest, grade models.GradeCode, group models.GroupCode) (*models.TeacherAssignment, *models.Lesson, error) {
	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if !assignment.IsActive {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment is cancelled")
	}
	if assignment.TeacherID != req.TeacherID {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "assignment belongs to another teacher")
	}

	lesson, err := s.lessons.FindByID(ctx, req.LessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.CurriculumID != assignment.CurriculumID {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "lesson does not belong to the assignment curriculum")
	}

	if grade == "" && group == "" && (assignment.GroupBased() || len(assignment.AssignedGrades) > 0) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "gradeCode or groupCode is required for this assignment")
	}
	if !assignment.Covers(grade, group) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "grade or group is not covered by the assignment")
	}
	if grade != "" && !lesson.AppliesToGrade(grade) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidState, "lesson does not apply to the grade")
	}
	return assignment, lesson, nil
}

func (s *ProgressService) create(ctx context.Context, assignment *models.TeacherAssignment, lesson *models.Lesson, key models.ProgressKey, status models.ProgressStatus, req dto.RecordProgressRequest, actor string) (*models.LessonProgress, error) {
	record := &models.LessonProgress{
		TeacherID:    key.TeacherID,
		LessonID:     key.LessonID,
		AssignmentID: assignment.ID,
		CurriculumID: assignment.CurriculumID,
		CampusID:     assignment.CampusID,
		Quarter:      lesson.Quarter,
		GradeCode:    key.GradeCode,
		GroupCode:    key.GroupCode,
		Status:       status,
		EvidenceRefs: models.EvidenceRefs{}.Merge(req.EvidenceRefs),
		Notes:        req.Notes,
		CreatedBy:    actor,
	}
	if status == models.ProgressStatusCompleted {
		at := s.now().UTC()
		record.CompletedAt = &at
	}
	if err := s.ledger.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *ProgressService) patch(ctx context.Context, record *models.LessonProgress, status models.ProgressStatus, req dto.RecordProgressRequest, actor string) (*models.LessonProgress, error) {
	if !record.Status.CanTransitionTo(status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("cannot move lesson progress from %s to %s", record.Status, status))
	}
	record.Status = status
	record.EvidenceRefs = record.EvidenceRefs.Merge(req.EvidenceRefs)
	if req.Notes != nil {
		record.Notes = req.Notes
	}
	if status == models.ProgressStatusCompleted && record.CompletedAt == nil {
		at := s.now().UTC()
		record.CompletedAt = &at
	}
	record.UpdatedBy = &actor
	if err := s.ledger.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson progress")
	}
	return record, nil
}

// VerifyProgress marks a completed row as verified. Verifying twice is a no-op.
func (s *ProgressService) VerifyProgress(ctx context.Context, id string, req dto.VerifyProgressRequest) (*models.LessonProgress, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}
	record, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson progress not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson progress")
	}
	if record.Status != models.ProgressStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only completed lessons can be verified")
	}
	if record.IsVerified {
		return record, nil
	}
	at := s.now().UTC()
	record.IsVerified = true
	record.VerifiedBy = &req.VerifierID
	record.VerifiedAt = &at
	record.UpdatedBy = &req.VerifierID
	if err := s.ledger.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify lesson progress")
	}
	s.summaries.InvalidateTeacher(ctx, record.TeacherID)

	s.recordVerification(ctx, record, req.VerifierID)
	return record, nil
}

func (s *ProgressService) recordVerification(ctx context.Context, record *models.LessonProgress, verifierID string) {
	if s.audit == nil {
		return
	}
	payload, err := s.encode(map[string]string{"verifiedBy": verifierID, "lessonId": record.LessonID})
	if err != nil {
		s.logger.Warn("encode verification audit payload", zap.String("progress_id", record.ID), zap.Error(err))
		return
	}
	resourceID := record.ID
	entry := &models.AuditLog{
		ActorID:    verifierID,
		Action:     models.AuditActionProgressVerify,
		Resource:   models.AuditResourceLessonProgress,
		ResourceID: &resourceID,
		NewValues:  types.JSONText(payload),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("record verification audit", zap.String("progress_id", record.ID), zap.Error(err))
	}
}
