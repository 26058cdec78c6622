package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	"github.com/cpmappstudio/cpca-teachers/pkg/database"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
	"github.com/cpmappstudio/cpca-teachers/pkg/middleware/requestid"
)

type curriculumReader interface {
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
}

type lessonLister interface {
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Lesson, error)
}

type assignmentStore interface {
	FindActive(ctx context.Context, teacherID, campusID, curriculumID string) (*models.TeacherAssignment, error)
	ListActiveByCurriculum(ctx context.Context, curriculumID string) ([]models.TeacherAssignment, error)
	Create(ctx context.Context, assignment *models.TeacherAssignment) error
	Cancel(ctx context.Context, id, actorID string, at time.Time) error
	UpdateCoverage(ctx context.Context, id string, grades models.GradeCodes, groups models.GroupCodes) error
}

type progressStore interface {
	FindByKey(ctx context.Context, key models.ProgressKey) (*models.LessonProgress, error)
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.LessonProgress, error)
	Create(ctx context.Context, record *models.LessonProgress) error
}

type curriculumRecomputer interface {
	RecomputeCurriculum(ctx context.Context, curriculumID, actorID string) (*dto.RecomputeResponse, error)
	ResetCurriculumMetrics(ctx context.Context, curriculumID string) error
	InvalidateTeacher(ctx context.Context, teacherID string)
}

// ReconcilerConfig carries defaults stamped on created assignments.
type ReconcilerConfig struct {
	AcademicYear   string
	AssignmentType models.AssignmentType
}

// ReconcilerServiceParams groups constructor dependencies.
type ReconcilerServiceParams struct {
	Curricula   curriculumReader
	Lessons     lessonLister
	Assignments assignmentStore
	Progress    progressStore
	Summaries   curriculumRecomputer
	Audit       auditWriter
	Metrics     *MetricsService
	Logger      *zap.Logger
	Config      ReconcilerConfig
}

// ReconcilerService moves assignments and ledger rows to a curriculum's
// desired assignment structure. Writes are applied one by one without a
// transaction; a failed run leaves earlier writes in place and converges when
// re-run with the same input.
type ReconcilerService struct {
	curricula   curriculumReader
	lessons     lessonLister
	assignments assignmentStore
	progress    progressStore
	summaries   curriculumRecomputer
	audit       auditWriter
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         ReconcilerConfig
	now         func() time.Time
}

// NewReconcilerService constructs the reconciler.
func NewReconcilerService(params ReconcilerServiceParams) *ReconcilerService {
	cfg := params.Config
	if !cfg.AssignmentType.Valid() {
		cfg.AssignmentType = models.AssignmentTypePrimary
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcilerService{
		curricula:   params.Curricula,
		lessons:     params.Lessons,
		assignments: params.Assignments,
		progress:    params.Progress,
		summaries:   params.Summaries,
		audit:       params.Audit,
		metrics:     params.Metrics,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Reconcile applies the difference between the old and new structures of the
// curriculum. A new structure naming no teacher cancels every active
// assignment of the curriculum and zeroes its metrics.
func (s *ReconcilerService) Reconcile(ctx context.Context, curriculumID string, old, desired []models.CampusAssignment, actorID string) (result *dto.ReconcileResponse, err error) {
	start := s.now()
	defer func() { s.metrics.ObserveReconcile(s.now().Sub(start), err) }()

	if _, err := s.curricula.FindByID(ctx, curriculumID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}

	snap, err := s.snapshot(ctx, curriculumID, old, desired)
	if err != nil {
		return nil, err
	}
	plan := BuildPlan(snap)
	s.logger.Info("reconcile plan built",
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.String("curriculum_id", curriculumID),
		zap.Int("operations", len(plan.Operations)),
		zap.Int("writes", plan.Writes()),
	)

	result = &dto.ReconcileResponse{CurriculumID: curriculumID, TouchedAssignments: []string{}}
	teachers, err := s.apply(ctx, plan, snap, actorID, result)
	for teacherID := range teachers {
		s.summaries.InvalidateTeacher(ctx, teacherID)
	}
	if err != nil {
		return nil, err
	}

	if appliedWrites(result) == 0 {
		return result, nil
	}
	if !result.MetricsReset {
		if _, err := s.summaries.RecomputeCurriculum(ctx, curriculumID, ""); err != nil {
			return nil, err
		}
	}
	s.recordAudit(ctx, curriculumID, actorID, old, desired, result)
	return result, nil
}

func (s *ReconcilerService) snapshot(ctx context.Context, curriculumID string, old, desired []models.CampusAssignment) (ReconcileSnapshot, error) {
	lessons, err := s.lessons.ListByCurriculum(ctx, curriculumID)
	if err != nil {
		return ReconcileSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	active, err := s.assignments.ListActiveByCurriculum(ctx, curriculumID)
	if err != nil {
		return ReconcileSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curriculum assignments")
	}
	rows, err := s.progress.ListByCurriculum(ctx, curriculumID)
	if err != nil {
		return ReconcileSnapshot{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson progress")
	}
	return ReconcileSnapshot{
		CurriculumID: curriculumID,
		Old:          old,
		New:          desired,
		Lessons:      lessons,
		Active:       active,
		Progress:     rows,
	}, nil
}

// apply executes the plan in order and stops at the first store error. It
// returns the teachers whose assignments or rows were written.
func (s *ReconcilerService) apply(ctx context.Context, plan Plan, snap ReconcileSnapshot, actorID string, result *dto.ReconcileResponse) (map[string]struct{}, error) {
	teachers := make(map[string]struct{})
	byPair := make(map[assignmentPair]string)
	touched := make(map[string]struct{})
	touch := func(teacherID, assignmentID string) {
		teachers[teacherID] = struct{}{}
		if _, ok := touched[assignmentID]; !ok && assignmentID != "" {
			touched[assignmentID] = struct{}{}
			result.TouchedAssignments = append(result.TouchedAssignments, assignmentID)
		}
	}

	for _, op := range plan.Operations {
		outcome, err := s.applyOne(ctx, op, snap, actorID, byPair, touch, result)
		if err != nil {
			s.metrics.RecordReconcileOperation(op.Kind, "error")
			s.logger.Error("reconcile operation failed",
				zap.String("request_id", requestid.FromContext(ctx)),
				zap.String("curriculum_id", plan.CurriculumID),
				zap.String("kind", string(op.Kind)),
				zap.String("teacher_id", op.TeacherID),
				zap.String("campus_id", op.CampusID),
				zap.Error(err),
			)
			return teachers, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile assignments")
		}
		s.metrics.RecordReconcileOperation(op.Kind, outcome)
	}
	return teachers, nil
}

func (s *ReconcilerService) applyOne(
	ctx context.Context,
	op Operation,
	snap ReconcileSnapshot,
	actorID string,
	byPair map[assignmentPair]string,
	touch func(teacherID, assignmentID string),
	result *dto.ReconcileResponse,
) (string, error) {
	switch op.Kind {
	case OpSkip:
		result.Skipped++
		if op.AssignmentID != "" {
			byPair[op.pair()] = op.AssignmentID
		}
		return "skipped", nil

	case OpCreateAssignment:
		existing, err := s.assignments.FindActive(ctx, op.TeacherID, op.CampusID, snap.CurriculumID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			byPair[op.pair()] = existing.ID
			result.Skipped++
			return "skipped", nil
		}
		assignment := &models.TeacherAssignment{
			TeacherID:          op.TeacherID,
			CurriculumID:       snap.CurriculumID,
			CampusID:           op.CampusID,
			AcademicYear:       s.cfg.AcademicYear,
			AssignmentType:     s.cfg.AssignmentType,
			AssignedGrades:     op.Grades,
			AssignedGroupCodes: op.Groups,
			ProgressSummary:    models.ProgressSummary{TotalLessons: len(snap.Lessons)},
			AssignedBy:         actorID,
			AssignedAt:         s.now().UTC(),
		}
		if err := s.assignments.Create(ctx, assignment); err != nil {
			if !database.IsUniqueViolation(err) {
				return "", err
			}
			existing, findErr := s.assignments.FindActive(ctx, op.TeacherID, op.CampusID, snap.CurriculumID)
			if findErr != nil || existing == nil {
				return "", fmt.Errorf("resolve conflicting assignment: %w", err)
			}
			byPair[op.pair()] = existing.ID
			result.Skipped++
			return "skipped", nil
		}
		byPair[op.pair()] = assignment.ID
		touch(op.TeacherID, assignment.ID)
		result.AssignmentsCreated++
		return "applied", nil

	case OpCancelAssignment:
		err := s.assignments.Cancel(ctx, op.AssignmentID, actorID, s.now())
		if errors.Is(err, sql.ErrNoRows) {
			result.Skipped++
			return "skipped", nil
		}
		if err != nil {
			return "", err
		}
		touch(op.TeacherID, op.AssignmentID)
		result.AssignmentsCancelled++
		return "applied", nil

	case OpUpdateCoverage:
		if err := s.assignments.UpdateCoverage(ctx, op.AssignmentID, op.Grades, op.Groups); err != nil {
			return "", err
		}
		byPair[op.pair()] = op.AssignmentID
		touch(op.TeacherID, op.AssignmentID)
		result.CoverageUpdated++
		if len(op.RetainedGrades) > 0 || len(op.RetainedGroups) > 0 {
			s.logger.Info("coverage narrowed, progress rows retained",
				zap.String("assignment_id", op.AssignmentID),
				zap.Strings("grades", op.RetainedGrades.Strings()),
				zap.Strings("groups", op.RetainedGroups.Strings()),
			)
		}
		return "applied", nil

	case OpCreateProgress:
		assignmentID := op.AssignmentID
		if assignmentID == "" {
			assignmentID = byPair[op.pair()]
		}
		if assignmentID == "" {
			return "", fmt.Errorf("no assignment resolved for teacher %s at campus %s", op.TeacherID, op.CampusID)
		}
		key := models.ProgressKey{TeacherID: op.TeacherID, LessonID: op.LessonID, GradeCode: op.GradeCode, GroupCode: op.GroupCode}
		existing, err := s.progress.FindByKey(ctx, key)
		if err != nil {
			return "", err
		}
		if existing != nil {
			result.Skipped++
			return "skipped", nil
		}
		record := &models.LessonProgress{
			TeacherID:    op.TeacherID,
			LessonID:     op.LessonID,
			AssignmentID: assignmentID,
			CurriculumID: snap.CurriculumID,
			CampusID:     op.CampusID,
			Quarter:      op.Quarter,
			GradeCode:    op.GradeCode,
			GroupCode:    op.GroupCode,
			Status:       models.ProgressStatusNotStarted,
			EvidenceRefs: models.EvidenceRefs{},
			CreatedBy:    actorID,
		}
		if err := s.progress.Create(ctx, record); err != nil {
			if database.IsUniqueViolation(err) {
				result.Skipped++
				return "skipped", nil
			}
			return "", err
		}
		touch(op.TeacherID, assignmentID)
		result.ProgressCreated++
		return "applied", nil

	case OpResetMetrics:
		if err := s.summaries.ResetCurriculumMetrics(ctx, snap.CurriculumID); err != nil {
			return "", err
		}
		result.MetricsReset = true
		return "applied", nil
	}
	return "", fmt.Errorf("unknown reconcile operation %q", op.Kind)
}

// appliedWrites counts record writes. A metrics reset only overwrites derived
// counters and is left out so replaying an empty structure records nothing.
func appliedWrites(result *dto.ReconcileResponse) int {
	return result.AssignmentsCreated + result.AssignmentsCancelled + result.CoverageUpdated + result.ProgressCreated
}

func (s *ReconcilerService) recordAudit(ctx context.Context, curriculumID, actorID string, old, desired []models.CampusAssignment, result *dto.ReconcileResponse) {
	if s.audit == nil {
		return
	}
	oldPayload, err := json.Marshal(models.CampusAssignments(old))
	if err != nil {
		s.logger.Warn("encode reconcile audit payload", zap.Error(err))
		return
	}
	newPayload, err := json.Marshal(map[string]interface{}{
		"campusAssignments": models.CampusAssignments(desired),
		"result":            result,
	})
	if err != nil {
		s.logger.Warn("encode reconcile audit payload", zap.Error(err))
		return
	}
	resourceID := curriculumID
	entry := &models.AuditLog{
		ActorID:    actorID,
		Action:     models.AuditActionAssignmentsReconcile,
		Resource:   models.AuditResourceCurriculum,
		ResourceID: &resourceID,
		OldValues:  types.JSONText(oldPayload),
		NewValues:  types.JSONText(newPayload),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("record reconcile audit", zap.String("curriculum_id", curriculumID), zap.Error(err))
	}
}
