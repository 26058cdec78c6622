package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cpmappstudio/cpca-teachers/internal/dto"
	"github.com/cpmappstudio/cpca-teachers/internal/models"
	appErrors "github.com/cpmappstudio/cpca-teachers/pkg/errors"
)

type curriculumRepository interface {
	List(ctx context.Context, filter models.CurriculumFilter) ([]models.Curriculum, int, error)
	FindByID(ctx context.Context, id string) (*models.Curriculum, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, curriculum *models.Curriculum) error
	UpdateCampusAssignments(ctx context.Context, id string, assignments models.CampusAssignments, actorID string) error
}

type lessonRepository interface {
	ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
}

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type assignmentReconciler interface {
	Reconcile(ctx context.Context, curriculumID string, old, desired []models.CampusAssignment, actorID string) (*dto.ReconcileResponse, error)
}

// CurriculumService manages curricula, their lessons and their desired
// assignment structure.
type CurriculumService struct {
	curricula  curriculumRepository
	lessons    lessonRepository
	reconciler assignmentReconciler
	audit      auditReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCurriculumService constructs the curriculum service. audit may be nil, in
// which case the audit trail reads empty.
func NewCurriculumService(curricula curriculumRepository, lessons lessonRepository, reconciler assignmentReconciler, audit auditReader, validate *validator.Validate, logger *zap.Logger) *CurriculumService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CurriculumService{curricula: curricula, lessons: lessons, reconciler: reconciler, audit: audit, validator: validate, logger: logger}
	registerCohortCode(svc.validator)
	svc.validator.RegisterValidation("curriculum_status", func(fl validator.FieldLevel) bool {
		return models.CurriculumStatus(strings.ToLower(fl.Field().String())).Valid()
	})
	return svc
}

// List returns curricula plus pagination data.
func (s *CurriculumService) List(ctx context.Context, filter models.CurriculumFilter) ([]models.Curriculum, *models.Pagination, error) {
	curricula, total, err := s.curricula.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curricula")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return curricula, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a curriculum by id.
func (s *CurriculumService) Get(ctx context.Context, id string) (*models.Curriculum, error) {
	curriculum, err := s.curricula.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
	}
	return curriculum, nil
}

// ListAudit returns the newest audit entries recorded against the curriculum.
func (s *CurriculumService) ListAudit(ctx context.Context, curriculumID string, limit int) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, curriculumID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audit.ListByResource(ctx, models.AuditResourceCurriculum, curriculumID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit trail")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

// Create registers a curriculum with an empty assignment structure.
func (s *CurriculumService) Create(ctx context.Context, req dto.CreateCurriculumRequest) (*models.Curriculum, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid curriculum payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.curricula.ExistsByCode(ctx, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check curriculum code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "curriculum code already exists")
	}
	status := models.CurriculumStatus(strings.ToLower(req.Status))
	if status == "" {
		status = models.CurriculumStatusDraft
	}
	curriculum := &models.Curriculum{
		Name:              strings.TrimSpace(req.Name),
		Code:              code,
		Description:       req.Description,
		NumberOfQuarters:  req.NumberOfQuarters,
		Status:            status,
		CampusAssignments: models.CampusAssignments{},
		CreatedBy:         req.ActorID,
	}
	if err := s.curricula.Create(ctx, curriculum); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create curriculum")
	}
	return curriculum, nil
}

// ListLessons returns the active lessons of a curriculum.
func (s *CurriculumService) ListLessons(ctx context.Context, curriculumID string) ([]models.Lesson, error) {
	if _, err := s.Get(ctx, curriculumID); err != nil {
		return nil, err
	}
	lessons, err := s.lessons.ListByCurriculum(ctx, curriculumID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// CreateLesson adds a lesson and re-applies the current assignment structure
// so assigned teachers get ledger rows for it.
func (s *CurriculumService) CreateLesson(ctx context.Context, curriculumID string, req dto.CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	curriculum, err := s.Get(ctx, curriculumID)
	if err != nil {
		return nil, err
	}
	if req.Quarter > curriculum.NumberOfQuarters {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("quarter must be between 1 and %d", curriculum.NumberOfQuarters))
	}
	grades, err := models.NewGradeCodes(req.GradeCodes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid gradeCodes")
	}
	lesson := &models.Lesson{
		CurriculumID:   curriculumID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Quarter:        req.Quarter,
		OrderInQuarter: req.OrderInQuarter,
		GradeCodes:     grades,
		IsActive:       true,
	}
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	if len(curriculum.CampusAssignments) > 0 {
		actor := req.ActorID
		if actor == "" {
			actor = curriculum.CreatedBy
		}
		current := []models.CampusAssignment(curriculum.CampusAssignments)
		if _, err := s.reconciler.Reconcile(ctx, curriculumID, current, current, actor); err != nil {
			return nil, err
		}
	}
	return lesson, nil
}

// UpdateAssignments replaces the desired assignment structure and reconciles
// assignments and ledger rows against it. The structure is stored only after
// reconciliation succeeds, so a failed call can be retried as is.
func (s *CurriculumService) UpdateAssignments(ctx context.Context, curriculumID string, req dto.UpdateCurriculumAssignmentsRequest) (*dto.ReconcileResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment structure")
	}
	desired, err := toCampusAssignments(req.CampusAssignments)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment structure")
	}
	curriculum, err := s.Get(ctx, curriculumID)
	if err != nil {
		return nil, err
	}

	result, err := s.reconciler.Reconcile(ctx, curriculumID, curriculum.CampusAssignments, desired, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.curricula.UpdateCampusAssignments(ctx, curriculumID, desired, req.ActorID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store assignment structure")
	}
	s.logger.Info("curriculum assignments updated",
		zap.String("curriculum_id", curriculumID),
		zap.String("actor_id", req.ActorID),
		zap.Int("created", result.AssignmentsCreated),
		zap.Int("cancelled", result.AssignmentsCancelled),
		zap.Int("progress_created", result.ProgressCreated),
	)
	return result, nil
}

func toCampusAssignments(inputs []dto.CampusAssignmentInput) (models.CampusAssignments, error) {
	out := make(models.CampusAssignments, 0, len(inputs))
	for i, input := range inputs {
		grades, err := models.NewGradeCodes(input.GradeCodes)
		if err != nil {
			return nil, fmt.Errorf("campusAssignments[%d]: %w", i, err)
		}
		groups, err := models.NewGroupCodes(input.GroupCodes)
		if err != nil {
			return nil, fmt.Errorf("campusAssignments[%d]: %w", i, err)
		}
		teachers := make([]string, 0, len(input.TeacherIDs))
		for _, id := range input.TeacherIDs {
			if id = strings.TrimSpace(id); id != "" {
				teachers = append(teachers, id)
			}
		}
		out = append(out, models.CampusAssignment{
			CampusID:         strings.TrimSpace(input.CampusID),
			AssignedTeachers: teachers,
			GradeCodes:       grades,
			GroupCodes:       groups,
		})
	}
	return out, nil
}
