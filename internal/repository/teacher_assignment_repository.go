package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

const teacherAssignmentColumns = `id, teacher_id, curriculum_id, campus_id, academic_year, assignment_type, is_active, status,
       assigned_grades, assigned_group_codes, total_lessons, completed_lessons, progress_percentage, progress_updated_at,
       assigned_by, assigned_at, cancelled_by, cancelled_at, updated_at`

// TeacherAssignmentRepository persists teacher-curriculum-campus assignments.
type TeacherAssignmentRepository struct {
	db *sqlx.DB
}

// NewTeacherAssignmentRepository constructs the repository.
func NewTeacherAssignmentRepository(db *sqlx.DB) *TeacherAssignmentRepository {
	return &TeacherAssignmentRepository{db: db}
}

// FindByID fetches an assignment regardless of state. Missing rows surface as sql.ErrNoRows.
func (r *TeacherAssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	query := "SELECT " + teacherAssignmentColumns + " FROM teacher_assignments WHERE id = $1"
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindActive returns the active assignment for the triple, or nil when none exists.
func (r *TeacherAssignmentRepository) FindActive(ctx context.Context, teacherID, campusID, curriculumID string) (*models.TeacherAssignment, error) {
	query := "SELECT " + teacherAssignmentColumns + ` FROM teacher_assignments
WHERE teacher_id = $1 AND campus_id = $2 AND curriculum_id = $3 AND is_active
LIMIT 1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, teacherID, campusID, curriculumID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active teacher assignment: %w", err)
	}
	return &assignment, nil
}

// ListActiveByCurriculum returns every active assignment of the curriculum.
func (r *TeacherAssignmentRepository) ListActiveByCurriculum(ctx context.Context, curriculumID string) ([]models.TeacherAssignment, error) {
	query := "SELECT " + teacherAssignmentColumns + ` FROM teacher_assignments
WHERE curriculum_id = $1 AND is_active
ORDER BY campus_id ASC, teacher_id ASC`
	var assignments []models.TeacherAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list curriculum assignments: %w", err)
	}
	return assignments, nil
}

// ListByTeacher returns the teacher's assignments, newest first.
func (r *TeacherAssignmentRepository) ListByTeacher(ctx context.Context, teacherID string, activeOnly bool) ([]models.TeacherAssignment, error) {
	query := "SELECT " + teacherAssignmentColumns + " FROM teacher_assignments WHERE teacher_id = $1"
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY assigned_at DESC"
	var assignments []models.TeacherAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	return assignments, nil
}

// Create inserts a new active assignment.
func (r *TeacherAssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = now
	}
	assignment.UpdatedAt = now
	assignment.IsActive = true
	assignment.Status = models.AssignmentStatusActive

	const query = `INSERT INTO teacher_assignments (id, teacher_id, curriculum_id, campus_id, academic_year, assignment_type, is_active, status,
		assigned_grades, assigned_group_codes, total_lessons, completed_lessons, progress_percentage, progress_updated_at,
		assigned_by, assigned_at, updated_at)
		VALUES (:id, :teacher_id, :curriculum_id, :campus_id, :academic_year, :assignment_type, :is_active, :status,
		:assigned_grades, :assigned_group_codes, :total_lessons, :completed_lessons, :progress_percentage, :progress_updated_at,
		:assigned_by, :assigned_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create teacher assignment: %w", err)
	}
	return nil
}

// Cancel soft-deactivates an active assignment. Cancelled rows are never reactivated.
func (r *TeacherAssignmentRepository) Cancel(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE teacher_assignments
SET is_active = FALSE, status = 'cancelled', cancelled_by = $2, cancelled_at = $3, updated_at = $3
WHERE id = $1 AND is_active`
	result, err := r.db.ExecContext(ctx, query, id, actorID, at.UTC())
	if err != nil {
		return fmt.Errorf("cancel teacher assignment: %w", err)
	}
	return requireAffected(result, "cancel teacher assignment")
}

// UpdateCoverage replaces the grade/group coverage of an active assignment.
func (r *TeacherAssignmentRepository) UpdateCoverage(ctx context.Context, id string, grades models.GradeCodes, groups models.GroupCodes) error {
	const query = `UPDATE teacher_assignments SET assigned_grades = $2, assigned_group_codes = $3, updated_at = $4 WHERE id = $1 AND is_active`
	result, err := r.db.ExecContext(ctx, query, id, grades, groups, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update assignment coverage: %w", err)
	}
	return requireAffected(result, "update assignment coverage")
}

// UpdateProgressSummary stores a recomputed progress summary.
func (r *TeacherAssignmentRepository) UpdateProgressSummary(ctx context.Context, id string, summary models.ProgressSummary) error {
	const query = `UPDATE teacher_assignments
SET total_lessons = $2, completed_lessons = $3, progress_percentage = $4, progress_updated_at = $5
WHERE id = $1`
	updatedAt := time.Now().UTC()
	if summary.LastUpdated != nil {
		updatedAt = summary.LastUpdated.UTC()
	}
	result, err := r.db.ExecContext(ctx, query, id, summary.TotalLessons, summary.CompletedLessons, summary.ProgressPercentage, updatedAt)
	if err != nil {
		return fmt.Errorf("update progress summary: %w", err)
	}
	return requireAffected(result, "update progress summary")
}
