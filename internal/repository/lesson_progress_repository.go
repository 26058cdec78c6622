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

const lessonProgressColumns = `id, teacher_id, lesson_id, assignment_id, curriculum_id, campus_id, quarter, grade_code, group_code,
       status, evidence_refs, notes, completed_at, is_verified, verified_by, verified_at,
       created_by, updated_by, created_at, updated_at`

// LessonProgressRepository persists the progress ledger. Rows are never deleted.
type LessonProgressRepository struct {
	db *sqlx.DB
}

// NewLessonProgressRepository constructs the repository.
func NewLessonProgressRepository(db *sqlx.DB) *LessonProgressRepository {
	return &LessonProgressRepository{db: db}
}

// FindByID fetches a ledger row. Missing rows surface as sql.ErrNoRows.
func (r *LessonProgressRepository) FindByID(ctx context.Context, id string) (*models.LessonProgress, error) {
	query := "SELECT " + lessonProgressColumns + " FROM lesson_progress WHERE id = $1"
	var record models.LessonProgress
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByKey returns the row for the teacher/lesson/unit key, or nil when absent.
func (r *LessonProgressRepository) FindByKey(ctx context.Context, key models.ProgressKey) (*models.LessonProgress, error) {
	query := "SELECT " + lessonProgressColumns + ` FROM lesson_progress
WHERE teacher_id = $1 AND lesson_id = $2 AND grade_code = $3 AND group_code = $4`
	var record models.LessonProgress
	if err := r.db.GetContext(ctx, &record, query, key.TeacherID, key.LessonID, string(key.GradeCode), string(key.GroupCode)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find lesson progress: %w", err)
	}
	return &record, nil
}

// ListByTeacherCurriculum returns every row of the teacher for the curriculum.
func (r *LessonProgressRepository) ListByTeacherCurriculum(ctx context.Context, teacherID, curriculumID string) ([]models.LessonProgress, error) {
	query := "SELECT " + lessonProgressColumns + ` FROM lesson_progress
WHERE teacher_id = $1 AND curriculum_id = $2
ORDER BY quarter ASC, lesson_id ASC, grade_code ASC, group_code ASC`
	var records []models.LessonProgress
	if err := r.db.SelectContext(ctx, &records, query, teacherID, curriculumID); err != nil {
		return nil, fmt.Errorf("list teacher lesson progress: %w", err)
	}
	return records, nil
}

// ListByCurriculum returns every row of the curriculum.
func (r *LessonProgressRepository) ListByCurriculum(ctx context.Context, curriculumID string) ([]models.LessonProgress, error) {
	query := "SELECT " + lessonProgressColumns + ` FROM lesson_progress
WHERE curriculum_id = $1
ORDER BY teacher_id ASC, quarter ASC, lesson_id ASC`
	var records []models.LessonProgress
	if err := r.db.SelectContext(ctx, &records, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list curriculum lesson progress: %w", err)
	}
	return records, nil
}

// CountByAssignment returns the number of rows created under the assignment.
func (r *LessonProgressRepository) CountByAssignment(ctx context.Context, assignmentID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM lesson_progress WHERE assignment_id = $1`, assignmentID); err != nil {
		return 0, fmt.Errorf("count assignment progress: %w", err)
	}
	return count, nil
}

// Create inserts a new ledger row. A duplicate unit key fails with a unique violation.
func (r *LessonProgressRepository) Create(ctx context.Context, record *models.LessonProgress) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = models.ProgressStatusNotStarted
	}

	const query = `INSERT INTO lesson_progress (id, teacher_id, lesson_id, assignment_id, curriculum_id, campus_id, quarter, grade_code, group_code,
		status, evidence_refs, notes, completed_at, is_verified, created_by, created_at, updated_at)
		VALUES (:id, :teacher_id, :lesson_id, :assignment_id, :curriculum_id, :campus_id, :quarter, :grade_code, :group_code,
		:status, :evidence_refs, :notes, :completed_at, :is_verified, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create lesson progress: %w", err)
	}
	return nil
}

// Update patches the mutable fields of a ledger row.
func (r *LessonProgressRepository) Update(ctx context.Context, record *models.LessonProgress) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lesson_progress
SET status = :status, evidence_refs = :evidence_refs, notes = :notes, completed_at = :completed_at,
    is_verified = :is_verified, verified_by = :verified_by, verified_at = :verified_at,
    updated_by = :updated_by, updated_at = :updated_at
WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update lesson progress: %w", err)
	}
	return requireAffected(result, "update lesson progress")
}
