package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

const lessonColumns = `id, curriculum_id, title, description, quarter, order_in_quarter, grade_codes, is_active, created_at, updated_at`

// LessonRepository persists curriculum lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ListByCurriculum returns active lessons ordered by quarter and position.
func (r *LessonRepository) ListByCurriculum(ctx context.Context, curriculumID string) ([]models.Lesson, error) {
	query := "SELECT " + lessonColumns + ` FROM lessons
WHERE curriculum_id = $1 AND is_active
ORDER BY quarter ASC, order_in_quarter ASC, created_at ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// FindByID fetches a lesson by ID. Missing rows surface as sql.ErrNoRows.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := "SELECT " + lessonColumns + " FROM lessons WHERE id = $1"
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// Create inserts a new lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.UpdatedAt = now

	const query = `INSERT INTO lessons (id, curriculum_id, title, description, quarter, order_in_quarter, grade_codes, is_active, created_at, updated_at)
		VALUES (:id, :curriculum_id, :title, :description, :quarter, :order_in_quarter, :grade_codes, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}
