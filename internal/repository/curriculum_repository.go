package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

const curriculumColumns = `id, name, code, description, number_of_quarters, status, campus_assignments,
       total_lessons, assigned_teachers, active_assignments, average_progress,
       created_by, updated_by, created_at, updated_at`

// CurriculumRepository persists curricula and their desired assignment structure.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository constructs the repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// List returns curricula matching filters along with total count.
func (r *CurriculumRepository) List(ctx context.Context, filter models.CurriculumFilter) ([]models.Curriculum, int, error) {
	base := "FROM curricula WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(code) LIKE $%d)", len(args), len(args)))
	}
	if filter.CampusID != "" {
		containment, err := json.Marshal([]map[string]string{{"campusId": filter.CampusID}})
		if err != nil {
			return nil, 0, fmt.Errorf("encode campus filter: %w", err)
		}
		args = append(args, string(containment))
		conditions = append(conditions, fmt.Sprintf("campus_assignments @> $%d::jsonb", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"code":       "code",
		"created_at": "created_at",
		"updated_at": "updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", curriculumColumns, base, column, order, size, offset)
	var curricula []models.Curriculum
	if err := r.db.SelectContext(ctx, &curricula, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list curricula: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count curricula: %w", err)
	}
	return curricula, total, nil
}

// FindByID fetches a curriculum by ID. Missing rows surface as sql.ErrNoRows.
func (r *CurriculumRepository) FindByID(ctx context.Context, id string) (*models.Curriculum, error) {
	query := "SELECT " + curriculumColumns + " FROM curricula WHERE id = $1"
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// ExistsByCode checks whether another curriculum uses the code.
func (r *CurriculumRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM curricula WHERE LOWER(code) = LOWER($1))`, code); err != nil {
		return false, fmt.Errorf("check curriculum code: %w", err)
	}
	return exists, nil
}

// Create inserts a new curriculum.
func (r *CurriculumRepository) Create(ctx context.Context, curriculum *models.Curriculum) error {
	if curriculum.ID == "" {
		curriculum.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if curriculum.CreatedAt.IsZero() {
		curriculum.CreatedAt = now
	}
	curriculum.UpdatedAt = now

	const query = `INSERT INTO curricula (id, name, code, description, number_of_quarters, status, campus_assignments, created_by, created_at, updated_at)
		VALUES (:id, :name, :code, :description, :number_of_quarters, :status, :campus_assignments, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, curriculum); err != nil {
		return fmt.Errorf("create curriculum: %w", err)
	}
	return nil
}

// UpdateCampusAssignments replaces the desired assignment structure.
func (r *CurriculumRepository) UpdateCampusAssignments(ctx context.Context, id string, assignments models.CampusAssignments, actorID string) error {
	const query = `UPDATE curricula SET campus_assignments = $2, updated_by = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, assignments, actorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update campus assignments: %w", err)
	}
	return requireAffected(result, "update campus assignments")
}

// UpdateMetrics stores recomputed curriculum metrics.
func (r *CurriculumRepository) UpdateMetrics(ctx context.Context, id string, metrics models.CurriculumMetrics) error {
	const query = `UPDATE curricula
SET total_lessons = $2, assigned_teachers = $3, active_assignments = $4, average_progress = $5, updated_at = $6
WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, metrics.TotalLessons, metrics.AssignedTeachers, metrics.ActiveAssignments, metrics.AverageProgress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update curriculum metrics: %w", err)
	}
	return requireAffected(result, "update curriculum metrics")
}
