package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

func newTeacherAssignmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func assignmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "teacher_id", "curriculum_id", "campus_id", "academic_year", "assignment_type", "is_active", "status",
		"assigned_grades", "assigned_group_codes", "total_lessons", "completed_lessons", "progress_percentage", "progress_updated_at",
		"assigned_by", "assigned_at", "cancelled_by", "cancelled_at", "updated_at"})
}

func TestTeacherAssignmentRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT .* FROM teacher_assignments\s+WHERE teacher_id = \$1 AND campus_id = \$2 AND curriculum_id = \$3 AND is_active`).
		WithArgs("t1", "campus-1", "cur-1").
		WillReturnRows(assignmentRows().AddRow("a1", "t1", "cur-1", "campus-1", "2026-2027", "primary", true, "active",
			"{3A}", "{}", 4, 1, 25.0, now, "admin", now, nil, nil, now))

	assignment, err := repo.FindActive(context.Background(), "t1", "campus-1", "cur-1")
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, models.GradeCodes{"3A"}, assignment.AssignedGrades)
	assert.Empty(t, assignment.AssignedGroupCodes)
	assert.Equal(t, 25.0, assignment.ProgressPercentage)
	assert.True(t, assignment.Covers("3A", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryFindActiveNone(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM teacher_assignments`).
		WithArgs("t1", "campus-1", "cur-1").
		WillReturnError(sql.ErrNoRows)

	assignment, err := repo.FindActive(context.Background(), "t1", "campus-1", "cur-1")
	require.NoError(t, err)
	assert.Nil(t, assignment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryListByTeacherActiveOnly(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectQuery(`(?s)FROM teacher_assignments WHERE teacher_id = \$1 AND is_active ORDER BY assigned_at DESC`).
		WithArgs("t1").
		WillReturnRows(assignmentRows())

	assignments, err := repo.ListByTeacher(context.Background(), "t1", true)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectExec("INSERT INTO teacher_assignments").WillReturnResult(sqlmock.NewResult(1, 1))

	assignment := &models.TeacherAssignment{TeacherID: "t1", CurriculumID: "cur-1", CampusID: "campus-1", AssignmentType: models.AssignmentTypePrimary}
	require.NoError(t, repo.Create(context.Background(), assignment))
	assert.NotEmpty(t, assignment.ID)
	assert.True(t, assignment.IsActive)
	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta(`UPDATE teacher_assignments
SET is_active = FALSE, status = 'cancelled', cancelled_by = $2, cancelled_at = $3, updated_at = $3
WHERE id = $1 AND is_active`)
	mock.ExpectExec(query).WithArgs("a1", "admin", at).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Cancel(context.Background(), "a1", "admin", at))

	mock.ExpectExec(query).WithArgs("a1", "admin", at).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Cancel(context.Background(), "a1", "admin", at), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAssignmentRepositoryUpdateCoverageAndSummary(t *testing.T) {
	db, mock, cleanup := newTeacherAssignmentMock(t)
	defer cleanup()
	repo := NewTeacherAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teacher_assignments SET assigned_grades = $2, assigned_group_codes = $3")).
		WithArgs("a1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateCoverage(context.Background(), "a1", models.GradeCodes{"3A", "3B"}, nil))

	stamp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE teacher_assignments").
		WithArgs("a1", 4, 2, 50.0, stamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateProgressSummary(context.Background(), "a1", models.ProgressSummary{
		TotalLessons: 4, CompletedLessons: 2, ProgressPercentage: 50, LastUpdated: &stamp,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
