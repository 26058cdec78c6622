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

func newLessonProgressRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func progressRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "teacher_id", "lesson_id", "assignment_id", "curriculum_id", "campus_id", "quarter", "grade_code", "group_code",
		"status", "evidence_refs", "notes", "completed_at", "is_verified", "verified_by", "verified_at",
		"created_by", "updated_by", "created_at", "updated_at"})
}

func TestLessonProgressRepositoryFindByKey(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	now := time.Now()
	mock.ExpectQuery(`(?s)SELECT .* FROM lesson_progress\s+WHERE teacher_id = \$1 AND lesson_id = \$2 AND grade_code = \$3 AND group_code = \$4`).
		WithArgs("t1", "l1", "3A", "").
		WillReturnRows(progressRows().AddRow("p1", "t1", "l1", "a1", "cur-1", "campus-1", 1, "3A", "",
			"completed", "{ev-1,ev-2}", nil, now, false, nil, nil, "admin", nil, now, now))

	record, err := repo.FindByKey(context.Background(), models.ProgressKey{TeacherID: "t1", LessonID: "l1", GradeCode: "3A"})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.EvidenceRefs{"ev-1", "ev-2"}, record.EvidenceRefs)
	assert.True(t, record.CountsAsComplete())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonProgressRepositoryFindByKeyMissing(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM lesson_progress`).
		WithArgs("t1", "l1", "", "").
		WillReturnError(sql.ErrNoRows)

	record, err := repo.FindByKey(context.Background(), models.ProgressKey{TeacherID: "t1", LessonID: "l1"})
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonProgressRepositoryListByTeacherCurriculum(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM lesson_progress\s+WHERE teacher_id = \$1 AND curriculum_id = \$2`).
		WithArgs("t1", "cur-1").
		WillReturnRows(progressRows().
			AddRow("p1", "t1", "l1", "a1", "cur-1", "campus-1", 1, "", "G1", "in_progress", "{}", nil, nil, false, nil, nil, "admin", nil, now, now))

	records, err := repo.ListByTeacherCurriculum(context.Background(), "t1", "cur-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.GroupCode("G1"), records[0].GroupCode)
	assert.Empty(t, records[0].EvidenceRefs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonProgressRepositoryCreateDefaultsStatus(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	mock.ExpectExec("INSERT INTO lesson_progress").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.LessonProgress{TeacherID: "t1", LessonID: "l1", AssignmentID: "a1", CurriculumID: "cur-1", CampusID: "campus-1"}
	require.NoError(t, repo.Create(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.ProgressStatusNotStarted, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonProgressRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	mock.ExpectExec("UPDATE lesson_progress").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.LessonProgress{ID: "p-x", Status: models.ProgressStatusCompleted})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonProgressRepositoryCountByAssignment(t *testing.T) {
	db, mock, cleanup := newLessonProgressRepoMock(t)
	defer cleanup()
	repo := NewLessonProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lesson_progress WHERE assignment_id = $1")).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	count, err := repo.CountByAssignment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
