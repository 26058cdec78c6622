package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

func TestAuditRepositoryCreateAuditLog(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAuditRepository(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	resourceID := "cur-1"
	entry := &models.AuditLog{
		ActorID:    "admin",
		Action:     models.AuditActionAssignmentsReconcile,
		Resource:   models.AuditResourceCurriculum,
		ResourceID: &resourceID,
		NewValues:  types.JSONText(`{"created":1}`),
	}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListByResource(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewAuditRepository(sqlx.NewDb(db, "sqlmock"))

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "actor_id", "action", "resource", "resource_id", "old_values", "new_values", "created_at"}).
		AddRow("a-1", "admin", models.AuditActionAssignmentsReconcile, models.AuditResourceCurriculum, "cur-1", nil, []byte(`{"created":1}`), now)
	mock.ExpectQuery("SELECT id, actor_id, action, resource, resource_id").
		WithArgs(models.AuditResourceCurriculum, "cur-1", 20).
		WillReturnRows(rows)

	logs, err := repo.ListByResource(context.Background(), models.AuditResourceCurriculum, "cur-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a-1", logs[0].ID)
	require.NotNil(t, logs[0].ResourceID)
	assert.Equal(t, "cur-1", *logs[0].ResourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
