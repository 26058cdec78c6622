package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionAssignmentsReconcile = "ASSIGNMENTS_RECONCILE"
	AuditActionProgressRecompute    = "PROGRESS_RECOMPUTE"
	AuditActionProgressVerify       = "PROGRESS_VERIFY"
)

// Audit resource labels.
const (
	AuditResourceCurriculum     = "curriculum"
	AuditResourceLessonProgress = "lesson_progress"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	ActorID    string         `db:"actor_id" json:"actorId"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  types.JSONText `db:"old_values" json:"oldValues,omitempty"`
	NewValues  types.JSONText `db:"new_values" json:"newValues,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}
