package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const migration001Up = `
CREATE TABLE IF NOT EXISTS curricula (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    code VARCHAR(50) NOT NULL UNIQUE,
    description TEXT,
    number_of_quarters INTEGER NOT NULL DEFAULT 4,
    status VARCHAR(20) NOT NULL DEFAULT 'draft',
    campus_assignments JSONB NOT NULL DEFAULT '[]'::jsonb,
    total_lessons INTEGER NOT NULL DEFAULT 0,
    assigned_teachers INTEGER NOT NULL DEFAULT 0,
    active_assignments INTEGER NOT NULL DEFAULT 0,
    average_progress NUMERIC(5,2) NOT NULL DEFAULT 0,
    created_by VARCHAR(100) NOT NULL,
    updated_by VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT valid_curriculum_status CHECK (status IN ('draft', 'active', 'archived', 'deprecated')),
    CONSTRAINT valid_quarters CHECK (number_of_quarters > 0)
);

CREATE TABLE IF NOT EXISTS lessons (
    id UUID PRIMARY KEY,
    curriculum_id UUID NOT NULL REFERENCES curricula(id),
    title VARCHAR(200) NOT NULL,
    description TEXT,
    quarter INTEGER NOT NULL,
    order_in_quarter INTEGER NOT NULL,
    grade_codes TEXT[] NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_lessons_curriculum ON lessons(curriculum_id, quarter, order_in_quarter);

CREATE TABLE IF NOT EXISTS teacher_assignments (
    id UUID PRIMARY KEY,
    teacher_id VARCHAR(100) NOT NULL,
    curriculum_id UUID NOT NULL REFERENCES curricula(id),
    campus_id VARCHAR(100) NOT NULL,
    academic_year VARCHAR(20) NOT NULL,
    assignment_type VARCHAR(20) NOT NULL DEFAULT 'primary',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    assigned_grades TEXT[] NOT NULL DEFAULT '{}',
    assigned_group_codes TEXT[] NOT NULL DEFAULT '{}',
    total_lessons INTEGER NOT NULL DEFAULT 0,
    completed_lessons INTEGER NOT NULL DEFAULT 0,
    progress_percentage NUMERIC(5,2) NOT NULL DEFAULT 0,
    progress_updated_at TIMESTAMP WITH TIME ZONE,
    assigned_by VARCHAR(100) NOT NULL,
    assigned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    cancelled_by VARCHAR(100),
    cancelled_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT valid_assignment_status CHECK (status IN ('active', 'cancelled')),
    CONSTRAINT status_matches_flag CHECK ((is_active AND status = 'active') OR (NOT is_active AND status = 'cancelled'))
);

-- only one active assignment per teacher/campus/curriculum; history is unbounded
CREATE UNIQUE INDEX IF NOT EXISTS uq_teacher_assignments_active
    ON teacher_assignments(teacher_id, campus_id, curriculum_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_teacher_assignments_curriculum ON teacher_assignments(curriculum_id) WHERE is_active;
CREATE INDEX IF NOT EXISTS idx_teacher_assignments_teacher ON teacher_assignments(teacher_id);

CREATE TABLE IF NOT EXISTS lesson_progress (
    id UUID PRIMARY KEY,
    teacher_id VARCHAR(100) NOT NULL,
    lesson_id UUID NOT NULL REFERENCES lessons(id),
    assignment_id UUID NOT NULL REFERENCES teacher_assignments(id),
    curriculum_id UUID NOT NULL REFERENCES curricula(id),
    campus_id VARCHAR(100) NOT NULL,
    quarter INTEGER NOT NULL,
    grade_code VARCHAR(32) NOT NULL DEFAULT '',
    group_code VARCHAR(32) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'not_started',
    evidence_refs TEXT[] NOT NULL DEFAULT '{}',
    notes TEXT,
    completed_at TIMESTAMP WITH TIME ZONE,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    verified_by VARCHAR(100),
    verified_at TIMESTAMP WITH TIME ZONE,
    created_by VARCHAR(100) NOT NULL,
    updated_by VARCHAR(100),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT valid_progress_status CHECK (status IN ('not_started', 'in_progress', 'completed', 'skipped', 'rescheduled'))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_lesson_progress_unit
    ON lesson_progress(teacher_id, lesson_id, grade_code, group_code);
CREATE INDEX IF NOT EXISTS idx_lesson_progress_assignment ON lesson_progress(assignment_id);
CREATE INDEX IF NOT EXISTS idx_lesson_progress_curriculum ON lesson_progress(curriculum_id, teacher_id);
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    actor_id VARCHAR(100) NOT NULL,
    action VARCHAR(50) NOT NULL,
    resource VARCHAR(50) NOT NULL,
    resource_id VARCHAR(100),
    old_values JSONB,
    new_values JSONB,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource, resource_id, created_at DESC);
`

// Migration is a versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Migrations returns the embedded schema migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_curriculum_progress", UpSQL: migration001Up},
		{Version: 2, Name: "create_audit_logs", UpSQL: migration002Up},
	}
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	db         *sqlx.DB
	migrations []Migration
	logger     *zap.Logger
}

// NewMigrator constructs a migrator for the embedded migrations.
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, migrations: Migrations(), logger: logger}
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	const ensure = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`
	if _, err := m.db.ExecContext(ctx, ensure); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []int
	if err := m.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations ORDER BY version`); err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[int]struct{}, len(applied))
	for _, version := range applied {
		done[version] = struct{}{}
	}

	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		start := time.Now()
		if err := m.apply(ctx, mig); err != nil {
			return err
		}
		m.logger.Info("migration applied",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", mig.Version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, mig.UpSQL); err != nil {
		return fmt.Errorf("execute migration %d: %w", mig.Version, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record migration %d: %w", mig.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", mig.Version, err)
	}
	return nil
}
