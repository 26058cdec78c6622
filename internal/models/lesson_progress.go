package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// ProgressStatus enumerates lesson progress states.
type ProgressStatus string

const (
	ProgressStatusNotStarted  ProgressStatus = "not_started"
	ProgressStatusInProgress  ProgressStatus = "in_progress"
	ProgressStatusCompleted   ProgressStatus = "completed"
	ProgressStatusSkipped     ProgressStatus = "skipped"
	ProgressStatusRescheduled ProgressStatus = "rescheduled"
)

var progressTransitions = map[ProgressStatus][]ProgressStatus{
	ProgressStatusNotStarted: {ProgressStatusNotStarted, ProgressStatusInProgress, ProgressStatusCompleted, ProgressStatusSkipped, ProgressStatusRescheduled},
	ProgressStatusInProgress: {ProgressStatusInProgress, ProgressStatusCompleted, ProgressStatusSkipped, ProgressStatusRescheduled},
	ProgressStatusCompleted:   nil,
	ProgressStatusSkipped:     nil,
	ProgressStatusRescheduled: nil,
}

// Valid reports whether the status is a known value.
func (s ProgressStatus) Valid() bool {
	_, ok := progressTransitions[s]
	return ok
}

// Terminal reports whether no other state is reachable from s.
func (s ProgressStatus) Terminal() bool {
	switch s {
	case ProgressStatusCompleted, ProgressStatusSkipped, ProgressStatusRescheduled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the ledger accepts moving from s to next.
// Terminal states only accept idempotent re-entry.
func (s ProgressStatus) CanTransitionTo(next ProgressStatus) bool {
	if s.Terminal() {
		return next == s
	}
	for _, allowed := range progressTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EvidenceRefs holds opaque references to uploaded evidence.
type EvidenceRefs []string

// Merge appends refs not already present.
func (e EvidenceRefs) Merge(refs []string) EvidenceRefs {
	out := append(EvidenceRefs{}, e...)
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		dup := false
		for _, existing := range out {
			if existing == ref {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ref)
		}
	}
	return out
}

// Scan implements sql.Scanner for text[] columns.
func (e *EvidenceRefs) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*e = EvidenceRefs(arr)
	return nil
}

// Value implements driver.Valuer for text[] columns.
func (e EvidenceRefs) Value() (driver.Value, error) {
	if e == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(e).Value()
}

// LessonProgress is a single ledger row: one teacher, one lesson, one unit.
type LessonProgress struct {
	ID           string         `db:"id" json:"id"`
	TeacherID    string         `db:"teacher_id" json:"teacherId"`
	LessonID     string         `db:"lesson_id" json:"lessonId"`
	AssignmentID string         `db:"assignment_id" json:"assignmentId"`
	CurriculumID string         `db:"curriculum_id" json:"curriculumId"`
	CampusID     string         `db:"campus_id" json:"campusId"`
	Quarter      int            `db:"quarter" json:"quarter"`
	GradeCode    GradeCode      `db:"grade_code" json:"gradeCode,omitempty"`
	GroupCode    GroupCode      `db:"group_code" json:"groupCode,omitempty"`
	Status       ProgressStatus `db:"status" json:"status"`
	EvidenceRefs EvidenceRefs   `db:"evidence_refs" json:"evidenceRefs"`
	Notes        *string        `db:"notes" json:"notes,omitempty"`
	CompletedAt  *time.Time     `db:"completed_at" json:"completedAt,omitempty"`
	IsVerified   bool           `db:"is_verified" json:"isVerified"`
	VerifiedBy   *string        `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt   *time.Time     `db:"verified_at" json:"verifiedAt,omitempty"`
	CreatedBy    string         `db:"created_by" json:"createdBy"`
	UpdatedBy    *string        `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}

// CountsAsComplete reports whether the row contributes to completion math.
func (p LessonProgress) CountsAsComplete() bool {
	return p.Status == ProgressStatusCompleted && len(p.EvidenceRefs) > 0
}

// ProgressKey identifies a ledger row. Empty codes mean "no grade/group".
type ProgressKey struct {
	TeacherID string
	LessonID  string
	GradeCode GradeCode
	GroupCode GroupCode
}

// Key returns the uniqueness key of the row.
func (p LessonProgress) Key() ProgressKey {
	return ProgressKey{TeacherID: p.TeacherID, LessonID: p.LessonID, GradeCode: p.GradeCode, GroupCode: p.GroupCode}
}
