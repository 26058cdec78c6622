package models

import "time"

// AssignmentStatus enumerates teacher assignment states.
type AssignmentStatus string

const (
	AssignmentStatusActive    AssignmentStatus = "active"
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
)

// AssignmentType describes the teacher's role for the curriculum.
type AssignmentType string

const (
	AssignmentTypePrimary    AssignmentType = "primary"
	AssignmentTypeSubstitute AssignmentType = "substitute"
	AssignmentTypeAssistant  AssignmentType = "assistant"
	AssignmentTypeCoTeacher  AssignmentType = "co_teacher"
)

// Valid reports whether the type is a known value.
func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentTypePrimary, AssignmentTypeSubstitute, AssignmentTypeAssistant, AssignmentTypeCoTeacher:
		return true
	}
	return false
}

// ProgressSummary is the cached completion snapshot of an assignment. It is
// always derivable from the progress ledger.
type ProgressSummary struct {
	TotalLessons       int        `db:"total_lessons" json:"totalLessons"`
	CompletedLessons   int        `db:"completed_lessons" json:"completedLessons"`
	ProgressPercentage float64    `db:"progress_percentage" json:"progressPercentage"`
	LastUpdated        *time.Time `db:"progress_updated_at" json:"lastUpdated,omitempty"`
}

// TeacherAssignment binds one teacher to one curriculum at one campus.
// Cancelled assignments are retained and never reactivated.
type TeacherAssignment struct {
	ID                 string           `db:"id" json:"id"`
	TeacherID          string           `db:"teacher_id" json:"teacherId"`
	CurriculumID       string           `db:"curriculum_id" json:"curriculumId"`
	CampusID           string           `db:"campus_id" json:"campusId"`
	AcademicYear       string           `db:"academic_year" json:"academicYear"`
	AssignmentType     AssignmentType   `db:"assignment_type" json:"assignmentType"`
	IsActive           bool             `db:"is_active" json:"isActive"`
	Status             AssignmentStatus `db:"status" json:"status"`
	AssignedGrades     GradeCodes       `db:"assigned_grades" json:"assignedGrades"`
	AssignedGroupCodes GroupCodes       `db:"assigned_group_codes" json:"assignedGroupCodes"`
	ProgressSummary
	AssignedBy  string     `db:"assigned_by" json:"assignedBy"`
	AssignedAt  time.Time  `db:"assigned_at" json:"assignedAt"`
	CancelledBy *string    `db:"cancelled_by" json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// GroupBased reports whether progress is tracked per group code.
func (a TeacherAssignment) GroupBased() bool {
	return len(a.AssignedGroupCodes) > 0
}

// Covers reports whether the grade/group unit belongs to the assignment.
func (a TeacherAssignment) Covers(grade GradeCode, group GroupCode) bool {
	switch {
	case a.GroupBased():
		return grade == "" && group != "" && a.AssignedGroupCodes.Contains(group)
	case len(a.AssignedGrades) > 0:
		return group == "" && grade != "" && a.AssignedGrades.Contains(grade)
	default:
		return grade == "" && group == ""
	}
}
