package dto

import "time"

// RecordProgressRequest upserts one ledger row.
type RecordProgressRequest struct {
	TeacherID    string   `json:"teacherId" validate:"required"`
	LessonID     string   `json:"lessonId" validate:"required"`
	AssignmentID string   `json:"assignmentId" validate:"required"`
	GradeCode    string   `json:"gradeCode" validate:"omitempty,cohort_code"`
	GroupCode    string   `json:"groupCode" validate:"omitempty,cohort_code"`
	Status       string   `json:"status" validate:"required,progress_status"`
	EvidenceRefs []string `json:"evidenceRefs" validate:"omitempty,dive,required,max=512"`
	Notes        *string  `json:"notes" validate:"omitempty,max=2000"`
	ActorID      string   `json:"actorId"`
}

// VerifyProgressRequest marks a completed row as verified.
type VerifyProgressRequest struct {
	VerifierID string `json:"verifierId" validate:"required"`
}

// CompletionResponse carries a single percentage.
type CompletionResponse struct {
	ID                 string  `json:"id"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// AssignmentProgressItem is one assignment row of a teacher progress view.
type AssignmentProgressItem struct {
	AssignmentID       string     `json:"assignmentId"`
	CurriculumID       string     `json:"curriculumId"`
	CampusID           string     `json:"campusId"`
	Status             string     `json:"status"`
	TotalLessons       int        `json:"totalLessons"`
	CompletedLessons   int        `json:"completedLessons"`
	ProgressPercentage float64    `json:"progressPercentage"`
	LastUpdated        *time.Time `json:"lastUpdated,omitempty"`
}

// TeacherProgressResponse aggregates a teacher's completion across active assignments.
type TeacherProgressResponse struct {
	TeacherID          string                   `json:"teacherId"`
	ProgressPercentage float64                  `json:"progressPercentage"`
	Assignments        []AssignmentProgressItem `json:"assignments"`
}

// UnitProgress describes one grade/group unit of a lesson.
type UnitProgress struct {
	ProgressID  string     `json:"progressId,omitempty"`
	GradeCode   string     `json:"gradeCode,omitempty"`
	GroupCode   string     `json:"groupCode,omitempty"`
	Status      string     `json:"status"`
	HasEvidence bool       `json:"hasEvidence"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	IsVerified  bool       `json:"isVerified"`
}

// LessonProgressView is the per-lesson row of an assignment progress view.
type LessonProgressView struct {
	LessonID             string         `json:"lessonId"`
	Title                string         `json:"title"`
	Quarter              int            `json:"quarter"`
	Order                int            `json:"order"`
	OverallStatus        string         `json:"overallStatus"`
	CompletionPercentage float64        `json:"completionPercentage"`
	CompletedGrades      int            `json:"completedGrades"`
	TotalGrades          int            `json:"totalGrades"`
	ProgressByGrade      []UnitProgress `json:"progressByGrade"`
}

// AssignmentLessonProgressResponse lists lesson progress for one assignment.
type AssignmentLessonProgressResponse struct {
	AssignmentID       string               `json:"assignmentId"`
	TeacherID          string               `json:"teacherId"`
	CurriculumID       string               `json:"curriculumId"`
	CampusID           string               `json:"campusId"`
	ProgressPercentage float64              `json:"progressPercentage"`
	// ProgressRows counts every ledger row owned by the assignment, including
	// rows kept for units no longer covered.
	ProgressRows int                  `json:"progressRows"`
	Lessons      []LessonProgressView `json:"lessons"`
}
