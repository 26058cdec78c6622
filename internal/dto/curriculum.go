package dto

// CreateCurriculumRequest is the payload for seeding a curriculum.
type CreateCurriculumRequest struct {
	Name             string  `json:"name" validate:"required,max=200"`
	Code             string  `json:"code" validate:"required,max=50"`
	Description      *string `json:"description"`
	NumberOfQuarters int     `json:"numberOfQuarters" validate:"required,min=1,max=4"`
	Status           string  `json:"status" validate:"omitempty,curriculum_status"`
	ActorID          string  `json:"actorId" validate:"required"`
}

// CreateLessonRequest is the payload for adding a lesson to a curriculum.
type CreateLessonRequest struct {
	Title          string   `json:"title" validate:"required,max=200"`
	Description    *string  `json:"description"`
	Quarter        int      `json:"quarter" validate:"required,min=1"`
	OrderInQuarter int      `json:"orderInQuarter" validate:"required,min=1"`
	GradeCodes     []string `json:"gradeCodes" validate:"omitempty,dive,cohort_code"`
	ActorID        string   `json:"actorId"`
}

// CampusAssignmentInput is one entry of the desired assignment structure.
type CampusAssignmentInput struct {
	CampusID   string   `json:"campusId" validate:"required"`
	TeacherIDs []string `json:"teacherIds" validate:"omitempty,dive,required"`
	GradeCodes []string `json:"gradeCodes" validate:"omitempty,dive,cohort_code"`
	GroupCodes []string `json:"groupCodes" validate:"omitempty,dive,cohort_code"`
}

// UpdateCurriculumAssignmentsRequest replaces a curriculum's desired assignment structure.
type UpdateCurriculumAssignmentsRequest struct {
	CampusAssignments []CampusAssignmentInput `json:"campusAssignments" validate:"dive"`
	ActorID           string                  `json:"actorId" validate:"required"`
}

// ReconcileResponse summarises the writes of one reconciliation.
type ReconcileResponse struct {
	CurriculumID         string   `json:"curriculumId"`
	AssignmentsCreated   int      `json:"assignmentsCreated"`
	AssignmentsCancelled int      `json:"assignmentsCancelled"`
	CoverageUpdated      int      `json:"coverageUpdated"`
	ProgressCreated      int      `json:"progressCreated"`
	Skipped              int      `json:"skipped"`
	MetricsReset         bool     `json:"metricsReset"`
	TouchedAssignments   []string `json:"touchedAssignments"`
}

// RecomputeResponse reports refreshed summaries for a curriculum.
type RecomputeResponse struct {
	CurriculumID       string  `json:"curriculumId"`
	AssignmentsUpdated int     `json:"assignmentsUpdated"`
	TotalLessons       int     `json:"totalLessons"`
	AssignedTeachers   int     `json:"assignedTeachers"`
	ActiveAssignments  int     `json:"activeAssignments"`
	AverageProgress    float64 `json:"averageProgress"`
}

// RecomputeRequest triggers a full summary refresh for a curriculum.
type RecomputeRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}

// RecomputeJobResponse acknowledges a queued recompute.
type RecomputeJobResponse struct {
	JobID        string `json:"jobId"`
	CurriculumID string `json:"curriculumId"`
	Coalesced    bool   `json:"coalesced"`
}
