package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CurriculumStatus enumerates curriculum lifecycle states.
type CurriculumStatus string

const (
	CurriculumStatusDraft      CurriculumStatus = "draft"
	CurriculumStatusActive     CurriculumStatus = "active"
	CurriculumStatusArchived   CurriculumStatus = "archived"
	CurriculumStatusDeprecated CurriculumStatus = "deprecated"
)

// Valid reports whether the status is a known value.
func (s CurriculumStatus) Valid() bool {
	switch s {
	case CurriculumStatusDraft, CurriculumStatusActive, CurriculumStatusArchived, CurriculumStatusDeprecated:
		return true
	}
	return false
}

// CampusAssignment is one entry of a curriculum's desired assignment structure.
type CampusAssignment struct {
	CampusID         string     `json:"campusId"`
	AssignedTeachers []string   `json:"assignedTeachers"`
	GradeCodes       GradeCodes `json:"gradeCodes"`
	GroupCodes       GroupCodes `json:"groupCodes,omitempty"`
}

// CampusAssignments is the JSONB-backed desired state list.
type CampusAssignments []CampusAssignment

// Scan implements sql.Scanner for jsonb columns.
func (c *CampusAssignments) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("campus assignments: unsupported source %T", src)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	return json.Unmarshal(raw, c)
}

// Value implements driver.Valuer for jsonb columns.
func (c CampusAssignments) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// CurriculumMetrics caches curriculum-wide counters.
type CurriculumMetrics struct {
	TotalLessons      int     `db:"total_lessons" json:"totalLessons"`
	AssignedTeachers  int     `db:"assigned_teachers" json:"assignedTeachers"`
	ActiveAssignments int     `db:"active_assignments" json:"activeAssignments"`
	AverageProgress   float64 `db:"average_progress" json:"averageProgress"`
}

// Curriculum is a course definition taught across campuses.
type Curriculum struct {
	ID                string            `db:"id" json:"id"`
	Name              string            `db:"name" json:"name"`
	Code              string            `db:"code" json:"code"`
	Description       *string           `db:"description" json:"description,omitempty"`
	NumberOfQuarters  int               `db:"number_of_quarters" json:"numberOfQuarters"`
	Status            CurriculumStatus  `db:"status" json:"status"`
	CampusAssignments CampusAssignments `db:"campus_assignments" json:"campusAssignments"`
	CurriculumMetrics
	CreatedBy string    `db:"created_by" json:"createdBy"`
	UpdatedBy *string   `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CurriculumFilter narrows curriculum listings.
type CurriculumFilter struct {
	Search    string
	Status    CurriculumStatus
	CampusID  string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
