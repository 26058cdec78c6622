package models

import "time"

// Lesson belongs to exactly one curriculum.
type Lesson struct {
	ID             string     `db:"id" json:"id"`
	CurriculumID   string     `db:"curriculum_id" json:"curriculumId"`
	Title          string     `db:"title" json:"title"`
	Description    *string    `db:"description" json:"description,omitempty"`
	Quarter        int        `db:"quarter" json:"quarter"`
	OrderInQuarter int        `db:"order_in_quarter" json:"orderInQuarter"`
	GradeCodes     GradeCodes `db:"grade_codes" json:"gradeCodes"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// AppliesToGrade reports whether the lesson is taught to the grade. Lessons
// without grade codes apply to every grade of the curriculum.
func (l Lesson) AppliesToGrade(code GradeCode) bool {
	if len(l.GradeCodes) == 0 {
		return true
	}
	return l.GradeCodes.Contains(code)
}
