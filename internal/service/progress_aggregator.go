package service

import (
	"math"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

// progressUnit is one grade or group a lesson is tracked for. The zero value
// is the single ungraded unit.
type progressUnit struct {
	Grade models.GradeCode
	Group models.GroupCode
}

// coverageUnits lists the units a lesson is tracked for under the given
// coverage. Group coverage wins over grades; grades are narrowed to the
// lesson's own grades when it lists any.
func coverageUnits(grades models.GradeCodes, groups models.GroupCodes, lesson models.Lesson) []progressUnit {
	switch {
	case len(groups) > 0:
		units := make([]progressUnit, 0, len(groups))
		for _, group := range groups {
			units = append(units, progressUnit{Group: group})
		}
		return units
	case len(grades) > 0:
		units := make([]progressUnit, 0, len(grades))
		for _, grade := range grades {
			if lesson.AppliesToGrade(grade) {
				units = append(units, progressUnit{Grade: grade})
			}
		}
		return units
	default:
		return []progressUnit{{}}
	}
}

func assignmentUnits(assignment models.TeacherAssignment, lesson models.Lesson) []progressUnit {
	return coverageUnits(assignment.AssignedGrades, assignment.AssignedGroupCodes, lesson)
}

type progressRowKey struct {
	LessonID string
	Grade    models.GradeCode
	Group    models.GroupCode
}

// progressIndex maps one teacher's ledger rows by lesson and unit.
type progressIndex map[progressRowKey]models.LessonProgress

func indexProgress(rows []models.LessonProgress) progressIndex {
	idx := make(progressIndex, len(rows))
	for _, row := range rows {
		idx[progressRowKey{LessonID: row.LessonID, Grade: row.GradeCode, Group: row.GroupCode}] = row
	}
	return idx
}

func (idx progressIndex) lookup(lessonID string, unit progressUnit) (models.LessonProgress, bool) {
	row, ok := idx[progressRowKey{LessonID: lessonID, Grade: unit.Grade, Group: unit.Group}]
	return row, ok
}

// lessonScore is the completion of one lesson under one assignment.
type lessonScore struct {
	Lesson     models.Lesson
	Units      []progressUnit
	Completed  int
	Percentage float64
}

// Applicable reports whether the lesson has any unit under the assignment.
func (s lessonScore) Applicable() bool {
	return len(s.Units) > 0
}

func scoreLesson(assignment models.TeacherAssignment, lesson models.Lesson, idx progressIndex) lessonScore {
	units := assignmentUnits(assignment, lesson)
	completed := 0
	for _, unit := range units {
		if row, ok := idx.lookup(lesson.ID, unit); ok && row.CountsAsComplete() {
			completed++
		}
	}
	return lessonScore{
		Lesson:     lesson,
		Units:      units,
		Completed:  completed,
		Percentage: percentage(completed, len(units)),
	}
}

// scoreAssignment averages lesson percentages over the applicable lessons.
func scoreAssignment(assignment models.TeacherAssignment, lessons []models.Lesson, idx progressIndex) (models.ProgressSummary, []lessonScore) {
	scores := make([]lessonScore, 0, len(lessons))
	values := make([]float64, 0, len(lessons))
	completedLessons := 0
	for _, lesson := range lessons {
		score := scoreLesson(assignment, lesson, idx)
		scores = append(scores, score)
		if !score.Applicable() {
			continue
		}
		values = append(values, score.Percentage)
		if score.Percentage >= 100 {
			completedLessons++
		}
	}
	return models.ProgressSummary{
		TotalLessons:       len(values),
		CompletedLessons:   completedLessons,
		ProgressPercentage: meanPercentage(values),
	}, scores
}

// lessonStatus folds unit states into a single lesson status. A unit marked
// completed without evidence reads as in_progress, so a completed lesson
// always has every unit counted in its percentage.
func lessonStatus(score lessonScore, idx progressIndex) models.ProgressStatus {
	if !score.Applicable() {
		return models.ProgressStatusNotStarted
	}
	var first models.ProgressStatus
	uniform := true
	started := false
	for i, unit := range score.Units {
		status := models.ProgressStatusNotStarted
		if row, ok := idx.lookup(score.Lesson.ID, unit); ok {
			status = row.Status
			if status == models.ProgressStatusCompleted && !row.CountsAsComplete() {
				status = models.ProgressStatusInProgress
			}
		}
		if i == 0 {
			first = status
		} else if status != first {
			uniform = false
		}
		if status == models.ProgressStatusInProgress || status == models.ProgressStatusCompleted {
			started = true
		}
	}
	switch {
	case uniform:
		return first
	case started:
		return models.ProgressStatusInProgress
	default:
		return models.ProgressStatusNotStarted
	}
}

func percentage(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clampPercentage(float64(completed) / float64(total) * 100)
}

func meanPercentage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return clampPercentage(sum / float64(len(values)))
}

func clampPercentage(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
