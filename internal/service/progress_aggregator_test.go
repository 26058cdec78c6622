package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

func TestCoverageUnits(t *testing.T) {
	lesson := models.Lesson{ID: "L1", GradeCodes: models.GradeCodes{"3A"}}

	assert.Equal(t, []progressUnit{{}}, coverageUnits(nil, nil, lesson))
	assert.Equal(t, []progressUnit{{Grade: "3A"}}, coverageUnits(models.GradeCodes{"3A", "3B"}, nil, lesson))
	assert.Empty(t, coverageUnits(models.GradeCodes{"4A"}, nil, lesson))
	assert.Equal(t, []progressUnit{{Group: "G1"}}, coverageUnits(models.GradeCodes{"4A"}, models.GroupCodes{"G1"}, lesson))
}

func TestScoreAssignmentMeanOfFractions(t *testing.T) {
	assignment := models.TeacherAssignment{TeacherID: "T1", AssignedGrades: models.GradeCodes{"3A", "3B"}}
	lessons := []models.Lesson{{ID: "L1"}, {ID: "L2"}, {ID: "L3", GradeCodes: models.GradeCodes{"5A"}}}
	idx := indexProgress([]models.LessonProgress{
		{LessonID: "L1", GradeCode: "3A", Status: models.ProgressStatusCompleted, EvidenceRefs: models.EvidenceRefs{"a"}},
		{LessonID: "L2", GradeCode: "3A", Status: models.ProgressStatusCompleted, EvidenceRefs: models.EvidenceRefs{"b"}},
		{LessonID: "L2", GradeCode: "3B", Status: models.ProgressStatusCompleted, EvidenceRefs: models.EvidenceRefs{"c"}},
		{LessonID: "L1", Status: models.ProgressStatusCompleted, EvidenceRefs: models.EvidenceRefs{"orphan"}},
	})

	summary, scores := scoreAssignment(assignment, lessons, idx)
	assert.Equal(t, 2, summary.TotalLessons)
	assert.Equal(t, 1, summary.CompletedLessons)
	assert.Equal(t, 75.0, summary.ProgressPercentage)
	assert.Len(t, scores, 3)
	assert.False(t, scores[2].Applicable())
}

func TestLessonStatus(t *testing.T) {
	assignment := models.TeacherAssignment{AssignedGrades: models.GradeCodes{"3A", "3B"}}
	lesson := models.Lesson{ID: "L1"}
	row := func(grade models.GradeCode, status models.ProgressStatus) models.LessonProgress {
		return models.LessonProgress{LessonID: "L1", GradeCode: grade, Status: status, EvidenceRefs: models.EvidenceRefs{"ev-" + string(grade)}}
	}
	bare := func(grade models.GradeCode, status models.ProgressStatus) models.LessonProgress {
		return models.LessonProgress{LessonID: "L1", GradeCode: grade, Status: status}
	}
	cases := []struct {
		name string
		rows []models.LessonProgress
		want models.ProgressStatus
	}{
		{"no rows", nil, models.ProgressStatusNotStarted},
		{"all completed", []models.LessonProgress{row("3A", models.ProgressStatusCompleted), row("3B", models.ProgressStatusCompleted)}, models.ProgressStatusCompleted},
		{"all skipped", []models.LessonProgress{row("3A", models.ProgressStatusSkipped), row("3B", models.ProgressStatusSkipped)}, models.ProgressStatusSkipped},
		{"partly done", []models.LessonProgress{row("3A", models.ProgressStatusCompleted)}, models.ProgressStatusInProgress},
		{"skipped and pending", []models.LessonProgress{row("3A", models.ProgressStatusSkipped)}, models.ProgressStatusNotStarted},
		{"completed without evidence", []models.LessonProgress{bare("3A", models.ProgressStatusCompleted), bare("3B", models.ProgressStatusCompleted)}, models.ProgressStatusInProgress},
		{"one unit missing evidence", []models.LessonProgress{row("3A", models.ProgressStatusCompleted), bare("3B", models.ProgressStatusCompleted)}, models.ProgressStatusInProgress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx := indexProgress(tc.rows)
			assert.Equal(t, tc.want, lessonStatus(scoreLesson(assignment, lesson, idx), idx))
		})
	}
}

func TestClampPercentage(t *testing.T) {
	assert.Zero(t, clampPercentage(math.NaN()))
	assert.Zero(t, clampPercentage(-3))
	assert.Equal(t, 100.0, clampPercentage(math.Inf(1)))
	assert.Equal(t, 42.5, clampPercentage(42.5))
	assert.Zero(t, percentage(1, 0))
}
