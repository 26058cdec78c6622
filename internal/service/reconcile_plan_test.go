package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

func planLessons() []models.Lesson {
	return []models.Lesson{
		{ID: "L1", CurriculumID: "cur-1", Quarter: 1, OrderInQuarter: 1},
		{ID: "L2", CurriculumID: "cur-1", Quarter: 1, OrderInQuarter: 2, GradeCodes: models.GradeCodes{"3A"}},
	}
}

func kinds(plan Plan) []OperationKind {
	out := make([]OperationKind, len(plan.Operations))
	for i, op := range plan.Operations {
		out[i] = op.Kind
	}
	return out
}

func TestBuildPlanCreatesAssignmentAndRows(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New:          []models.CampusAssignment{campus("C1", []string{"T1"})},
		Lessons:      planLessons(),
	})

	assert.Equal(t, []OperationKind{OpCreateAssignment, OpCreateProgress, OpCreateProgress}, kinds(plan))
	create := plan.Operations[0]
	assert.Equal(t, "T1", create.TeacherID)
	assert.Equal(t, "C1", create.CampusID)
	assert.Empty(t, create.Grades)
	for _, op := range plan.Operations[1:] {
		assert.Empty(t, op.AssignmentID)
		assert.Empty(t, op.GradeCode)
		assert.Empty(t, op.GroupCode)
	}
	assert.Equal(t, 3, plan.Writes())
}

func TestBuildPlanNarrowsGradesToLesson(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New:          []models.CampusAssignment{campus("C1", []string{"T1"}, "3B", "3A")},
		Lessons:      planLessons(),
	})

	require.Equal(t, 4, len(plan.Operations))
	assert.Equal(t, models.GradeCodes{"3A", "3B"}, plan.Operations[0].Grades)

	var units []string
	for _, op := range plan.Operations[1:] {
		units = append(units, op.LessonID+"/"+string(op.GradeCode))
	}
	assert.Equal(t, []string{"L1/3A", "L1/3B", "L2/3A"}, units)
}

func TestBuildPlanGroupsWinOverGrades(t *testing.T) {
	entry := campus("C1", []string{"T1"}, "3A")
	entry.GroupCodes = models.GroupCodes{"G1", "G2"}
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New:          []models.CampusAssignment{entry},
		Lessons:      planLessons()[:1],
	})

	require.Len(t, plan.Operations, 3)
	assert.Equal(t, models.GroupCode("G1"), plan.Operations[1].GroupCode)
	assert.Equal(t, models.GroupCode("G2"), plan.Operations[2].GroupCode)
	assert.Empty(t, plan.Operations[1].GradeCode)
}

func TestBuildPlanCoverageChangeKeepsExistingRows(t *testing.T) {
	active := models.TeacherAssignment{ID: "asg-1", TeacherID: "T1", CampusID: "C1", CurriculumID: "cur-1", IsActive: true}
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          []models.CampusAssignment{campus("C1", []string{"T1"})},
		New:          []models.CampusAssignment{campus("C1", []string{"T1"}, "3A")},
		Lessons:      planLessons(),
		Active:       []models.TeacherAssignment{active},
		Progress: []models.LessonProgress{
			{TeacherID: "T1", LessonID: "L1"},
			{TeacherID: "T1", LessonID: "L2"},
			{TeacherID: "T1", LessonID: "L2", GradeCode: "3A"},
		},
	})

	assert.Equal(t, []OperationKind{OpUpdateCoverage, OpCreateProgress}, kinds(plan))
	assert.Equal(t, "asg-1", plan.Operations[0].AssignmentID)
	assert.Equal(t, models.GradeCodes{"3A"}, plan.Operations[0].Grades)
	assert.Equal(t, "L1", plan.Operations[1].LessonID)
	assert.Equal(t, models.GradeCode("3A"), plan.Operations[1].GradeCode)
	assert.Equal(t, "asg-1", plan.Operations[1].AssignmentID)
}

func TestBuildPlanNarrowedCoverageReportsRetainedCodes(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          []models.CampusAssignment{campus("C1", []string{"T1"}, "3A", "3B")},
		New:          []models.CampusAssignment{campus("C1", []string{"T1"}, "3A")},
		Lessons:      planLessons(),
		Active: []models.TeacherAssignment{{
			ID: "asg-1", TeacherID: "T1", CampusID: "C1", CurriculumID: "cur-1", IsActive: true,
			AssignedGrades: models.GradeCodes{"3A", "3B"},
		}},
		Progress: []models.LessonProgress{
			{TeacherID: "T1", LessonID: "L1", GradeCode: "3A"},
			{TeacherID: "T1", LessonID: "L1", GradeCode: "3B"},
			{TeacherID: "T1", LessonID: "L2", GradeCode: "3A"},
			{TeacherID: "T1", LessonID: "L2", GradeCode: "3B"},
		},
	})

	require.Equal(t, []OperationKind{OpUpdateCoverage}, kinds(plan))
	assert.Equal(t, models.GradeCodes{"3B"}, plan.Operations[0].RetainedGrades)
	assert.Empty(t, plan.Operations[0].RetainedGroups)
}

func TestBuildPlanUnchangedStructureIsEmpty(t *testing.T) {
	structure := []models.CampusAssignment{campus("C1", []string{"T1"}, "3A")}
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          structure,
		New:          structure,
		Lessons:      planLessons(),
		Active: []models.TeacherAssignment{
			{ID: "asg-1", TeacherID: "T1", CampusID: "C1", AssignedGrades: models.GradeCodes{"3A"}, IsActive: true},
		},
		Progress: []models.LessonProgress{
			{TeacherID: "T1", LessonID: "L1", GradeCode: "3A"},
			{TeacherID: "T1", LessonID: "L2", GradeCode: "3A"},
		},
	})
	assert.Empty(t, plan.Operations)
	assert.Zero(t, plan.Writes())
}

func TestBuildPlanRemovedPairs(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          []models.CampusAssignment{campus("C1", []string{"T1", "T2"})},
		New:          []models.CampusAssignment{campus("C2", []string{"T3"})},
		Active: []models.TeacherAssignment{
			{ID: "asg-1", TeacherID: "T1", CampusID: "C1", IsActive: true},
		},
	})

	require.Equal(t, []OperationKind{OpCreateAssignment, OpCancelAssignment, OpSkip}, kinds(plan))
	assert.Equal(t, "asg-1", plan.Operations[1].AssignmentID)
	assert.Equal(t, "T2", plan.Operations[2].TeacherID)
	assert.Equal(t, "no active assignment to cancel", plan.Operations[2].Reason)
}

func TestBuildPlanNewPairWithActiveAssignmentIsSkipped(t *testing.T) {
	active := models.TeacherAssignment{ID: "asg-1", TeacherID: "T1", CampusID: "C1", IsActive: true}
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New:          []models.CampusAssignment{campus("C1", []string{"T1"}, "3A")},
		Lessons:      planLessons()[:1],
		Active:       []models.TeacherAssignment{active},
		Progress:     []models.LessonProgress{{TeacherID: "T1", LessonID: "L1"}},
	})

	assert.Equal(t, []OperationKind{OpSkip}, kinds(plan))
	assert.Equal(t, "asg-1", plan.Operations[0].AssignmentID)
}

func TestBuildPlanNewPairWithActiveAssignmentFillsMissingRows(t *testing.T) {
	active := models.TeacherAssignment{ID: "asg-1", TeacherID: "T1", CampusID: "C1", IsActive: true}
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New:          []models.CampusAssignment{campus("C1", []string{"T1"})},
		Lessons:      planLessons(),
		Active:       []models.TeacherAssignment{active},
		Progress:     []models.LessonProgress{{TeacherID: "T1", LessonID: "L1"}},
	})

	require.Equal(t, []OperationKind{OpSkip, OpCreateProgress}, kinds(plan))
	assert.Equal(t, "L2", plan.Operations[1].LessonID)
	assert.Equal(t, "asg-1", plan.Operations[1].AssignmentID)
}

func TestBuildPlanEmptyStructureCancelsEverything(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          []models.CampusAssignment{campus("C1", []string{"T1"})},
		Active: []models.TeacherAssignment{
			{ID: "asg-1", TeacherID: "T1", CampusID: "C1", IsActive: true},
			{ID: "asg-9", TeacherID: "T9", CampusID: "C9", IsActive: true},
		},
	})

	assert.Equal(t, []OperationKind{OpCancelAssignment, OpCancelAssignment, OpResetMetrics}, kinds(plan))
	assert.Equal(t, "asg-9", plan.Operations[1].AssignmentID)
}

func TestBuildPlanStructureWithoutTeachersCountsAsEmpty(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		Old:          []models.CampusAssignment{campus("C1", []string{"T1"})},
		New:          []models.CampusAssignment{campus("C1", nil), campus("C2", []string{" "})},
		Active:       []models.TeacherAssignment{{ID: "asg-1", TeacherID: "T1", CampusID: "C1", IsActive: true}},
	})

	assert.Equal(t, []OperationKind{OpCancelAssignment, OpResetMetrics}, kinds(plan))
}

func TestBuildPlanMergesDuplicateTeacherEntries(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New: []models.CampusAssignment{
			campus("C1", []string{"T1", " "}, "3B"),
			campus(" C1 ", []string{" T1"}, "3A"),
			campus("", []string{"T2"}),
		},
	})

	require.Equal(t, []OperationKind{OpCreateAssignment}, kinds(plan))
	assert.Equal(t, models.GradeCodes{"3A", "3B"}, plan.Operations[0].Grades)
}

func TestBuildPlanSharedRowsAcrossCampuses(t *testing.T) {
	plan := BuildPlan(ReconcileSnapshot{
		CurriculumID: "cur-1",
		New: []models.CampusAssignment{
			campus("C1", []string{"T1"}),
			campus("C2", []string{"T1"}),
		},
		Lessons: planLessons()[:1],
	})

	assert.Equal(t, []OperationKind{OpCreateAssignment, OpCreateProgress, OpCreateAssignment}, kinds(plan))
}
