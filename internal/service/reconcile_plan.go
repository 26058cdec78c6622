package service

import (
	"sort"
	"strings"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

// OperationKind names a single reconciliation write.
type OperationKind string

const (
	OpCreateAssignment OperationKind = "create_assignment"
	OpCancelAssignment OperationKind = "cancel_assignment"
	OpUpdateCoverage   OperationKind = "update_coverage"
	OpCreateProgress   OperationKind = "create_progress"
	OpSkip             OperationKind = "skip"
	OpResetMetrics     OperationKind = "reset_metrics"
)

// Operation is one planned step. AssignmentID is empty for progress rows of
// an assignment created earlier in the same plan.
type Operation struct {
	Kind         OperationKind     `json:"kind"`
	TeacherID    string            `json:"teacherId,omitempty"`
	CampusID     string            `json:"campusId,omitempty"`
	AssignmentID string            `json:"assignmentId,omitempty"`
	Grades       models.GradeCodes `json:"grades,omitempty"`
	Groups       models.GroupCodes `json:"groups,omitempty"`
	LessonID     string            `json:"lessonId,omitempty"`
	Quarter      int               `json:"quarter,omitempty"`
	GradeCode    models.GradeCode  `json:"gradeCode,omitempty"`
	GroupCode    models.GroupCode  `json:"groupCode,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	// Retained* list codes dropped from a coverage whose rows stay in the ledger.
	RetainedGrades models.GradeCodes `json:"retainedGrades,omitempty"`
	RetainedGroups models.GroupCodes `json:"retainedGroups,omitempty"`
}

func (op Operation) pair() assignmentPair {
	return assignmentPair{TeacherID: op.TeacherID, CampusID: op.CampusID}
}

// ReconcileSnapshot is the store state a plan is computed from.
type ReconcileSnapshot struct {
	CurriculumID string
	Old          []models.CampusAssignment
	New          []models.CampusAssignment
	Lessons      []models.Lesson
	Active       []models.TeacherAssignment
	Progress     []models.LessonProgress
}

// Plan is the ordered list of writes that moves the stores to the desired state.
type Plan struct {
	CurriculumID string      `json:"curriculumId"`
	Operations   []Operation `json:"operations"`
}

// Count returns the number of operations of the kind.
func (p Plan) Count(kind OperationKind) int {
	n := 0
	for _, op := range p.Operations {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Writes returns the number of operations that mutate a store.
func (p Plan) Writes() int {
	return len(p.Operations) - p.Count(OpSkip)
}

type assignmentPair struct {
	TeacherID string
	CampusID  string
}

type pairCoverage struct {
	pair   assignmentPair
	grades models.GradeCodes
	groups models.GroupCodes
}

type flattenedStructure struct {
	ordered []pairCoverage
	index   map[assignmentPair]int
}

func (f flattenedStructure) has(pair assignmentPair) bool {
	_, ok := f.index[pair]
	return ok
}

// flattenStructure expands campus entries into teacher/campus pairs. A teacher
// listed twice for one campus gets the union of both coverages.
func flattenStructure(entries []models.CampusAssignment) flattenedStructure {
	out := flattenedStructure{index: make(map[assignmentPair]int)}
	for _, entry := range entries {
		campusID := strings.TrimSpace(entry.CampusID)
		if campusID == "" {
			continue
		}
		for _, teacherID := range entry.AssignedTeachers {
			teacherID = strings.TrimSpace(teacherID)
			if teacherID == "" {
				continue
			}
			pair := assignmentPair{TeacherID: teacherID, CampusID: campusID}
			if i, ok := out.index[pair]; ok {
				out.ordered[i].grades = unionGrades(out.ordered[i].grades, entry.GradeCodes)
				out.ordered[i].groups = unionGroups(out.ordered[i].groups, entry.GroupCodes)
				continue
			}
			out.index[pair] = len(out.ordered)
			out.ordered = append(out.ordered, pairCoverage{
				pair:   pair,
				grades: unionGrades(nil, entry.GradeCodes),
				groups: unionGroups(nil, entry.GroupCodes),
			})
		}
	}
	return out
}

// BuildPlan diffs the old and new structures against the snapshot. It performs
// no I/O; every create it emits is also re-checked when applied. Missing
// ledger rows of every pair kept active are planned too, so re-running a
// failed reconciliation converges.
func BuildPlan(snap ReconcileSnapshot) Plan {
	plan := Plan{CurriculumID: snap.CurriculumID}
	oldPairs := flattenStructure(snap.Old)
	newPairs := flattenStructure(snap.New)

	if len(newPairs.ordered) == 0 {
		for _, assignment := range snap.Active {
			plan.Operations = append(plan.Operations, Operation{
				Kind:         OpCancelAssignment,
				TeacherID:    assignment.TeacherID,
				CampusID:     assignment.CampusID,
				AssignmentID: assignment.ID,
			})
		}
		plan.Operations = append(plan.Operations, Operation{Kind: OpResetMetrics})
		return plan
	}

	active := make(map[assignmentPair]models.TeacherAssignment, len(snap.Active))
	for _, assignment := range snap.Active {
		pair := assignmentPair{TeacherID: assignment.TeacherID, CampusID: assignment.CampusID}
		if _, dup := active[pair]; !dup {
			active[pair] = assignment
		}
	}
	existing := make(map[models.ProgressKey]struct{}, len(snap.Progress))
	for _, row := range snap.Progress {
		existing[row.Key()] = struct{}{}
	}

	for _, cov := range newPairs.ordered {
		current, hasActive := active[cov.pair]
		switch {
		case !oldPairs.has(cov.pair) && hasActive:
			plan.Operations = append(plan.Operations, Operation{
				Kind:         OpSkip,
				TeacherID:    cov.pair.TeacherID,
				CampusID:     cov.pair.CampusID,
				AssignmentID: current.ID,
				Reason:       "active assignment exists",
			})
			// rows missing after an interrupted run are filled from the
			// assignment's own coverage
			plan.appendProgress(pairCoverage{
				pair:   cov.pair,
				grades: current.AssignedGrades,
				groups: current.AssignedGroupCodes,
			}, current.ID, snap.Lessons, existing)
		case !hasActive:
			plan.Operations = append(plan.Operations, Operation{
				Kind:      OpCreateAssignment,
				TeacherID: cov.pair.TeacherID,
				CampusID:  cov.pair.CampusID,
				Grades:    cov.grades,
				Groups:    cov.groups,
			})
			plan.appendProgress(cov, "", snap.Lessons, existing)
		default:
			if !current.AssignedGrades.Equal(cov.grades) || !current.AssignedGroupCodes.Equal(cov.groups) {
				plan.Operations = append(plan.Operations, Operation{
					Kind:           OpUpdateCoverage,
					TeacherID:      cov.pair.TeacherID,
					CampusID:       cov.pair.CampusID,
					AssignmentID:   current.ID,
					Grades:         cov.grades,
					Groups:         cov.groups,
					RetainedGrades: current.AssignedGrades.Minus(cov.grades),
					RetainedGroups: current.AssignedGroupCodes.Minus(cov.groups),
				})
			}
			plan.appendProgress(cov, current.ID, snap.Lessons, existing)
		}
	}

	for _, cov := range oldPairs.ordered {
		if newPairs.has(cov.pair) {
			continue
		}
		current, hasActive := active[cov.pair]
		if !hasActive {
			plan.Operations = append(plan.Operations, Operation{
				Kind:      OpSkip,
				TeacherID: cov.pair.TeacherID,
				CampusID:  cov.pair.CampusID,
				Reason:    "no active assignment to cancel",
			})
			continue
		}
		plan.Operations = append(plan.Operations, Operation{
			Kind:         OpCancelAssignment,
			TeacherID:    cov.pair.TeacherID,
			CampusID:     cov.pair.CampusID,
			AssignmentID: current.ID,
		})
	}
	return plan
}

// appendProgress plans not_started rows for every unit of every lesson that
// has no row yet. Planned keys are added to existing so two pairs of the same
// teacher never plan the same row.
func (p *Plan) appendProgress(cov pairCoverage, assignmentID string, lessons []models.Lesson, existing map[models.ProgressKey]struct{}) {
	for _, lesson := range lessons {
		for _, unit := range coverageUnits(cov.grades, cov.groups, lesson) {
			key := models.ProgressKey{TeacherID: cov.pair.TeacherID, LessonID: lesson.ID, GradeCode: unit.Grade, GroupCode: unit.Group}
			if _, ok := existing[key]; ok {
				continue
			}
			existing[key] = struct{}{}
			p.Operations = append(p.Operations, Operation{
				Kind:         OpCreateProgress,
				TeacherID:    cov.pair.TeacherID,
				CampusID:     cov.pair.CampusID,
				AssignmentID: assignmentID,
				LessonID:     lesson.ID,
				Quarter:      lesson.Quarter,
				GradeCode:    unit.Grade,
				GroupCode:    unit.Group,
			})
		}
	}
}

func unionGrades(a, b models.GradeCodes) models.GradeCodes {
	out := append(models.GradeCodes{}, a...)
	for _, code := range b {
		if code != "" && !out.Contains(code) {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if len(out) == 0 {
		return nil
	}
	return out
}

func unionGroups(a, b models.GroupCodes) models.GroupCodes {
	out := append(models.GroupCodes{}, a...)
	for _, code := range b {
		if code != "" && !out.Contains(code) {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if len(out) == 0 {
		return nil
	}
	return out
}
