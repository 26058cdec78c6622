package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/cpmappstudio/cpca-teachers/internal/models"
)

// memStore is an in-memory stand-in for the postgres repositories. It enforces
// the same uniqueness rules as the schema and counts every write.
type memStore struct {
	mu          sync.Mutex
	seq         int
	writes      int
	failOn      map[string]error
	curricula   map[string]*models.Curriculum
	lessons     []*models.Lesson
	assignments []*models.TeacherAssignment
	progress    []*models.LessonProgress
	audits      []models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		failOn:    make(map[string]error),
		curricula: make(map[string]*models.Curriculum),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) fail(op string) error {
	if err, ok := m.failOn[op]; ok {
		delete(m.failOn, op)
		return err
	}
	return nil
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func (m *memStore) seedCurriculum(id string, quarters int) *models.Curriculum {
	c := &models.Curriculum{ID: id, Name: id, Code: id, NumberOfQuarters: quarters, Status: models.CurriculumStatusActive, CreatedBy: "admin"}
	m.curricula[id] = c
	return c
}

func (m *memStore) seedLesson(id, curriculumID string, quarter, order int, grades ...models.GradeCode) *models.Lesson {
	l := &models.Lesson{ID: id, CurriculumID: curriculumID, Title: id, Quarter: quarter, OrderInQuarter: order, GradeCodes: grades, IsActive: true}
	m.lessons = append(m.lessons, l)
	return l
}

func (m *memStore) activeFor(teacherID string) []models.TeacherAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TeacherAssignment
	for _, a := range m.assignments {
		if a.TeacherID == teacherID && a.IsActive {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memStore) rowsFor(teacherID string) []models.LessonProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LessonProgress
	for _, p := range m.progress {
		if p.TeacherID == teacherID {
			out = append(out, *p)
		}
	}
	return out
}

func (m *memStore) curriculumRepo() *memCurricula { return &memCurricula{m} }
func (m *memStore) lessonRepo() *memLessons { return &memLessons{m} }
func (m *memStore) assignmentRepo() *memAssignments { return &memAssignments{m} }
func (m *memStore) progressRepo() *memProgress { return &memProgress{m} }
func (m *memStore) auditRepo() *memAudit { return &memAudit{m} }

type memCurricula struct{ *memStore }

func (r *memCurricula) List(_ context.Context, filter models.CurriculumFilter) ([]models.Curriculum, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Curriculum
	for _, c := range r.curricula {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, len(out), nil
}

func (r *memCurricula) FindByID(_ context.Context, id string) (*models.Curriculum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.curricula[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (r *memCurricula) ExistsByCode(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.curricula {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCurricula) Create(_ context.Context, c *models.Curriculum) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = r.nextID("cur")
	}
	r.writes++
	cp := *c
	r.curricula[c.ID] = &cp
	return nil
}

func (r *memCurricula) UpdateCampusAssignments(_ context.Context, id string, assignments models.CampusAssignments, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("UpdateCampusAssignments"); err != nil {
		return err
	}
	c, ok := r.curricula[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.writes++
	c.CampusAssignments = assignments
	c.UpdatedBy = &actorID
	return nil
}

func (r *memCurricula) UpdateMetrics(_ context.Context, id string, metrics models.CurriculumMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.curricula[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.writes++
	c.CurriculumMetrics = metrics
	return nil
}

type memLessons struct{ *memStore }

func (r *memLessons) FindByID(_ context.Context, id string) (*models.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lessons {
		if l.ID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memLessons) ListByCurriculum(_ context.Context, curriculumID string) ([]models.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Lesson
	for _, l := range r.lessons {
		if l.CurriculumID == curriculumID && l.IsActive {
			out = append(out, *l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quarter != out[j].Quarter {
			return out[i].Quarter < out[j].Quarter
		}
		return out[i].OrderInQuarter < out[j].OrderInQuarter
	})
	return out, nil
}

func (r *memLessons) Create(_ context.Context, l *models.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == "" {
		l.ID = r.nextID("les")
	}
	r.writes++
	cp := *l
	r.lessons = append(r.lessons, &cp)
	return nil
}

type memAssignments struct{ *memStore }

func (r *memAssignments) FindByID(_ context.Context, id string) (*models.TeacherAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memAssignments) FindActive(_ context.Context, teacherID, campusID, curriculumID string) (*models.TeacherAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.IsActive && a.TeacherID == teacherID && a.CampusID == campusID && a.CurriculumID == curriculumID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAssignments) ListActiveByCurriculum(_ context.Context, curriculumID string) ([]models.TeacherAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TeacherAssignment
	for _, a := range r.assignments {
		if a.IsActive && a.CurriculumID == curriculumID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memAssignments) ListByTeacher(_ context.Context, teacherID string, activeOnly bool) ([]models.TeacherAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TeacherAssignment
	for _, a := range r.assignments {
		if a.TeacherID != teacherID || (activeOnly && !a.IsActive) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memAssignments) Create(_ context.Context, a *models.TeacherAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateAssignment"); err != nil {
		return err
	}
	for _, existing := range r.assignments {
		if existing.IsActive && existing.TeacherID == a.TeacherID && existing.CampusID == a.CampusID && existing.CurriculumID == a.CurriculumID {
			return uniqueViolation()
		}
	}
	if a.ID == "" {
		a.ID = r.nextID("asg")
	}
	a.IsActive = true
	a.Status = models.AssignmentStatusActive
	r.writes++
	cp := *a
	r.assignments = append(r.assignments, &cp)
	return nil
}

func (r *memAssignments) Cancel(_ context.Context, id, actorID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("Cancel"); err != nil {
		return err
	}
	for _, a := range r.assignments {
		if a.ID == id && a.IsActive {
			stamp := at.UTC()
			a.IsActive = false
			a.Status = models.AssignmentStatusCancelled
			a.CancelledBy = &actorID
			a.CancelledAt = &stamp
			r.writes++
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *memAssignments) UpdateCoverage(_ context.Context, id string, grades models.GradeCodes, groups models.GroupCodes) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ID == id && a.IsActive {
			a.AssignedGrades = grades
			a.AssignedGroupCodes = groups
			r.writes++
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *memAssignments) UpdateProgressSummary(_ context.Context, id string, summary models.ProgressSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ID == id {
			a.ProgressSummary = summary
			r.writes++
			return nil
		}
	}
	return sql.ErrNoRows
}

type memProgress struct{ *memStore }

func (r *memProgress) FindByID(_ context.Context, id string) (*models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.progress {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memProgress) FindByKey(_ context.Context, key models.ProgressKey) (*models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.progress {
		if p.Key() == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memProgress) ListByTeacherCurriculum(_ context.Context, teacherID, curriculumID string) ([]models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LessonProgress
	for _, p := range r.progress {
		if p.TeacherID == teacherID && p.CurriculumID == curriculumID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProgress) ListByCurriculum(_ context.Context, curriculumID string) ([]models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LessonProgress
	for _, p := range r.progress {
		if p.CurriculumID == curriculumID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProgress) CountByAssignment(_ context.Context, assignmentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.progress {
		if p.AssignmentID == assignmentID {
			n++
		}
	}
	return n, nil
}

func (r *memProgress) Create(_ context.Context, p *models.LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateProgress"); err != nil {
		return err
	}
	for _, existing := range r.progress {
		if existing.Key() == p.Key() {
			return uniqueViolation()
		}
	}
	if p.ID == "" {
		p.ID = r.nextID("prg")
	}
	if p.Status == "" {
		p.Status = models.ProgressStatusNotStarted
	}
	r.writes++
	cp := *p
	r.progress = append(r.progress, &cp)
	return nil
}

func (r *memProgress) Update(_ context.Context, p *models.LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.progress {
		if existing.ID == p.ID {
			cp := *p
			cp.AssignmentID = existing.AssignmentID
			r.progress[i] = &cp
			r.writes++
			return nil
		}
	}
	return sql.ErrNoRows
}

type memAudit struct{ *memStore }

func (r *memAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, *log)
	return nil
}

func (r *memAudit) ListByResource(_ context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditLog
	for i := len(r.audits) - 1; i >= 0 && len(out) < limit; i-- {
		entry := r.audits[i]
		if entry.Resource == resource && entry.ResourceID != nil && *entry.ResourceID == resourceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// testEnv wires every service on one memStore.
type testEnv struct {
	store      *memStore
	metrics    *MetricsService
	aggregator *AggregatorService
	reconciler *ReconcilerService
	progress   *ProgressService
	curricula  *CurriculumService
	clock      time.Time
}

func newTestEnv() *testEnv {
	store := newMemStore()
	env := &testEnv{store: store, metrics: NewMetricsService(), clock: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)}
	now := func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}
	env.aggregator = NewAggregatorService(AggregatorServiceParams{
		Assignments: store.assignmentRepo(),
		Lessons:     store.lessonRepo(),
		Progress:    store.progressRepo(),
		Curricula:   store.curriculumRepo(),
		Audit:       store.auditRepo(),
		Metrics:     env.metrics,
	})
	env.aggregator.now = now
	env.reconciler = NewReconcilerService(ReconcilerServiceParams{
		Curricula:   store.curriculumRepo(),
		Lessons:     store.lessonRepo(),
		Assignments: store.assignmentRepo(),
		Progress:    store.progressRepo(),
		Summaries:   env.aggregator,
		Audit:       store.auditRepo(),
		Metrics:     env.metrics,
		Config:      ReconcilerConfig{AcademicYear: "2026-2027"},
	})
	env.reconciler.now = now
	env.progress = NewProgressService(store.assignmentRepo(), store.lessonRepo(), store.progressRepo(), env.aggregator, store.auditRepo(), env.metrics, nil, nil)
	env.progress.now = now
	env.curricula = NewCurriculumService(store.curriculumRepo(), store.lessonRepo(), env.reconciler, store.auditRepo(), nil, nil)
	return env
}

func campus(id string, teachers []string, grades ...models.GradeCode) models.CampusAssignment {
	return models.CampusAssignment{CampusID: id, AssignedTeachers: teachers, GradeCodes: grades}
}
