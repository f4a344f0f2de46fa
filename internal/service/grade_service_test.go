package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	"github.com/kpawlowski/gradebook-api/internal/repository"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type mockGradeRepo struct {
	items       map[int64]*models.Grade
	nextID      int64
	takenDays   map[string]bool
	listResult  []models.Grade
	listErr     error
	searchCalls []models.GradeSearchCriteria
	createErr   error
}

func dayKey(gradeType models.GradeType, date time.Time) string {
	return string(gradeType) + "|" + date.Format("2006-01-02")
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id int64) (*models.Grade, error) {
	if grade, ok := m.items[id]; ok {
		cp := *grade
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.items == nil {
		m.items = make(map[int64]*models.Grade)
	}
	m.nextID++
	grade.ID = m.nextID
	grade.Version = 1
	cp := *grade
	m.items[grade.ID] = &cp
	if m.takenDays == nil {
		m.takenDays = make(map[string]bool)
	}
	m.takenDays[dayKey(grade.GradeType, grade.DateOfGrade)] = true
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	grade.Version++
	cp := *grade
	m.items[grade.ID] = &cp
	return nil
}

func (m *mockGradeRepo) Delete(ctx context.Context, id int64) error {
	delete(m.items, id)
	return nil
}

func (m *mockGradeRepo) ExistsByTypeAndDate(ctx context.Context, gradeType models.GradeType, date time.Time) (bool, error) {
	return m.takenDays[dayKey(gradeType, date)], nil
}

func (m *mockGradeRepo) ListByStudentAndSubject(ctx context.Context, studentID, subjectID int64) ([]models.Grade, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.listResult, nil
}

func (m *mockGradeRepo) Search(ctx context.Context, criteria models.GradeSearchCriteria) ([]models.Grade, error) {
	m.searchCalls = append(m.searchCalls, criteria)
	var out []models.Grade
	for _, grade := range m.items {
		if matchesCriteria(*grade, criteria) {
			out = append(out, *grade)
		}
	}
	return out, nil
}

// matchesCriteria mirrors the store's conjunctive filter: present fields
// constrain, absent fields match everything, range bounds are inclusive.
func matchesCriteria(g models.Grade, c models.GradeSearchCriteria) bool {
	if c.ValueFrom != nil && g.Value < *c.ValueFrom {
		return false
	}
	if c.ValueTo != nil && g.Value > *c.ValueTo {
		return false
	}
	if c.WeightFrom != nil && g.Weight < *c.WeightFrom {
		return false
	}
	if c.WeightTo != nil && g.Weight > *c.WeightTo {
		return false
	}
	if c.DateFrom != nil && g.DateOfGrade.Before(*c.DateFrom) {
		return false
	}
	if c.DateTo != nil && g.DateOfGrade.After(*c.DateTo) {
		return false
	}
	if c.GradeType != nil && g.GradeType != *c.GradeType {
		return false
	}
	if c.StudentID != nil && g.StudentID != *c.StudentID {
		return false
	}
	if c.SubjectID != nil && g.SubjectID != *c.SubjectID {
		return false
	}
	return true
}

type mockStudentReader struct {
	items map[int64]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if student, ok := m.items[id]; ok {
		cp := *student
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockSubjectReader struct {
	items map[int64]*models.Subject
}

func (m *mockSubjectReader) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	if subject, ok := m.items[id]; ok {
		cp := *subject
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

type mockAverageCache struct {
	values      map[string]float64
	sets        map[string]float64
	invalidated []string
}

func (m *mockAverageCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if value, ok := m.values[key]; ok {
		*dest.(*float64) = value
		return true, nil
	}
	return false, nil
}

func (m *mockAverageCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.sets == nil {
		m.sets = make(map[string]float64)
	}
	m.sets[key] = value.(float64)
	return nil
}

func (m *mockAverageCache) Invalidate(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	return nil
}

func ptrInt(v int) *int              { return &v }
func ptrInt64(v int64) *int64        { return &v }
func ptrFloat(v float64) *float64    { return &v }
func ptrString(v string) *string     { return &v }
func ptrTime(v time.Time) *time.Time { return &v }

func newGradeFixture() (*GradeService, *mockGradeRepo, *mockAverageCache) {
	teacherID := int64(7)
	grades := &mockGradeRepo{takenDays: map[string]bool{}}
	students := &mockStudentReader{items: map[int64]*models.Student{
		1: {ID: 1, FirstName: "Anna", LastName: "Nowak", Age: 12, ClassYearID: 1},
		2: {ID: 2, FirstName: "Piotr", LastName: "Kowalski", Age: 13, ClassYearID: 1},
	}}
	subjects := &mockSubjectReader{items: map[int64]*models.Subject{
		10: {ID: 10, Name: "BIOLOGY_1A", SubjectType: models.SubjectTypeBiology, TeacherID: &teacherID, ClassYearID: 1},
		11: {ID: 11, Name: "MATHS_1A", SubjectType: models.SubjectTypeMaths, TeacherID: ptrInt64(8), ClassYearID: 1},
	}}
	cache := &mockAverageCache{}
	svc := NewGradeService(grades, students, subjects, cache, time.Minute, validator.New(), zap.NewNop())
	return svc, grades, cache
}

func TestGradeServiceCreateInheritsTeacherFromSubject(t *testing.T) {
	svc, repo, cache := newGradeFixture()

	grade, err := svc.Create(context.Background(), CreateGradeRequest{
		Value:       4,
		GradeType:   models.GradeTypeA,
		DateOfGrade: "2024-03-11",
		StudentID:   1,
		SubjectID:   10,
	})
	require.NoError(t, err)
	require.NotNil(t, grade.TeacherID)
	assert.Equal(t, int64(7), *grade.TeacherID)
	assert.Equal(t, 1.0, grade.Weight)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, []string{"avg:1:10"}, cache.invalidated)
}

func TestGradeServiceCreateRejectsDuplicateTypeOnSameDayAcrossStudents(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.Create(context.Background(), CreateGradeRequest{
		Value:       4,
		GradeType:   models.GradeTypeB,
		DateOfGrade: "2024-03-11",
		StudentID:   1,
		SubjectID:   10,
	})
	require.NoError(t, err)

	// A different student, subject and value still collide: the rule keys on
	// type and date alone.
	_, err = svc.Create(context.Background(), CreateGradeRequest{
		Value:       2,
		GradeType:   models.GradeTypeB,
		DateOfGrade: "2024-03-11",
		StudentID:   2,
		SubjectID:   11,
	})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_GRADE", appErrors.FromError(err).Code)
}

func TestGradeServiceCreateConvertsStoreDuplicate(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	repo.createErr = repository.ErrDuplicateGradeDay

	_, err := svc.Create(context.Background(), CreateGradeRequest{
		Value:       4,
		GradeType:   models.GradeTypeA,
		DateOfGrade: "2024-03-11",
		StudentID:   1,
		SubjectID:   10,
	})
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_GRADE", appErrors.FromError(err).Code)
}

func TestGradeServiceCreateRequiresCommentAtExtremes(t *testing.T) {
	svc, _, _ := newGradeFixture()

	for i, value := range []int{1, 6} {
		date := time.Date(2024, 3, 11+i, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		_, err := svc.Create(context.Background(), CreateGradeRequest{
			Value:       value,
			GradeType:   models.GradeTypeA,
			DateOfGrade: date,
			StudentID:   1,
			SubjectID:   10,
		})
		require.Error(t, err)
		assert.Equal(t, "COMMENT_REQUIRED", appErrors.FromError(err).Code)

		_, err = svc.Create(context.Background(), CreateGradeRequest{
			Value:       value,
			GradeType:   models.GradeTypeA,
			Comment:     ptrString("explained in class"),
			DateOfGrade: date,
			StudentID:   1,
			SubjectID:   10,
		})
		require.NoError(t, err)
	}
}

func TestGradeServiceCreateRejectsOutOfRange(t *testing.T) {
	svc, repo, _ := newGradeFixture()

	cases := []struct {
		name   string
		value  int
		weight *float64
	}{
		{"value above max", 7, nil},
		{"weight below min", 4, ptrFloat(0.5)},
		{"weight above max", 4, ptrFloat(9.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), CreateGradeRequest{
				Value:       tc.value,
				Weight:      tc.weight,
				GradeType:   models.GradeTypeA,
				DateOfGrade: "2024-03-11",
				StudentID:   1,
				SubjectID:   10,
			})
			require.Error(t, err)
			assert.Equal(t, "OUT_OF_RANGE", appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, repo.items)
}

func TestGradeServiceCreateUnknownReferences(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.Create(context.Background(), CreateGradeRequest{
		Value:       4,
		GradeType:   models.GradeTypeA,
		DateOfGrade: "2024-03-11",
		StudentID:   99,
		SubjectID:   10,
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateGradeRequest{
		Value:       4,
		GradeType:   models.GradeTypeA,
		DateOfGrade: "2024-03-11",
		StudentID:   1,
		SubjectID:   99,
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}

func TestGradeServiceWeightedAverage(t *testing.T) {
	cases := []struct {
		name     string
		grades   []models.Grade
		expected float64
	}{
		{
			name: "rounds up from repeating decimal",
			grades: []models.Grade{
				{Value: 1, Weight: 5},
				{Value: 5, Weight: 4},
				{Value: 3, Weight: 2},
			},
			expected: 2.82, // 31/11
		},
		{
			name: "rounds down from repeating decimal",
			grades: []models.Grade{
				{Value: 1, Weight: 5},
				{Value: 1, Weight: 4},
				{Value: 5, Weight: 4},
				{Value: 3, Weight: 2},
			},
			expected: 2.33, // 35/15
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, cache := newGradeFixture()
			repo.listResult = tc.grades

			average, err := svc.WeightedAverage(context.Background(), 1, 10)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, average)
			assert.Equal(t, tc.expected, cache.sets["avg:1:10"])
		})
	}
}

func TestGradeServiceWeightedAverageNoGrades(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.WeightedAverage(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, "NO_GRADES", appErrors.FromError(err).Code)
}

func TestGradeServiceWeightedAverageUsesCache(t *testing.T) {
	svc, repo, cache := newGradeFixture()
	cache.values = map[string]float64{"avg:1:10": 3.5}
	repo.listErr = sql.ErrConnDone // the store must not be touched on a hit

	average, err := svc.WeightedAverage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3.5, average)
}

func TestGradeServiceSearchRejectsInvertedRanges(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	from := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		criteria models.GradeSearchCriteria
	}{
		{"date range", models.GradeSearchCriteria{DateFrom: &from, DateTo: &to}},
		{"value range", models.GradeSearchCriteria{ValueFrom: ptrInt(5), ValueTo: ptrInt(2)}},
		{"weight range", models.GradeSearchCriteria{WeightFrom: ptrFloat(4), WeightTo: ptrFloat(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tc.criteria)
			require.Error(t, err)
			assert.Equal(t, "INVALID_RANGE", appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, repo.searchCalls)
}

func TestGradeServiceSearchPassesCriteria(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	criteria := models.GradeSearchCriteria{
		ValueFrom: ptrInt(2),
		ValueTo:   ptrInt(5),
		StudentID: ptrInt64(1),
	}

	_, err := svc.Search(context.Background(), criteria)
	require.NoError(t, err)
	require.Len(t, repo.searchCalls, 1)
	assert.Equal(t, criteria, repo.searchCalls[0])
}

func TestGradeServiceSearchWideningRangesNeverDropsMatches(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	repo.items = map[int64]*models.Grade{}
	for i, g := range []models.Grade{
		{Value: 2, Weight: 1, GradeType: models.GradeTypeA, DateOfGrade: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), StudentID: 1, SubjectID: 10},
		{Value: 3, Weight: 3, GradeType: models.GradeTypeB, DateOfGrade: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), StudentID: 1, SubjectID: 10},
		{Value: 4, Weight: 5, GradeType: models.GradeTypeA, DateOfGrade: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), StudentID: 2, SubjectID: 11},
		{Value: 5, Weight: 7, GradeType: models.GradeTypeC, DateOfGrade: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), StudentID: 2, SubjectID: 11},
	} {
		g.ID = int64(i + 1)
		cp := g
		repo.items[g.ID] = &cp
	}

	narrow := models.GradeSearchCriteria{
		ValueFrom:  ptrInt(3),
		ValueTo:    ptrInt(4),
		WeightFrom: ptrFloat(2),
		WeightTo:   ptrFloat(6),
		DateFrom:   ptrTime(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)),
		DateTo:     ptrTime(time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC)),
	}
	base, err := svc.Search(context.Background(), narrow)
	require.NoError(t, err)
	require.NotEmpty(t, base)

	// Relaxing any single bound, or dropping it, may only grow the result set.
	widened := []models.GradeSearchCriteria{
		narrow, // unchanged baseline
		{ValueFrom: ptrInt(2), ValueTo: narrow.ValueTo, WeightFrom: narrow.WeightFrom, WeightTo: narrow.WeightTo, DateFrom: narrow.DateFrom, DateTo: narrow.DateTo},
		{ValueFrom: narrow.ValueFrom, ValueTo: ptrInt(6), WeightFrom: narrow.WeightFrom, WeightTo: narrow.WeightTo, DateFrom: narrow.DateFrom, DateTo: narrow.DateTo},
		{ValueFrom: narrow.ValueFrom, ValueTo: narrow.ValueTo, WeightFrom: ptrFloat(1), WeightTo: ptrFloat(9), DateFrom: narrow.DateFrom, DateTo: narrow.DateTo},
		{ValueFrom: narrow.ValueFrom, ValueTo: narrow.ValueTo, WeightFrom: narrow.WeightFrom, WeightTo: narrow.WeightTo, DateFrom: ptrTime(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), DateTo: ptrTime(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC))},
		{ValueFrom: narrow.ValueFrom, ValueTo: narrow.ValueTo},
		{},
	}
	for _, criteria := range widened {
		wider, err := svc.Search(context.Background(), criteria)
		require.NoError(t, err)
		matched := make(map[int64]bool, len(wider))
		for _, g := range wider {
			matched[g.ID] = true
		}
		for _, g := range base {
			assert.True(t, matched[g.ID], "grade %d dropped by wider criteria %+v", g.ID, criteria)
		}
	}
}

func seedGrade(repo *mockGradeRepo) *models.Grade {
	teacherID := int64(7)
	grade := &models.Grade{
		ID:          1,
		Value:       4,
		Weight:      2,
		GradeType:   models.GradeTypeA,
		DateOfGrade: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		TeacherID:   &teacherID,
		SubjectID:   10,
		StudentID:   1,
		Version:     1,
	}
	if repo.items == nil {
		repo.items = make(map[int64]*models.Grade)
	}
	repo.items[grade.ID] = grade
	repo.nextID = 1
	return grade
}

func TestGradeServicePartialUpdateRejectsUnknownField(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)

	_, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
		"valeu": json.RawMessage(`5`),
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}

func TestGradeServicePartialUpdateWidensReferenceIDs(t *testing.T) {
	svc, repo, cache := newGradeFixture()
	seedGrade(repo)

	grade, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
		"student_id": json.RawMessage(`2`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), grade.StudentID)
	// The averages of both the old and the new owner are stale now.
	assert.Equal(t, []string{"avg:1:10", "avg:2:10"}, cache.invalidated)
}

func TestGradeServicePartialUpdateRejectsNullFields(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)

	// None of these fields is nullable; an explicit null must fail cleanly
	// instead of clearing the field.
	for _, field := range []string{"value", "weight", "grade_type", "date_of_grade", "student_id", "subject_id"} {
		t.Run(field, func(t *testing.T) {
			_, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
				field: json.RawMessage(`null`),
			})
			require.Error(t, err)
			assert.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
		})
	}
	assert.Equal(t, 4, repo.items[1].Value)
	assert.Equal(t, int64(1), repo.items[1].Version)
}

func TestGradeServicePartialUpdateKeepsDomainRules(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)

	cases := []struct {
		name  string
		patch map[string]json.RawMessage
		code  string
	}{
		{"value below min", map[string]json.RawMessage{"value": json.RawMessage(`0`)}, "OUT_OF_RANGE"},
		{"value above max", map[string]json.RawMessage{"value": json.RawMessage(`7`)}, "OUT_OF_RANGE"},
		{"weight above max", map[string]json.RawMessage{"weight": json.RawMessage(`99`)}, "OUT_OF_RANGE"},
		{"extreme without comment", map[string]json.RawMessage{"value": json.RawMessage(`1`)}, "COMMENT_REQUIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PartialUpdate(context.Background(), 1, tc.patch)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	// The stored grade never moved.
	assert.Equal(t, 4, repo.items[1].Value)
	assert.Equal(t, 2.0, repo.items[1].Weight)

	grade, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
		"value":   json.RawMessage(`1`),
		"comment": json.RawMessage(`"talked through after class"`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, grade.Value)
}

func TestGradeServicePartialUpdateDanglingReference(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)

	_, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
		"subject_id": json.RawMessage(`99`),
	})
	require.Error(t, err)
	assert.Equal(t, "DANGLING_REFERENCE", appErrors.FromError(err).Code)
}

func TestGradeServicePartialUpdateReinheritsTeacher(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)

	grade, err := svc.PartialUpdate(context.Background(), 1, map[string]json.RawMessage{
		"subject_id": json.RawMessage(`11`),
	})
	require.NoError(t, err)
	require.NotNil(t, grade.TeacherID)
	assert.Equal(t, int64(8), *grade.TeacherID)
}

func TestGradeServicePartialUpdateIdempotent(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	seedGrade(repo)
	patch := map[string]json.RawMessage{
		"value":   json.RawMessage(`5`),
		"comment": json.RawMessage(`"good recovery"`),
	}

	first, err := svc.PartialUpdate(context.Background(), 1, patch)
	require.NoError(t, err)
	second, err := svc.PartialUpdate(context.Background(), 1, patch)
	require.NoError(t, err)

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, first.Comment, second.Comment)
	assert.Equal(t, first.StudentID, second.StudentID)
	assert.Equal(t, first.TeacherID, second.TeacherID)
}

func TestGradeServiceDeleteInvalidatesCachedAverage(t *testing.T) {
	svc, repo, cache := newGradeFixture()
	seedGrade(repo)

	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Empty(t, repo.items)
	assert.Equal(t, []string{"avg:1:10"}, cache.invalidated)
}

func TestGradeServiceGetNotFound(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.Get(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)
}
