package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type mockStudentRepo struct {
	items     map[int64]*models.Student
	nextID    int64
	byGradeAt []models.Student
	deleted   []int64
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if student, ok := m.items[id]; ok {
		cp := *student
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.items == nil {
		m.items = make(map[int64]*models.Student)
	}
	m.nextID++
	student.ID = m.nextID
	student.Version = 1
	cp := *student
	m.items[student.ID] = &cp
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	student.Version++
	cp := *student
	m.items[student.ID] = &cp
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *mockStudentRepo) ListByGradeAtDay(ctx context.Context, gradeType models.GradeType, day time.Time) ([]models.Student, error) {
	return m.byGradeAt, nil
}

type mockClassYearReader struct {
	items map[int64]*models.ClassYear
}

func (m *mockClassYearReader) FindByID(ctx context.Context, id int64) (*models.ClassYear, error) {
	if classYear, ok := m.items[id]; ok {
		cp := *classYear
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func newStudentFixture() (*StudentService, *mockStudentRepo, *mockAverageCache) {
	repo := &mockStudentRepo{
		items: map[int64]*models.Student{
			1: {ID: 1, FirstName: "Anna", LastName: "Nowak", Age: 12, ClassYearID: 1, Version: 1},
		},
		nextID: 1,
	}
	years := &mockClassYearReader{items: map[int64]*models.ClassYear{
		1: {ID: 1, ClassLevel: 1, ClassName: "A", ClassYear: "2024/2025"},
	}}
	cache := &mockAverageCache{}
	return NewStudentService(repo, years, cache, validator.New(), zap.NewNop()), repo, cache
}

func TestStudentServiceCreateRequiresClassYear(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		FirstName:   "Piotr",
		LastName:    "Kowalski",
		Age:         13,
		ClassYearID: 99,
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", appErrors.FromError(err).Code)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		FirstName:   "Piotr",
		LastName:    "Kowalski",
		Age:         13,
		ClassYearID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), student.ID)
	assert.Len(t, repo.items, 2)
}

func TestStudentServicePatchReResolvesClassYear(t *testing.T) {
	svc, _, _ := newStudentFixture()

	_, err := svc.PartialUpdate(context.Background(), 1, rawFields(t, map[string]interface{}{
		"class_year_id": 99,
	}))
	require.Error(t, err)
	assert.Equal(t, "DANGLING_REFERENCE", appErrors.FromError(err).Code)

	student, err := svc.PartialUpdate(context.Background(), 1, rawFields(t, map[string]interface{}{
		"age": 13,
	}))
	require.NoError(t, err)
	assert.Equal(t, 13, student.Age)
	assert.Equal(t, "Anna", student.FirstName)
}

func TestStudentServiceDeleteInvalidatesAverages(t *testing.T) {
	svc, repo, cache := newStudentFixture()

	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Equal(t, []int64{1}, repo.deleted)
	assert.Equal(t, []string{"avg:1:*"}, cache.invalidated)
}

func TestStudentServiceListByGradeContext(t *testing.T) {
	svc, repo, _ := newStudentFixture()
	repo.byGradeAt = []models.Student{{ID: 1}, {ID: 2}}
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	students, err := svc.ListByGradeContext(context.Background(), models.GradeContext{
		GradeType:   models.GradeTypeF,
		DateOfGrade: day,
	})
	require.NoError(t, err)
	assert.Len(t, students, 2)

	count, err := svc.CountByGradeContext(context.Background(), models.GradeContext{
		GradeType:   models.GradeTypeF,
		DateOfGrade: day,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = svc.ListByGradeContext(context.Background(), models.GradeContext{
		GradeType:   "G",
		DateOfGrade: day,
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}
