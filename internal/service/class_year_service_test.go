package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type mockClassYearRepo struct {
	items        map[int64]*models.ClassYear
	nextID       int64
	studentCount map[int64]int
	deleted      []int64
}

func (m *mockClassYearRepo) FindByID(ctx context.Context, id int64) (*models.ClassYear, error) {
	if classYear, ok := m.items[id]; ok {
		cp := *classYear
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassYearRepo) Create(ctx context.Context, classYear *models.ClassYear) error {
	if m.items == nil {
		m.items = make(map[int64]*models.ClassYear)
	}
	m.nextID++
	classYear.ID = m.nextID
	classYear.Version = 1
	cp := *classYear
	m.items[classYear.ID] = &cp
	return nil
}

func (m *mockClassYearRepo) Update(ctx context.Context, classYear *models.ClassYear) error {
	classYear.Version++
	cp := *classYear
	m.items[classYear.ID] = &cp
	return nil
}

func (m *mockClassYearRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *mockClassYearRepo) CountStudents(ctx context.Context, id int64) (int, error) {
	return m.studentCount[id], nil
}

type mockSubjectRenamer struct {
	calls [][3]interface{}
}

func (m *mockSubjectRenamer) RenameByClassYear(ctx context.Context, classYearID int64, classLevel int, className string) error {
	m.calls = append(m.calls, [3]interface{}{classYearID, classLevel, className})
	return nil
}

func newClassYearFixture() (*ClassYearService, *mockClassYearRepo, *mockSubjectRenamer) {
	repo := &mockClassYearRepo{
		items: map[int64]*models.ClassYear{
			1: {ID: 1, ClassLevel: 1, ClassName: "A", ClassYear: "2024/2025", Version: 1},
		},
		nextID:       1,
		studentCount: map[int64]int{},
	}
	renamer := &mockSubjectRenamer{}
	return NewClassYearService(repo, renamer, validator.New(), zap.NewNop()), repo, renamer
}

func TestClassYearServiceCreate(t *testing.T) {
	svc, repo, _ := newClassYearFixture()

	classYear, err := svc.Create(context.Background(), CreateClassYearRequest{
		ClassLevel: 2,
		ClassName:  "B",
		ClassYear:  "2024/2025",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), classYear.ID)
	assert.Len(t, repo.items, 2)
}

func TestClassYearServiceCreateRejectsInvalidLevel(t *testing.T) {
	svc, _, _ := newClassYearFixture()

	_, err := svc.Create(context.Background(), CreateClassYearRequest{
		ClassLevel: 9,
		ClassName:  "A",
		ClassYear:  "2024/2025",
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", appErrors.FromError(err).Code)
}

func TestClassYearServicePatchRenamesOwnedSubjects(t *testing.T) {
	svc, _, renamer := newClassYearFixture()

	classYear, err := svc.PartialUpdate(context.Background(), 1, rawFields(t, map[string]interface{}{
		"class_level": 2,
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, classYear.ClassLevel)
	require.Len(t, renamer.calls, 1)
	assert.Equal(t, [3]interface{}{int64(1), 2, "A"}, renamer.calls[0])
}

func TestClassYearServicePatchLabelOnlySkipsRename(t *testing.T) {
	svc, _, renamer := newClassYearFixture()

	_, err := svc.PartialUpdate(context.Background(), 1, rawFields(t, map[string]interface{}{
		"class_year": "2025/2026",
	}))
	require.NoError(t, err)
	assert.Empty(t, renamer.calls)
}

func TestClassYearServiceDeleteGuardedByStudents(t *testing.T) {
	svc, repo, _ := newClassYearFixture()
	repo.studentCount[1] = 3

	err := svc.Delete(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, "STILL_IN_USE", appErrors.FromError(err).Code)
	assert.Contains(t, repo.items, int64(1))

	repo.studentCount[1] = 0
	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Equal(t, []int64{1}, repo.deleted)
}
