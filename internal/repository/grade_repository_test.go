package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func gradeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "value", "weight", "grade_type", "comment", "date_of_grade", "teacher_id", "subject_id", "student_id", "version", "created_at", "updated_at"})
}

func TestGradeRepositorySearchNoCriteria(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades WHERE 1=1 ORDER BY id")).
		WillReturnRows(gradeRows().
			AddRow(1, 4, 2.0, "A", nil, time.Now(), nil, 10, 1, 1, time.Now(), time.Now()))

	grades, err := repo.Search(context.Background(), models.GradeSearchCriteria{})
	require.NoError(t, err)
	require.Len(t, grades, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySearchBuildsConjunctiveQuery(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	valueFrom := 2
	dateTo := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	studentID := int64(1)

	// Present fields become positional clauses in declaration order.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND value >= $1 AND date_of_grade <= $2 AND student_id = $3 ORDER BY id")).
		WithArgs(valueFrom, dateTo, studentID).
		WillReturnRows(gradeRows())

	_, err := repo.Search(context.Background(), models.GradeSearchCriteria{
		ValueFrom: &valueFrom,
		DateTo:    &dateTo,
		StudentID: &studentID,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateConvertsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Grade{
		Value:       4,
		Weight:      1,
		GradeType:   models.GradeTypeA,
		DateOfGrade: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		SubjectID:   10,
		StudentID:   1,
	})
	require.ErrorIs(t, err, ErrDuplicateGradeDay)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryExistsByTypeAndDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM grades WHERE grade_type = $1 AND date_of_grade = $2")).
		WithArgs("A", day).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	exists, err := repo.ExistsByTypeAndDate(context.Background(), models.GradeTypeA, day)
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM grades WHERE grade_type = $1 AND date_of_grade = $2")).
		WithArgs("B", day).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	exists, err = repo.ExistsByTypeAndDate(context.Background(), models.GradeTypeB, day)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateScansGeneratedID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	grade := &models.Grade{
		Value:       4,
		Weight:      1,
		GradeType:   models.GradeTypeA,
		DateOfGrade: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		SubjectID:   10,
		StudentID:   1,
	}
	require.NoError(t, repo.Create(context.Background(), grade))
	require.Equal(t, int64(42), grade.ID)
	require.Equal(t, int64(1), grade.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
