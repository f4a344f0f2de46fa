package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id int64) error
	ListByGradeAtDay(ctx context.Context, gradeType models.GradeType, day time.Time) ([]models.Student, error)
}

// CreateStudentRequest represents payload for creating students.
type CreateStudentRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Age         int    `json:"age" validate:"required,min=5,max=25"`
	ClassYearID int64  `json:"class_year_id" validate:"required"`
}

// StudentService orchestrates student operations and the grade-context
// lookups built on top of them.
type StudentService struct {
	repo      studentRepository
	years     classYearReader
	cache     averageCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService. cache may be nil.
func NewStudentService(repo studentRepository, years classYearReader, cache averageCache, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, years: years, cache: cache, validator: validate, logger: logger}
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %d could not be found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student under an existing class year.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.years.FindByID(ctx, req.ClassYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class year with id %d could not be found", req.ClassYearID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class year")
	}
	student := &models.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Age:         req.Age,
		ClassYearID: req.ClassYearID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// PartialUpdate applies a sparse field map onto an existing student. A
// class_year_id change is re-resolved so the student can never point at a
// missing class year.
func (s *StudentService) PartialUpdate(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireKnownFields(fields, "first_name", "last_name", "age", "class_year_id"); err != nil {
		return nil, err
	}
	if str, ok, err := readString(fields, "first_name"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "first_name must be a string")
	} else if ok {
		student.FirstName = *str
	}
	if str, ok, err := readString(fields, "last_name"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "last_name must be a string")
	} else if ok {
		student.LastName = *str
	}
	if val, ok, err := readInt(fields, "age"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "age must be an integer")
	} else if ok {
		student.Age = val
	}
	if ref, ok, err := readID(fields, "class_year_id"); err != nil || (ok && ref == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_year_id must be a number")
	} else if ok {
		if _, err := s.years.FindByID(ctx, *ref); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrDanglingReference, fmt.Sprintf("class year with id %d could not be found", *ref))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class year")
		}
		student.ClassYearID = *ref
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student along with their grades at the store level. Any
// cached averages for the student are invalidated.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:%d:*", id)); err != nil {
			s.logger.Warn("failed to invalidate average cache", zap.Int64("student_id", id), zap.Error(err))
		}
	}
	return nil
}

// ListByGradeContext returns every student holding a grade of the given type
// on the given day.
func (s *StudentService) ListByGradeContext(ctx context.Context, gctx models.GradeContext) ([]models.Student, error) {
	if !gctx.GradeType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grade type %q", gctx.GradeType))
	}
	students, err := s.repo.ListByGradeAtDay(ctx, gctx.GradeType, gctx.DateOfGrade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// CountByGradeContext counts students holding a grade of the given type on
// the given day.
func (s *StudentService) CountByGradeContext(ctx context.Context, gctx models.GradeContext) (int, error) {
	students, err := s.ListByGradeContext(ctx, gctx)
	if err != nil {
		return 0, err
	}
	return len(students), nil
}
