package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type subjectRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id int64) error
	ListByClassYear(ctx context.Context, classYearID int64) ([]models.Subject, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
}

type classYearReader interface {
	FindByID(ctx context.Context, id int64) (*models.ClassYear, error)
}

// CreateSubjectRequest represents payload for creating subjects. The display
// name is never supplied; it is derived from the type and the owning class
// year.
type CreateSubjectRequest struct {
	SubjectType models.SubjectType `json:"subject_type" validate:"required"`
	TeacherID   int64              `json:"teacher_id" validate:"required"`
	ClassYearID int64              `json:"class_year_id" validate:"required"`
}

// SubjectService orchestrates subject operations.
type SubjectService struct {
	repo      subjectRepository
	teachers  teacherReader
	years     classYearReader
	cache     averageCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs a SubjectService. cache may be nil.
func NewSubjectService(repo subjectRepository, teachers teacherReader, years classYearReader, cache averageCache, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, teachers: teachers, years: years, cache: cache, validator: validate, logger: logger}
}

// Get returns a subject by id.
func (s *SubjectService) Get(ctx context.Context, id int64) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject with id %d could not be found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// ListByClassYear returns every subject owned by a class year.
func (s *SubjectService) ListByClassYear(ctx context.Context, classYearID int64) ([]models.Subject, error) {
	if _, err := s.years.FindByID(ctx, classYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class year with id %d could not be found", classYearID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class year")
	}
	subjects, err := s.repo.ListByClassYear(ctx, classYearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

// Create registers a subject under a class year. Every subject is taught by
// someone: the teacher reference is mandatory, and the column only goes null
// transiently inside the teacher-removal transaction.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if !req.SubjectType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown subject type %q", req.SubjectType))
	}
	year, err := s.years.FindByID(ctx, req.ClassYearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class year with id %d could not be found", req.ClassYearID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class year")
	}
	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher with id %d could not be found", req.TeacherID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	subject := &models.Subject{
		Name:        models.SubjectDisplayName(req.SubjectType, year.ClassLevel, year.ClassName),
		SubjectType: req.SubjectType,
		TeacherID:   &teacher.ID,
		ClassYearID: year.ID,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// UpdateTeacher reassigns the subject to another teacher. A subject cannot be
// left without one; grades already recorded keep the teacher they were given
// under.
func (s *SubjectService) UpdateTeacher(ctx context.Context, id, teacherID int64) (*models.Subject, error) {
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher with id %d could not be found", teacherID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	subject.TeacherID = &teacher.ID
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return subject, nil
}

// Delete removes a subject along with its grades at the store level. Any
// cached averages for the subject are invalidated.
func (s *SubjectService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("avg:*:%d", id)); err != nil {
			s.logger.Warn("failed to invalidate average cache", zap.Int64("subject_id", id), zap.Error(err))
		}
	}
	return nil
}
