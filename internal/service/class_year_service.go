package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type classYearRepository interface {
	FindByID(ctx context.Context, id int64) (*models.ClassYear, error)
	Create(ctx context.Context, classYear *models.ClassYear) error
	Update(ctx context.Context, classYear *models.ClassYear) error
	Delete(ctx context.Context, id int64) error
	CountStudents(ctx context.Context, id int64) (int, error)
}

type subjectRenamer interface {
	RenameByClassYear(ctx context.Context, classYearID int64, classLevel int, className string) error
}

// CreateClassYearRequest represents payload for creating class years.
type CreateClassYearRequest struct {
	ClassLevel int    `json:"class_level" validate:"required,min=1,max=8"`
	ClassName  string `json:"class_name" validate:"required,len=1,alpha"`
	ClassYear  string `json:"class_year" validate:"required,max=20"`
}

// ClassYearService orchestrates class year operations. Subject display names
// embed the class year's level and name, so renames ripple into subjects.
type ClassYearService struct {
	repo      classYearRepository
	subjects  subjectRenamer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassYearService constructs a ClassYearService.
func NewClassYearService(repo classYearRepository, subjects subjectRenamer, validate *validator.Validate, logger *zap.Logger) *ClassYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassYearService{repo: repo, subjects: subjects, validator: validate, logger: logger}
}

// Get returns a class year by id.
func (s *ClassYearService) Get(ctx context.Context, id int64) (*models.ClassYear, error) {
	classYear, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class year with id %d could not be found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class year")
	}
	return classYear, nil
}

// Create registers a new class year.
func (s *ClassYearService) Create(ctx context.Context, req CreateClassYearRequest) (*models.ClassYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class year payload")
	}
	classYear := &models.ClassYear{
		ClassLevel: req.ClassLevel,
		ClassName:  req.ClassName,
		ClassYear:  req.ClassYear,
	}
	if err := s.repo.Create(ctx, classYear); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class year")
	}
	return classYear, nil
}

// PartialUpdate applies a sparse field map onto an existing class year. When
// the level or name changes, the display names of owned subjects are
// recomputed.
func (s *ClassYearService) PartialUpdate(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.ClassYear, error) {
	classYear, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireKnownFields(fields, "class_level", "class_name", "class_year"); err != nil {
		return nil, err
	}
	previousLevel, previousName := classYear.ClassLevel, classYear.ClassName

	if val, ok, err := readInt(fields, "class_level"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_level must be an integer")
	} else if ok {
		classYear.ClassLevel = val
	}
	if str, ok, err := readString(fields, "class_name"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_name must be a string")
	} else if ok {
		classYear.ClassName = *str
	}
	if str, ok, err := readString(fields, "class_year"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_year must be a string")
	} else if ok {
		classYear.ClassYear = *str
	}

	if err := s.repo.Update(ctx, classYear); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class year")
	}
	if classYear.ClassLevel != previousLevel || classYear.ClassName != previousName {
		if err := s.subjects.RenameByClassYear(ctx, classYear.ID, classYear.ClassLevel, classYear.ClassName); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rename subjects")
		}
	}
	return classYear, nil
}

// Delete removes a class year. A class year with enrolled students cannot be
// deleted.
func (s *ClassYearService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountStudents(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrStillInUse, fmt.Sprintf("class year with id %d still has %d student(s)", id, count))
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class year")
	}
	return nil
}
