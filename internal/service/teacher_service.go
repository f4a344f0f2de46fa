package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id int64) error
	DeleteAndReassign(ctx context.Context, id, replacementID int64) error
}

type teacherSubjects interface {
	ListByTeacher(ctx context.Context, teacherID int64) ([]models.Subject, error)
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
}

// TeacherService orchestrates teacher operations, including the guarded
// delete that hands owned subjects and grades over to a replacement.
type TeacherService struct {
	repo      teacherRepository
	subjects  teacherSubjects
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, subjects teacherSubjects, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, subjects: subjects, validator: validate, logger: logger}
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return teachers, pagination, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id int64) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher with id %d could not be found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher record.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher := &models.Teacher{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// PartialUpdate applies a sparse field map onto an existing teacher.
func (s *TeacherService) PartialUpdate(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.Teacher, error) {
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireKnownFields(fields, "first_name", "last_name"); err != nil {
		return nil, err
	}
	if str, ok, err := readString(fields, "first_name"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "first_name must be a string")
	} else if ok {
		teacher.FirstName = *str
	}
	if str, ok, err := readString(fields, "last_name"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "last_name must be a string")
	} else if ok {
		teacher.LastName = *str
	}
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// GetSubjectNames returns the display names of every subject the teacher
// currently teaches.
func (s *TeacherService) GetSubjectNames(ctx context.Context, id int64) ([]string, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	subjects, err := s.subjects.ListByTeacher(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	names := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		names = append(names, subject.Name)
	}
	return names, nil
}

// Delete removes a teacher. A teacher who still owns subjects can only be
// deleted with a replacement: the owned subjects and grades are handed over
// to the replacement in the same transaction that removes the teacher. A
// teacher owning nothing is deleted outright, replacement or not.
func (s *TeacherService) Delete(ctx context.Context, id int64, replacementID *int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	owned, err := s.subjects.ListByTeacher(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	if len(owned) == 0 {
		if err := s.repo.Delete(ctx, id); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
		}
		return nil
	}
	if replacementID == nil {
		return appErrors.Clone(appErrors.ErrStillInUse, fmt.Sprintf("teacher with id %d still teaches %d subject(s); provide a replacement teacher", id, len(owned)))
	}
	if *replacementID == id {
		return appErrors.Clone(appErrors.ErrValidation, "replacement teacher cannot be the teacher being deleted")
	}
	if _, err := s.repo.FindByID(ctx, *replacementID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("replacement teacher with id %d could not be found", *replacementID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load replacement teacher")
	}
	if err := s.repo.DeleteAndReassign(ctx, id, *replacementID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher and reassign subjects")
	}
	s.logger.Info("teacher deleted with reassignment",
		zap.Int64("teacher_id", id),
		zap.Int64("replacement_id", *replacementID),
		zap.Int("subjects", len(owned)))
	return nil
}
