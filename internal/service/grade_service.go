package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kpawlowski/gradebook-api/internal/models"
	"github.com/kpawlowski/gradebook-api/internal/repository"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
)

type gradeRepo interface {
	FindByID(ctx context.Context, id int64) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id int64) error
	ExistsByTypeAndDate(ctx context.Context, gradeType models.GradeType, date time.Time) (bool, error)
	ListByStudentAndSubject(ctx context.Context, studentID, subjectID int64) ([]models.Grade, error)
	Search(ctx context.Context, criteria models.GradeSearchCriteria) ([]models.Grade, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
}

// averageCache abstracts the optional weighted-average result cache.
type averageCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

// CreateGradeRequest carries a candidate grade. The teacher is never part of
// the payload; it is inherited from the subject.
type CreateGradeRequest struct {
	Value       int              `json:"value" validate:"required"`
	Weight      *float64         `json:"weight"`
	GradeType   models.GradeType `json:"grade_type" validate:"required"`
	Comment     *string          `json:"comment"`
	DateOfGrade string           `json:"date_of_grade" validate:"required,datetime=2006-01-02"`
	StudentID   int64            `json:"student_id" validate:"required"`
	SubjectID   int64            `json:"subject_id" validate:"required"`
}

// GradeService orchestrates grade creation, search, patching and averages.
type GradeService struct {
	grades    gradeRepo
	students  studentReader
	subjects  subjectReader
	cache     averageCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs a GradeService. cache may be nil when average
// caching is disabled.
func NewGradeService(grades gradeRepo, students studentReader, subjects subjectReader, cache averageCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &GradeService{
		grades:    grades,
		students:  students,
		subjects:  subjects,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: validate,
		logger:    logger,
	}
}

// Get returns a grade by id.
func (s *GradeService) Get(ctx context.Context, id int64) (*models.Grade, error) {
	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("grade with id %d could not be found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// Create validates a candidate grade and persists it. Rules run in order and
// short-circuit: student exists, subject exists, no grade of the same type on
// the same day anywhere in the system, extremes require a comment, value and
// weight inside their domains.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !req.GradeType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grade type %q", req.GradeType))
	}
	date, err := time.Parse("2006-01-02", req.DateOfGrade)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_grade must be YYYY-MM-DD")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student with id %d could not be found", req.StudentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject with id %d could not be found", req.SubjectID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	exists, err := s.grades.ExistsByTypeAndDate(ctx, req.GradeType, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing grades")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateGrade, fmt.Sprintf("grade of type %s has already been recorded on %s", req.GradeType, req.DateOfGrade))
	}

	if err := checkCommentAtExtremes(req.Value, req.Comment); err != nil {
		return nil, err
	}
	weight := models.GradeWeightDefault
	if req.Weight != nil {
		weight = *req.Weight
	}
	if err := checkGradeDomains(req.Value, weight); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		Value:       req.Value,
		Weight:      weight,
		GradeType:   req.GradeType,
		Comment:     req.Comment,
		DateOfGrade: date,
		TeacherID:   subject.TeacherID,
		SubjectID:   subject.ID,
		StudentID:   student.ID,
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		if errors.Is(err, repository.ErrDuplicateGradeDay) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateGrade, fmt.Sprintf("grade of type %s has already been recorded on %s", req.GradeType, req.DateOfGrade))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}
	s.invalidateAverage(ctx, grade.StudentID, grade.SubjectID)
	return grade, nil
}

// Search returns grades matching every present criteria field. When both
// bounds of a range are present the upper bound must not precede the lower
// one; violations fail before the store is touched.
func (s *GradeService) Search(ctx context.Context, criteria models.GradeSearchCriteria) ([]models.Grade, error) {
	if criteria.DateFrom != nil && criteria.DateTo != nil && criteria.DateTo.Before(*criteria.DateFrom) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "grade creation date 'to' cannot be before 'from'")
	}
	if criteria.ValueFrom != nil && criteria.ValueTo != nil && *criteria.ValueTo < *criteria.ValueFrom {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "grade value 'to' cannot be lower than 'from'")
	}
	if criteria.WeightFrom != nil && criteria.WeightTo != nil && *criteria.WeightTo < *criteria.WeightFrom {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "grade weight 'to' cannot be lower than 'from'")
	}

	grades, err := s.grades.Search(ctx, criteria)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search grades")
	}
	return grades, nil
}

// WeightedAverage computes sum(value*weight)/sum(weight) over all grades of a
// student in a subject, rounded half away from zero to two decimals.
func (s *GradeService) WeightedAverage(ctx context.Context, studentID, subjectID int64) (float64, error) {
	key := averageKey(studentID, subjectID)
	if s.cache != nil {
		var cached float64
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	grades, err := s.grades.ListByStudentAndSubject(ctx, studentID, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	if len(grades) == 0 {
		return 0, appErrors.Clone(appErrors.ErrNoGrades, fmt.Sprintf("no grades recorded for student %d in subject %d", studentID, subjectID))
	}

	var sum, weights float64
	for _, grade := range grades {
		sum += float64(grade.Value) * grade.Weight
		weights += grade.Weight
	}
	average := roundTwoDecimals(sum / weights)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, average, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache weighted average", zap.String("key", key), zap.Error(err))
		}
	}
	return average, nil
}

// PartialUpdate applies a sparse field map onto an existing grade. Unknown
// fields are rejected. After merging, the referenced student and subject are
// re-resolved and the teacher is re-inherited from the subject.
func (s *GradeService) PartialUpdate(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.Grade, error) {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireKnownFields(fields, "value", "weight", "grade_type", "comment", "date_of_grade", "student_id", "subject_id"); err != nil {
		return nil, err
	}
	previousStudent, previousSubject := grade.StudentID, grade.SubjectID

	if val, ok, err := readInt(fields, "value"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "value must be an integer")
	} else if ok {
		grade.Value = val
	}
	if val, ok, err := readFloat(fields, "weight"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weight must be a number")
	} else if ok {
		grade.Weight = val
	}
	if str, ok, err := readString(fields, "grade_type"); err != nil || (ok && str == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade_type must be a string")
	} else if ok {
		gradeType := models.GradeType(*str)
		if !gradeType.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown grade type %q", *str))
		}
		grade.GradeType = gradeType
	}
	if str, ok, err := readString(fields, "comment"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment must be a string")
	} else if ok {
		grade.Comment = str
	}
	if date, ok, err := readDate(fields, "date_of_grade"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_grade must be YYYY-MM-DD")
	} else if ok {
		grade.DateOfGrade = date
	}
	if ref, ok, err := readID(fields, "student_id"); err != nil || (ok && ref == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id must be a number")
	} else if ok {
		grade.StudentID = *ref
	}
	if ref, ok, err := readID(fields, "subject_id"); err != nil || (ok && ref == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject_id must be a number")
	} else if ok {
		grade.SubjectID = *ref
	}

	// The merged record is held to the same domain rules as a fresh one.
	if err := checkCommentAtExtremes(grade.Value, grade.Comment); err != nil {
		return nil, err
	}
	if err := checkGradeDomains(grade.Value, grade.Weight); err != nil {
		return nil, err
	}

	// A patch must never persist a dangling reference: both sides are
	// re-resolved even when untouched, and the teacher always follows the
	// subject's current teacher.
	if _, err := s.students.FindByID(ctx, grade.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDanglingReference, fmt.Sprintf("student with id %d could not be found", grade.StudentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	subject, err := s.subjects.FindByID(ctx, grade.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrDanglingReference, fmt.Sprintf("subject with id %d could not be found", grade.SubjectID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	grade.TeacherID = subject.TeacherID

	if err := s.grades.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	s.invalidateAverage(ctx, previousStudent, previousSubject)
	if previousStudent != grade.StudentID || previousSubject != grade.SubjectID {
		s.invalidateAverage(ctx, grade.StudentID, grade.SubjectID)
	}
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id int64) error {
	grade, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.grades.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	s.invalidateAverage(ctx, grade.StudentID, grade.SubjectID)
	return nil
}

func (s *GradeService) invalidateAverage(ctx context.Context, studentID, subjectID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, averageKey(studentID, subjectID)); err != nil {
		s.logger.Warn("failed to invalidate average cache", zap.Int64("student_id", studentID), zap.Int64("subject_id", subjectID), zap.Error(err))
	}
}

func averageKey(studentID, subjectID int64) string {
	return fmt.Sprintf("avg:%d:%d", studentID, subjectID)
}

func checkCommentAtExtremes(value int, comment *string) error {
	if value != models.GradeValueMin && value != models.GradeValueMax {
		return nil
	}
	if comment == nil || *comment == "" {
		return appErrors.Clone(appErrors.ErrCommentRequired, fmt.Sprintf("comment cannot be empty for grade value %d", value))
	}
	return nil
}

func checkGradeDomains(value int, weight float64) error {
	if value < models.GradeValueMin || value > models.GradeValueMax {
		return appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("grade value must be between %d and %d", models.GradeValueMin, models.GradeValueMax))
	}
	if weight < models.GradeWeightMin || weight > models.GradeWeightMax {
		return appErrors.Clone(appErrors.ErrOutOfRange, fmt.Sprintf("grade weight must be between %.0f and %.0f", models.GradeWeightMin, models.GradeWeightMax))
	}
	return nil
}

func roundTwoDecimals(v float64) float64 {
	return math.Round(v*100) / 100
}
