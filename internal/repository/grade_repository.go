package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

// ErrDuplicateGradeDay is returned when the store-level uniqueness constraint
// on (grade_type, date_of_grade) rejects an insert. Two concurrent creations
// can both pass the service-side existence check; the constraint is the
// backstop that serialises them.
var ErrDuplicateGradeDay = errors.New("grade of this type already recorded for this day")

const gradeColumns = "id, value, weight, grade_type, comment, date_of_grade, teacher_id, subject_id, student_id, version, created_at, updated_at"

// GradeRepository handles grade persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindByID fetches a grade by ID.
func (r *GradeRepository) FindByID(ctx context.Context, id int64) (*models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE id = $1", gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create inserts a new grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	grade.Version = 1
	grade.CreatedAt = now
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (value, weight, grade_type, comment, date_of_grade, teacher_id, subject_id, student_id, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		grade.Value, grade.Weight, grade.GradeType, grade.Comment, grade.DateOfGrade,
		grade.TeacherID, grade.SubjectID, grade.StudentID,
		grade.Version, grade.CreatedAt, grade.UpdatedAt,
	).Scan(&grade.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateGradeDay
		}
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update rewrites all settable grade fields and bumps the version.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	grade.Version++
	const query = `UPDATE grades
        SET value = $1, weight = $2, grade_type = $3, comment = $4, date_of_grade = $5,
            teacher_id = $6, subject_id = $7, student_id = $8, version = $9, updated_at = $10
        WHERE id = $11`
	if _, err := r.db.ExecContext(ctx, query,
		grade.Value, grade.Weight, grade.GradeType, grade.Comment, grade.DateOfGrade,
		grade.TeacherID, grade.SubjectID, grade.StudentID,
		grade.Version, grade.UpdatedAt, grade.ID,
	); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM grades WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return nil
}

// ExistsByTypeAndDate reports whether any grade of the given type is dated on
// the given day, regardless of student or subject.
func (r *GradeRepository) ExistsByTypeAndDate(ctx context.Context, gradeType models.GradeType, date time.Time) (bool, error) {
	const query = `SELECT 1 FROM grades WHERE grade_type = $1 AND date_of_grade = $2 LIMIT 1`
	var one int
	err := r.db.GetContext(ctx, &one, query, gradeType, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check grade by type and date: %w", err)
	}
	return true, nil
}

// ListByStudentAndSubject returns all grades for a (student, subject) pair.
func (r *GradeRepository) ListByStudentAndSubject(ctx context.Context, studentID, subjectID int64) ([]models.Grade, error) {
	query := fmt.Sprintf("SELECT %s FROM grades WHERE student_id = $1 AND subject_id = $2 ORDER BY id", gradeColumns)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("list grades by student and subject: %w", err)
	}
	return grades, nil
}

// Search returns grades matching every present criteria field. Absent fields
// impose no constraint; range bounds are inclusive.
func (r *GradeRepository) Search(ctx context.Context, criteria models.GradeSearchCriteria) ([]models.Grade, error) {
	base := fmt.Sprintf("SELECT %s FROM grades WHERE 1=1", gradeColumns)
	var conditions []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(clause, len(args)+1))
		args = append(args, value)
	}

	if criteria.ValueFrom != nil {
		add("value >= $%d", *criteria.ValueFrom)
	}
	if criteria.ValueTo != nil {
		add("value <= $%d", *criteria.ValueTo)
	}
	if criteria.WeightFrom != nil {
		add("weight >= $%d", *criteria.WeightFrom)
	}
	if criteria.WeightTo != nil {
		add("weight <= $%d", *criteria.WeightTo)
	}
	if criteria.DateFrom != nil {
		add("date_of_grade >= $%d", *criteria.DateFrom)
	}
	if criteria.DateTo != nil {
		add("date_of_grade <= $%d", *criteria.DateTo)
	}
	if criteria.GradeType != nil {
		add("grade_type = $%d", *criteria.GradeType)
	}
	if criteria.StudentID != nil {
		add("student_id = $%d", *criteria.StudentID)
	}
	if criteria.SubjectID != nil {
		add("subject_id = $%d", *criteria.SubjectID)
	}

	query := base
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("search grades: %w", err)
	}
	return grades, nil
}
