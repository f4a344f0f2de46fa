package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

const studentColumns = "id, first_name, last_name, age, class_year_id, version, created_at, updated_at"

// StudentRepository manages persistence for students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.Version = 1
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (first_name, last_name, age, class_year_id, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		student.FirstName, student.LastName, student.Age, student.ClassYearID,
		student.Version, student.CreatedAt, student.UpdatedAt,
	).Scan(&student.ID); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update rewrites student fields and bumps the version.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	student.Version++
	const query = `UPDATE students
        SET first_name = $1, last_name = $2, age = $3, class_year_id = $4, version = $5, updated_at = $6
        WHERE id = $7`
	if _, err := r.db.ExecContext(ctx, query,
		student.FirstName, student.LastName, student.Age, student.ClassYearID,
		student.Version, student.UpdatedAt, student.ID,
	); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student; its grades go with it at the store level.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// ListByGradeAtDay returns every student holding a grade of the given type
// dated on the given day.
func (r *StudentRepository) ListByGradeAtDay(ctx context.Context, gradeType models.GradeType, day time.Time) ([]models.Student, error) {
	const query = `SELECT DISTINCT s.id, s.first_name, s.last_name, s.age, s.class_year_id, s.version, s.created_at, s.updated_at
        FROM students s
        JOIN grades g ON g.student_id = s.id
        WHERE g.grade_type = $1 AND g.date_of_grade = $2
        ORDER BY s.id`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, gradeType, day); err != nil {
		return nil, fmt.Errorf("list students by grade at day: %w", err)
	}
	return students, nil
}
