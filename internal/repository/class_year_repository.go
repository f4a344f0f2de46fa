package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

const classYearColumns = "id, class_level, class_name, class_year, version, created_at, updated_at"

// ClassYearRepository manages persistence for class years.
type ClassYearRepository struct {
	db *sqlx.DB
}

// NewClassYearRepository constructs a ClassYearRepository.
func NewClassYearRepository(db *sqlx.DB) *ClassYearRepository {
	return &ClassYearRepository{db: db}
}

// FindByID fetches a class year by ID.
func (r *ClassYearRepository) FindByID(ctx context.Context, id int64) (*models.ClassYear, error) {
	query := fmt.Sprintf("SELECT %s FROM class_years WHERE id = $1", classYearColumns)
	var classYear models.ClassYear
	if err := r.db.GetContext(ctx, &classYear, query, id); err != nil {
		return nil, err
	}
	return &classYear, nil
}

// Create inserts a new class year.
func (r *ClassYearRepository) Create(ctx context.Context, classYear *models.ClassYear) error {
	now := time.Now().UTC()
	classYear.Version = 1
	classYear.CreatedAt = now
	classYear.UpdatedAt = now
	const query = `INSERT INTO class_years (class_level, class_name, class_year, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		classYear.ClassLevel, classYear.ClassName, classYear.ClassYear,
		classYear.Version, classYear.CreatedAt, classYear.UpdatedAt,
	).Scan(&classYear.ID); err != nil {
		return fmt.Errorf("create class year: %w", err)
	}
	return nil
}

// Update rewrites class year fields and bumps the version.
func (r *ClassYearRepository) Update(ctx context.Context, classYear *models.ClassYear) error {
	classYear.UpdatedAt = time.Now().UTC()
	classYear.Version++
	const query = `UPDATE class_years
        SET class_level = $1, class_name = $2, class_year = $3, version = $4, updated_at = $5
        WHERE id = $6`
	if _, err := r.db.ExecContext(ctx, query,
		classYear.ClassLevel, classYear.ClassName, classYear.ClassYear,
		classYear.Version, classYear.UpdatedAt, classYear.ID,
	); err != nil {
		return fmt.Errorf("update class year: %w", err)
	}
	return nil
}

// Delete removes a class year. Callers must first verify no student
// references it.
func (r *ClassYearRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM class_years WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete class year: %w", err)
	}
	return nil
}

// CountStudents returns the number of students belonging to the class year.
func (r *ClassYearRepository) CountStudents(ctx context.Context, id int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM students WHERE class_year_id = $1", id); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}
