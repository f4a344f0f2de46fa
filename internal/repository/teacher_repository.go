package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

const teacherColumns = "id, first_name, last_name, version, created_at, updated_at"

// TeacherRepository manages persistence for teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching the filter along with the total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LastName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(last_name) = LOWER($%d)", len(args)+1))
		args = append(args, filter.LastName)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY id LIMIT %d OFFSET %d", teacherColumns, base, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create inserts a new teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	now := time.Now().UTC()
	teacher.Version = 1
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (first_name, last_name, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		teacher.FirstName, teacher.LastName, teacher.Version, teacher.CreatedAt, teacher.UpdatedAt,
	).Scan(&teacher.ID); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update rewrites teacher fields and bumps the version.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	teacher.Version++
	const query = `UPDATE teachers SET first_name = $1, last_name = $2, version = $3, updated_at = $4 WHERE id = $5`
	if _, err := r.db.ExecContext(ctx, query,
		teacher.FirstName, teacher.LastName, teacher.Version, teacher.UpdatedAt, teacher.ID,
	); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}

// Delete removes a teacher that owns no subjects or grades.
func (r *TeacherRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}

// DeleteAndReassign removes a teacher and hands every subject and grade the
// deletion orphaned over to the replacement, in a single transaction. The
// foreign keys from subjects and grades are ON DELETE SET NULL, so between
// the delete and the two sweeps the orphaned rows transiently reference no
// teacher; the transaction keeps that state invisible to other readers.
func (r *TeacherRepository) DeleteAndReassign(ctx context.Context, id, replacementID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reassign: %w", err)
	}
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, "DELETE FROM teachers WHERE id = $1", id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete teacher: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE subjects SET teacher_id = $1, version = version + 1, updated_at = $2 WHERE teacher_id IS NULL",
		replacementID, now,
	); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("reassign subjects: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE grades SET teacher_id = $1, version = version + 1, updated_at = $2 WHERE teacher_id IS NULL",
		replacementID, now,
	); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("reassign grades: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reassign: %w", err)
	}
	return nil
}
