package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kpawlowski/gradebook-api/internal/models"
)

const subjectColumns = "id, name, subject_type, teacher_id, class_year_id, version, created_at, updated_at"

// SubjectRepository manages persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID fetches a subject by ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE id = $1", subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	now := time.Now().UTC()
	subject.Version = 1
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (name, subject_type, teacher_id, class_year_id, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		subject.Name, subject.SubjectType, subject.TeacherID, subject.ClassYearID,
		subject.Version, subject.CreatedAt, subject.UpdatedAt,
	).Scan(&subject.ID); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update rewrites subject fields and bumps the version.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	subject.Version++
	const query = `UPDATE subjects
        SET name = $1, subject_type = $2, teacher_id = $3, class_year_id = $4, version = $5, updated_at = $6
        WHERE id = $7`
	if _, err := r.db.ExecContext(ctx, query,
		subject.Name, subject.SubjectType, subject.TeacherID, subject.ClassYearID,
		subject.Version, subject.UpdatedAt, subject.ID,
	); err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	return nil
}

// Delete removes a subject; its grades go with it at the store level.
func (r *SubjectRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM subjects WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// ListByTeacher returns all subjects currently taught by the teacher.
func (r *SubjectRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE teacher_id = $1 ORDER BY id", subjectColumns)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list subjects by teacher: %w", err)
	}
	return subjects, nil
}

// ListByClassYear returns all subjects owned by a class year.
func (r *SubjectRepository) ListByClassYear(ctx context.Context, classYearID int64) ([]models.Subject, error) {
	query := fmt.Sprintf("SELECT %s FROM subjects WHERE class_year_id = $1 ORDER BY id", subjectColumns)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, classYearID); err != nil {
		return nil, fmt.Errorf("list subjects by class year: %w", err)
	}
	return subjects, nil
}

// RenameByClassYear recomputes the derived display name of every subject the
// class year owns, after the class year's level or name changed.
func (r *SubjectRepository) RenameByClassYear(ctx context.Context, classYearID int64, classLevel int, className string) error {
	const query = `UPDATE subjects
        SET name = subject_type || '_' || $2::text || $3, version = version + 1, updated_at = $4
        WHERE class_year_id = $1`
	if _, err := r.db.ExecContext(ctx, query, classYearID, classLevel, className, time.Now().UTC()); err != nil {
		return fmt.Errorf("rename subjects by class year: %w", err)
	}
	return nil
}
