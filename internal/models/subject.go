package models

import (
	"fmt"
	"time"
)

// SubjectType tags a subject with its taught discipline.
type SubjectType string

const (
	SubjectTypeBiology    SubjectType = "BIOLOGY"
	SubjectTypeChemistry  SubjectType = "CHEMISTRY"
	SubjectTypePhysics    SubjectType = "PHYSICS"
	SubjectTypeMaths      SubjectType = "MATHS"
	SubjectTypeHistory    SubjectType = "HISTORY"
	SubjectTypeLiterature SubjectType = "LITERATURE"
	SubjectTypeEnglish    SubjectType = "ENGLISH"
	SubjectTypeGeography  SubjectType = "GEOGRAPHY"
)

// Valid reports whether the subject type is one of the known tags.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectTypeBiology, SubjectTypeChemistry, SubjectTypePhysics,
		SubjectTypeMaths, SubjectTypeHistory, SubjectTypeLiterature,
		SubjectTypeEnglish, SubjectTypeGeography:
		return true
	}
	return false
}

// Subject binds a discipline to a class year and its teaching teacher.
// Name is derived, never set by callers; it is recomputed whenever the
// owning class year's level or name changes.
type Subject struct {
	ID          int64       `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	SubjectType SubjectType `db:"subject_type" json:"subject_type"`
	TeacherID   *int64      `db:"teacher_id" json:"teacher_id,omitempty"`
	ClassYearID int64       `db:"class_year_id" json:"class_year_id"`
	Version     int64       `db:"version" json:"version"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// SubjectDisplayName derives the subject display name from its type and the
// owning class year, e.g. "BIOLOGY_1A".
func SubjectDisplayName(st SubjectType, classLevel int, className string) string {
	return fmt.Sprintf("%s_%d%s", st, classLevel, className)
}
