package models

import "time"

// GradeType is the evaluation-event category, distinct from the numeric value.
type GradeType string

const (
	GradeTypeA GradeType = "A"
	GradeTypeB GradeType = "B"
	GradeTypeC GradeType = "C"
	GradeTypeD GradeType = "D"
	GradeTypeE GradeType = "E"
	GradeTypeF GradeType = "F"
)

// Valid reports whether the grade type is one of the known tags.
func (t GradeType) Valid() bool {
	switch t {
	case GradeTypeA, GradeTypeB, GradeTypeC, GradeTypeD, GradeTypeE, GradeTypeF:
		return true
	}
	return false
}

// Grade value and weight domains.
const (
	GradeValueMin = 1
	GradeValueMax = 6

	GradeWeightMin     = 1.0
	GradeWeightMax     = 9.0
	GradeWeightDefault = 1.0
)

// Grade is a single evaluation of a student in a subject. The teacher
// reference is always inherited from the subject's current teacher and is
// never settable by callers.
type Grade struct {
	ID          int64     `db:"id" json:"id"`
	Value       int       `db:"value" json:"value"`
	Weight      float64   `db:"weight" json:"weight"`
	GradeType   GradeType `db:"grade_type" json:"grade_type"`
	Comment     *string   `db:"comment" json:"comment,omitempty"`
	DateOfGrade time.Time `db:"date_of_grade" json:"date_of_grade"`
	TeacherID   *int64    `db:"teacher_id" json:"teacher_id,omitempty"`
	SubjectID   int64     `db:"subject_id" json:"subject_id"`
	StudentID   int64     `db:"student_id" json:"student_id"`
	Version     int64     `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GradeSearchCriteria is a sparse filter; nil fields impose no constraint.
// Range bounds are inclusive on both ends.
type GradeSearchCriteria struct {
	ValueFrom  *int       `json:"value_from,omitempty"`
	ValueTo    *int       `json:"value_to,omitempty"`
	WeightFrom *float64   `json:"weight_from,omitempty"`
	WeightTo   *float64   `json:"weight_to,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	GradeType  *GradeType `json:"grade_type,omitempty"`
	StudentID  *int64     `json:"student_id,omitempty"`
	SubjectID  *int64     `json:"subject_id,omitempty"`
}

// GradeContext scopes student lookups to a grade type at a date.
type GradeContext struct {
	GradeType   GradeType `json:"grade_type"`
	DateOfGrade time.Time `json:"date_of_grade"`
}
