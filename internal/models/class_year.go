package models

import "time"

// ClassYear groups students and subjects under a level, a name and an
// academic-year label, e.g. level 1, name "A", year "2025/2026".
type ClassYear struct {
	ID         int64     `db:"id" json:"id"`
	ClassLevel int       `db:"class_level" json:"class_level"`
	ClassName  string    `db:"class_name" json:"class_name"`
	ClassYear  string    `db:"class_year" json:"class_year"`
	Version    int64     `db:"version" json:"version"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
