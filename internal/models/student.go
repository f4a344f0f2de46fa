package models

import "time"

// Student belongs to exactly one class year. Deleting a student deletes its
// grades at the store level.
type Student struct {
	ID          int64     `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Age         int       `db:"age" json:"age"`
	ClassYearID int64     `db:"class_year_id" json:"class_year_id"`
	Version     int64     `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
