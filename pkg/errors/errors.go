package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. Every business-rule violation carries its own code so
// the request layer can branch without parsing messages.
var (
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrOutOfRange        = New("OUT_OF_RANGE", http.StatusBadRequest, "value out of allowed range")
	ErrCommentRequired   = New("COMMENT_REQUIRED", http.StatusBadRequest, "comment required for this grade value")
	ErrDuplicateGrade    = New("DUPLICATE_GRADE", http.StatusConflict, "grade of this type already recorded for this day")
	ErrInvalidRange      = New("INVALID_RANGE", http.StatusBadRequest, "range upper bound below lower bound")
	ErrStillInUse        = New("STILL_IN_USE", http.StatusConflict, "resource still referenced by dependent records")
	ErrDanglingReference = New("DANGLING_REFERENCE", http.StatusUnprocessableEntity, "referenced entity not found")
	ErrNoGrades          = New("NO_GRADES", http.StatusNotFound, "no grades recorded for this student and subject")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss         = New("CACHE_MISS", http.StatusNotFound, "cache entry not found")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
