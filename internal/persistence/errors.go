package persistence

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record breaks a check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrForeignKeyViolation is returned when a referenced record is missing.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrUnavailable marks transient storage failures such as a locked database.
	ErrUnavailable = errors.New("persistence: unavailable")
)

// OverlapError reports the reservation that blocked an atomic insert.
type OverlapError struct {
	ExistingID string
	LabID      string
	Start      time.Time
	End        time.Time
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("persistence: lab %s already reserved by %s from %s to %s",
		e.LabID, e.ExistingID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}
