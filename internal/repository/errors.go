package repository

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the repository. Match them with errors.Is.
var (
	ErrStore             = errors.New("store error")
	ErrTaskNotFound      = errors.New("task not found")
	ErrSerialization     = errors.New("serialization error")
	ErrInvalidIdentifier = errors.New("invalid task identifier")
	ErrInvalidRecord     = errors.New("invalid record")
)

// NotFoundError carries the url or id that matched no row.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrTaskNotFound, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrTaskNotFound
}

// StoreError wraps a failure of the underlying store: connectivity, constraint
// violations, malformed SQL.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStore, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// IsNotFound reports whether err means the requested task or progress does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

func notFound(key string) error {
	return &NotFoundError{Key: key}
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
