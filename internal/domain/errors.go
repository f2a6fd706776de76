package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a caller bug such as empty text; never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch marks a vector whose length disagrees with the
	// configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrStoreUnavailable marks an unreachable storage backend. Callers may
	// retry with bounded backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned only by lookups that require existence.
	ErrNotFound = errors.New("not found")
)

// DimensionMismatchError reports model/config drift.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// CheckDimension returns a *DimensionMismatchError unless len(v) == expected.
func CheckDimension(expected int, v []float32) error {
	if len(v) != expected {
		return &DimensionMismatchError{Expected: expected, Got: len(v)}
	}
	return nil
}

// Unavailable wraps a storage failure so that errors.Is reports both
// ErrStoreUnavailable and the cause.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
