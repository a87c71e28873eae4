package service

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDelivery         = errors.New("delivery failed")
)

// ValidationError carries the usage hint shown back to the admin.
type ValidationError struct {
	Usage string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Usage
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func validation(usage string) error {
	return &ValidationError{Usage: usage}
}
