package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyDocument indicates extraction produced no usable text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrDimensionMismatch indicates a vector does not match the index dimensionality.
	// It signals a configuration error and should not occur in a correct setup.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNotIndexed indicates a query was issued before anything was ingested.
	ErrNotIndexed = errors.New("no documents indexed")

	// ErrGeneration is matched by every GenerationError.
	ErrGeneration = errors.New("generation failed")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDocument indicates identical content is already registered.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")
)

// GenerationError wraps a failed completion call with its underlying cause.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	return fmt.Sprintf("generation failed (%s): %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is reports ErrGeneration as a match so callers can test the category.
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
