package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Adapters map these to user-visible outcomes; wrap them
// with fmt.Errorf("...: %w") to keep errors.Is working.
var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrExtraction indicates a document or page yielded no usable text.
	ErrExtraction = errors.New("extraction failed")

	// ErrProvider indicates an embedding or generation call failed.
	ErrProvider = errors.New("provider failed")

	// ErrEmbedding is the provider failure raised by embedding calls,
	// including partial or mismatched batch results.
	ErrEmbedding = fmt.Errorf("embedding: %w", ErrProvider)

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity with the same identity exists.
	ErrAlreadyExists = errors.New("already exists")
)

// Entity names used in NotFoundError.
const (
	EntitySource     = "source"
	EntityCollection = "collection"
	EntityFile       = "file"
)

// NotFoundError names the missing entity. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// IsNotFoundEntity reports whether err is a NotFoundError for entity.
func IsNotFoundEntity(err error, entity string) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Entity == entity
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AlreadyExistsf returns an error wrapping ErrAlreadyExists.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, fmt.Sprintf(format, args...))
}
