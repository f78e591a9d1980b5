package models

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable machine-readable error category returned in API
// error bodies.
type ErrorKind string

const (
	ErrKindValidation   ErrorKind = "validation_error"
	ErrKindEmbedding    ErrorKind = "embedding_error"
	ErrKindVectorSearch ErrorKind = "vector_search_error"
	ErrKindGeneration   ErrorKind = "generation_failed"
	ErrKindNotFound     ErrorKind = "not_found"
)

// AppError carries an error kind alongside the message so handlers can map
// failures to status codes without string matching.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError creates an AppError with the given kind
func NewError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

// WrapError creates an AppError wrapping an underlying cause
func WrapError(kind ErrorKind, msg string, err error) *AppError {
	return &AppError{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the error kind from err, defaulting to generation_failed
// for unclassified failures.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrKindGeneration
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
