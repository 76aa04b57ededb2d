package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at component boundaries so handlers can map
// them to transport status codes without string matching.
type ErrorKind string

const (
	ErrKindNotFound          ErrorKind = "NOT_FOUND"
	ErrKindConflict          ErrorKind = "CONFLICT"
	ErrKindInvalidTransition ErrorKind = "INVALID_TRANSITION"
	ErrKindAuthDenied        ErrorKind = "AUTH_DENIED"
	ErrKindValidation        ErrorKind = "VALIDATION"
	ErrKindTimeout           ErrorKind = "TIMEOUT"
	ErrKindInternal          ErrorKind = "INTERNAL"
)

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

func (e *AppError) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the error's kind, defaulting to INTERNAL for untyped errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrKindInternal
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
