// Package errors defines the sentinel errors shared by the index controller
// and its collaborators, plus an AppError carrying a status code for callers
// that expose the controller over a transport.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIndexNotFound        = errors.New("index not found")
	ErrIndexAlreadyExists   = errors.New("index already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrImmutableName        = errors.New("index name cannot be changed")
	ErrPrimaryKeyAlreadySet = errors.New("primary key already set")
	ErrMissingPrimaryKey    = errors.New("primary key is missing")
	ErrUnavailable          = errors.New("dependency unavailable")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexAlreadyExists), errors.Is(err, ErrPrimaryKeyAlreadySet):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrImmutableName), errors.Is(err, ErrMissingPrimaryKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
