package service

import (
	"errors"

	"github.com/juanibiapina/testrun/internal/runstore"
)

// Kind classifies a service failure for callers
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindNotFound      Kind = "not_found"
	KindInvalidPath   Kind = "invalid_path"
	KindExecutorCrash Kind = "executor_crash"
	KindInternal      Kind = "internal"
	KindUnauthorized  Kind = "unauthorized"
)

// Error is the structured error returned by every Service operation
type Error struct {
	Kind    Kind
	Message string

	// Set for conflicts
	ActiveRunID  string
	ActiveStatus runstore.Status

	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from the service
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindInternal
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
