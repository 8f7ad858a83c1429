package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ErrorKind classifies failures surfaced to API callers.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindBadRequest
	KindTimeout
)

var kindNames = [...]string{
	KindInternal:   "internal",
	KindNotFound:   "not_found",
	KindForbidden:  "forbidden",
	KindConflict:   "conflict",
	KindBadRequest: "bad_request",
	KindTimeout:    "timeout",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// AppError is a classified error. Message is safe to show to callers; Err is not.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is/As.
// It has no Cause method, so errors.Cause stops at the AppError.
func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(kind ErrorKind, msg string, errs []error) error {
	var err error
	if len(errs) > 0 {
		err = errs[0]
	}
	return &AppError{Kind: kind, Message: msg, Err: err}
}

func NewNotFoundError(msg string, err ...error) error {
	return newAppError(KindNotFound, msg, err)
}

func NewForbiddenError(msg string, err ...error) error {
	return newAppError(KindForbidden, msg, err)
}

func NewConflictError(msg string, err ...error) error {
	return newAppError(KindConflict, msg, err)
}

func NewBadRequestError(msg string, err ...error) error {
	return newAppError(KindBadRequest, msg, err)
}

func NewTimeoutError(msg string, err ...error) error {
	return newAppError(KindTimeout, msg, err)
}

func NewInternalError(msg string, err ...error) error {
	return newAppError(KindInternal, msg, err)
}

// KindOf returns the kind of the first AppError in err's chain, KindInternal if there is none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
