package core

import "github.com/pkg/errors"

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

// ConfigurationError means the operator has not set things up for the requested operation to proceed,
// ie: there are no active exam rooms left with free seats.
type ConfigurationError struct {
	msg string
}

func NewConfigurationError(msg string) error {
	return &ConfigurationError{msg: msg}
}

func (err ConfigurationError) Error() string {
	return err.msg
}

func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigurationError)
	return ok
}

// PersistenceError is returned when the storage layer fails in the middle of an operation.
// errors.Cause stops at a PersistenceError; use Unwrap to reach the storage error.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError returns nil if err is nil.
func NewPersistenceError(err error, op string) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (err PersistenceError) Error() string {
	return err.Op + ": " + err.Err.Error()
}

func (err PersistenceError) Unwrap() error {
	return err.Err
}

func IsPersistenceError(err error) bool {
	_, ok := errors.Cause(err).(*PersistenceError)
	return ok
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
