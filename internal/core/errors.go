package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Configuration errors. They indicate a deployment defect, not bad data,
// and are returned before any record is processed.
var (
	// ErrInvalidConfiguration indicates a malformed processor or
	// implementation name.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClassNotFound indicates no processor is registered under the
	// resolved class key.
	ErrClassNotFound = errors.New("processor class not found")

	// ErrInterfaceMismatch indicates the registered constructor does not
	// produce the requested processor contract.
	ErrInterfaceMismatch = errors.New("processor does not implement the expected interface")
)

// Run errors.
var (
	// ErrRecordFailed wraps the error of one record that could not be imported.
	ErrRecordFailed = errors.New("record failed")

	// ErrImportNotFound indicates an unknown or expired import id.
	ErrImportNotFound = errors.New("import not found")

	// ErrUnknownFormat indicates an input format other than csv or xml.
	ErrUnknownFormat = errors.New("unknown import format")
)

// ConfigError reports a configuration defect for one processor name.
type ConfigError struct {
	Name  string // short name, implementation name or class key
	Class string // resolved class key, if any
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("processor %q (%s): %v", e.Name, e.Class, e.Err)
	}
	return fmt.Sprintf("processor %q: %v", e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status for the error.
func (e *ConfigError) StatusCode() int { return http.StatusBadRequest }

// ReconcileError reports a failed reconciliation of one kind of sub-item.
// The changes of the failed reconciliation have been rolled back.
type ReconcileError struct {
	Kind string // e.g. "stock"
	Code string // code of the parent item
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("reconcile %s of %q: %v", e.Kind, e.Code, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is caused by invalid configuration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
