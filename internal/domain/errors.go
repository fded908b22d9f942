package domain

import "errors"

// Storage errors returned by Manager implementations.
var (
	// ErrNotFound indicates a requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed item or filter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoTransaction indicates Commit or Rollback without a matching Begin.
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrTransactionActive indicates Begin was called twice on one manager.
	ErrTransactionActive = errors.New("transaction already in progress")

	// ErrUnknownResource indicates no manager exists for a resource path.
	ErrUnknownResource = errors.New("unknown resource")
)
