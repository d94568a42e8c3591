package postgres

import "errors"

var (
	// ErrInvalidConfig indicates the connection configuration is missing
	// required fields.
	ErrInvalidConfig = errors.New("invalid postgres configuration")

	// ErrNotConfigured indicates a Pool was used before being constructed
	// with a configuration.
	ErrNotConfigured = errors.New("postgres pool not configured")

	// ErrAcquireTimeout indicates a pooled connection could not be acquired
	// within the configured acquire timeout.
	ErrAcquireTimeout = errors.New("timed out acquiring postgres connection")

	// ErrEmptyFilterGroup indicates a filter group with no conditions.
	ErrEmptyFilterGroup = errors.New("empty filter group")

	// ErrUnknownOperator indicates a filter condition used an operator
	// outside the supported set.
	ErrUnknownOperator = errors.New("unknown filter operator")

	// ErrEmptyValues indicates an insert or update with no column values.
	ErrEmptyValues = errors.New("no values provided")

	// ErrNoRecords indicates a bulk operation with an empty record list.
	ErrNoRecords = errors.New("no records provided")

	// ErrMismatchedColumns indicates bulk-insert records whose key sets
	// differ from each other.
	ErrMismatchedColumns = errors.New("records have mismatched columns")

	// ErrMissingFilters indicates a delete or update without any filters.
	ErrMissingFilters = errors.New("filters are required")
)
