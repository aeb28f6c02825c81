package mealgraph

import "errors"

var (
	// ErrNotFound is a sentinel error returned by Find operations when no record
	// matching the criteria is found in the database.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable marks a failure to reach the backing store or to run a
	// query against it. It is retryable and must never be turned into an empty result.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrMergeInvariantViolation is returned when a node scheduled for deletion
	// during a merge still has relationships attached.
	ErrMergeInvariantViolation = errors.New("merge invariant violation")

	// ErrUnknownKind is returned when a node type name does not match any known kind.
	ErrUnknownKind = errors.New("unknown node kind")

	// ErrInvalidRelation is returned when a relationship type is used between labels
	// it is not defined for.
	ErrInvalidRelation = errors.New("invalid relationship")
)
