package storage

import "errors"

// Sentinel errors. The query engine recovers all of these at its boundary;
// they surface only through error wrapping in logs and tests. Lock
// conflicts are reported by refusal (a false return), missing keys by
// empty index results, and chain cycles by terminating the walk, so none
// of those carry a sentinel.
var (
	ErrDuplicateKey      = errors.New("duplicate primary key")
	ErrOutOfBounds       = errors.New("slot out of bounds")
	ErrCapacityExhausted = errors.New("capacity exhausted")
	ErrTableExists       = errors.New("table already exists")
	ErrTableNotFound     = errors.New("table not found")
)
