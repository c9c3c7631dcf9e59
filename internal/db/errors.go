package db

import "errors"

// ErrNotFound reports that an update or delete matched no rows.
var ErrNotFound = errors.New("not found")

// OpError annotates a storage error with the operation that failed.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }
