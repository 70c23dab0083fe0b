package db

import "errors"

var (
	// ErrNotFound is returned when a document or directory does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a create would overwrite an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrLockTimeout is returned when a document lock could not be acquired within the
	// configured number of retries.
	ErrLockTimeout = errors.New("timed out waiting for document lock")
)
