package library

import "errors"

var (
	// ErrUnknownSample means the path has not been opened in this bank.
	ErrUnknownSample = errors.New("sample not open in bank")

	// ErrNoBackingFile means a load was requested for a sample whose
	// backing reader is gone.
	ErrNoBackingFile = errors.New("no backing file registered")
)
