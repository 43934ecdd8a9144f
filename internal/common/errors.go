// Package common holds the error values, retry loop, and logging setup
// shared by every hours package.
package common

import "errors"

// Storage.
var (
	ErrNotFound          = errors.New("not found")
	ErrDocumentCorrupted = errors.New("document corrupted")
)

// External collaborators. Wrap the underlying cause with %w alongside these.
var (
	ErrCalendarUnavailable = errors.New("calendar source unavailable")
	ErrTaskCatalogFailed   = errors.New("task catalog request failed")
	ErrTimeEntryRejected   = errors.New("time entry rejected")
	ErrMalformedAnswer     = errors.New("malformed model response")
)

// Configuration.
var (
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)
