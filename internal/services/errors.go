package services

import "errors"

// Sentinel errors the transport layer maps to HTTP status codes.
var (
	// ErrStudyNotFound means no operation with the given id exists.
	ErrStudyNotFound = errors.New("study not found")

	// ErrStudyNotComplete means the operation exists but has not finished yet.
	ErrStudyNotComplete = errors.New("study not complete")

	// ErrStudyNoResult means the operation finished without producing a
	// result, typically because it failed or was cancelled.
	ErrStudyNoResult = errors.New("study produced no result")

	// ErrInvalidCategory means the requested factor category is not a valid
	// storage identifier.
	ErrInvalidCategory = errors.New("invalid factor category")
)
