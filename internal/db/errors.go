package db

import "errors"

// Domain-level database error sentinels.
var (
	// History errors
	ErrHistoryNotFound = errors.New("history record not found")
	ErrDetailsNotFound = errors.New("no stored details for this identifier")

	// User errors
	ErrUserNotFound = errors.New("user not found")
)
