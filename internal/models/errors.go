package models

import "errors"

// Custom errors
var (
	ErrInvalidRequest     = errors.New("invalid picklist request")
	ErrInvariantViolation = errors.New("picklist invariant violated")
	ErrNoRecords          = errors.New("no ranking records recovered")
	ErrNotFound           = errors.New("record not found")
)
