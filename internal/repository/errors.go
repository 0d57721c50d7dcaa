package repository

import "errors"

// Sentinel errors shared by the store implementations.
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSessionNotFound  = errors.New("registration session not found")
	ErrAccountNotFound  = errors.New("account not found")
)
