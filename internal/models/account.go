package models

import (
	"fmt"
	"time"
)

// Credential identifies an account created in the account store.
type Credential struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// Account is a locally stored login.
type Account struct {
	ID                string     `db:"id"`
	Email             string     `db:"email"`
	PasswordHash      string     `db:"password_hash"`
	Disabled          bool       `db:"disabled"`
	SessionsRevokedAt *time.Time `db:"sessions_revoked_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

// Account provider error codes.
const (
	AccountErrEmailInUse          = "email-already-in-use"
	AccountErrWeakPassword        = "weak-password"
	AccountErrInvalidEmail        = "invalid-email"
	AccountErrOperationNotAllowed = "operation-not-allowed"
	AccountErrNetwork             = "network-request-failed"
	AccountErrTooManyRequests     = "too-many-requests"
	AccountErrPermissionDenied    = "permission-denied"
	AccountErrUnavailable         = "unavailable"
	// AccountErrUnknown has no user message of its own.
	AccountErrUnknown = "unknown"
)

// AccountError is returned by account stores for provider-level failures.
type AccountError struct {
	Code string
	Err  error
}

func (e *AccountError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("account provider %s: %v", e.Code, e.Err)
	}
	return "account provider " + e.Code
}

func (e *AccountError) Unwrap() error {
	return e.Err
}
