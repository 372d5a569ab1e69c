package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrSecretNotFound  = errors.New("secret not found")
	ErrAccountHalted   = errors.New("account halted after permanent auth failure")
	ErrClaimRejected   = errors.New("claim rejected")
	ErrStaleWindow     = errors.New("claim window does not move forward")
	ErrUnauthorized    = errors.New("session rejected by remote api")
	ErrInvalidProxy    = errors.New("invalid proxy")
)

// PermanentAuthError means the account credential is structurally unusable
// (revoked, deactivated, unregistered). The account must not be retried.
type PermanentAuthError struct {
	AccountID AccountID
	Reason    string
	Err       error
}

func (e *PermanentAuthError) Error() string {
	msg := fmt.Sprintf("account %s: permanent auth failure", e.AccountID)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *PermanentAuthError) Unwrap() error {
	return e.Err
}

// TransientError aborts the current cycle only.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed claim-window write. The cycle outcome it
// accompanies still happened.
type PersistenceError struct {
	AccountID AccountID
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("account %s: persist claim window: %v", e.AccountID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsPermanentAuth(err error) bool {
	var target *PermanentAuthError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
