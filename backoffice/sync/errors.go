package sync

import (
	"errors"
	"fmt"
)

// Failure taxonomy for dual-write operations. Every error returned by the
// synchronizer wraps one of these sentinels so callers can map them with
// errors.Is.
var (
	ErrValidation            = errors.New("invalid field")
	ErrDuplicateIdentity     = errors.New("username is already registered in the directory")
	ErrWeakCredential        = errors.New("password was rejected by the directory policy")
	ErrIdentityProvider      = errors.New("identity directory request failed")
	ErrReferentialIntegrity  = errors.New("referenced record does not exist")
	ErrDuplicateField        = errors.New("value is already in use by another record")
	ErrStore                 = errors.New("store write failed")
	ErrMissingIdentifier     = errors.New("record identifier is required")
	ErrInvalidDate           = errors.New("invalid date")
	ErrRecordNotFound        = errors.New("record not found")
	ErrReferentialConstraint = errors.New("record is still referenced and cannot be removed")
	ErrClassFull             = errors.New("class is already at capacity")
)

func validationError(field string) error {
	return fmt.Errorf("%w: %v", ErrValidation, field)
}

func duplicateFieldError(field string) error {
	return fmt.Errorf("%w: %v", ErrDuplicateField, field)
}

func referentialError(relation string) error {
	return fmt.Errorf("%w: %v", ErrReferentialIntegrity, relation)
}
