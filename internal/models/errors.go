package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoCoverage       = errors.New("no garages nearby")
	ErrAlreadyResolved  = errors.New("this booking was just taken")
	ErrDuplicateTicket  = errors.New("an open support ticket already exists")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateTicketError carries the ticket the caller should resume.
type DuplicateTicketError struct {
	ExistingID string
}

func (e *DuplicateTicketError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateTicket.Error(), e.ExistingID)
}

func (e *DuplicateTicketError) Is(target error) bool { return target == ErrDuplicateTicket }
