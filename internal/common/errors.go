package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ms-reviews/internal/models"
)

var (
	// Not found
	ErrSlotNotFound       = errors.New("slot not found")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrSubmissionNotFound = errors.New("submission not found")

	// State conflicts
	ErrSlotNotAvailable    = errors.New("slot is not available")
	ErrAlreadyComplete     = errors.New("slot submission is already complete")
	ErrNotSubmittable      = errors.New("slot is not reserved")
	ErrNotEditable         = errors.New("slot has no completed submission")
	ErrReservationLost     = errors.New("reservation changed before it could be released")
	ErrCampaignNotApproved = errors.New("campaign is not approved")
	ErrNotApprovable       = errors.New("campaign cannot be approved from its current status")
	ErrOutsideWindow       = errors.New("campaign is not in its active window")

	// Limits
	ErrCampaignLimitExceeded = errors.New("campaign claim limit exceeded")
	ErrDailyLimitExceeded    = errors.New("daily claim limit exceeded")

	// Caller
	ErrNotHolder         = errors.New("user is not the reservation holder")
	ErrProfileIncomplete = errors.New("user profile is incomplete")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrTransient         = errors.New("storage temporarily unavailable")
	ErrClaimInProgress   = errors.New("another claim by this user is in progress")
)

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindStateConflict
	KindLimitExceeded
	KindValidation
	KindNotAuthorized
	KindPrecondition
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindValidation:
		return "validation_failed"
	case KindNotAuthorized:
		return "not_authorized"
	case KindPrecondition:
		return "precondition_failed"
	case KindTransient:
		return "transient"
	}
	return "internal"
}

// StateConflictError carries the status the slot actually had when the write was
// attempted, so the caller can refresh.
type StateConflictError struct {
	SlotID int64
	Actual models.SlotStatus
	Err    error
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("slot %d: %v (current status: %s)", e.SlotID, e.Err, e.Actual)
}

func (e *StateConflictError) Unwrap() error { return e.Err }

func NewStateConflict(slot *models.Slot, err error) error {
	return &StateConflictError{SlotID: slot.ID, Actual: slot.Status, Err: err}
}

// LimitError carries the counter that tripped a claim limit.
type LimitError struct {
	Count int
	Limit int
	Err   error
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v (%d/%d)", e.Err, e.Count, e.Limit)
}

func (e *LimitError) Unwrap() error { return e.Err }

// ValidationError lists the offending fields and their messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// Add records a field failure and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
	return e
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Transient wraps a storage failure so callers know a single retry is reasonable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrClaimInProgress)
}

// KindOf classifies err into the error taxonomy used by the HTTP layer.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrCampaignNotFound), errors.Is(err, ErrSubmissionNotFound):
		return KindNotFound
	case errors.Is(err, ErrCampaignLimitExceeded), errors.Is(err, ErrDailyLimitExceeded):
		return KindLimitExceeded
	case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrNotHolder), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return KindNotAuthorized
	case errors.Is(err, ErrProfileIncomplete):
		return KindPrecondition
	case errors.Is(err, ErrSlotNotAvailable), errors.Is(err, ErrAlreadyComplete), errors.Is(err, ErrNotSubmittable),
		errors.Is(err, ErrNotEditable), errors.Is(err, ErrCampaignNotApproved), errors.Is(err, ErrOutsideWindow),
		errors.Is(err, ErrNotApprovable), errors.Is(err, ErrReservationLost),
		errors.Is(err, models.ErrInvalidTransition):
		return KindStateConflict
	case IsTransient(err):
		return KindTransient
	}
	return KindInternal
}
