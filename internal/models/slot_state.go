package models

import (
	"errors"
	"fmt"
)

type SlotStatus string

const (
	SlotUnopened  SlotStatus = "unopened"
	SlotAvailable SlotStatus = "available"
	SlotReserved  SlotStatus = "reserved"
	SlotComplete  SlotStatus = "complete"
)

// HeldStatuses are the statuses that carry a reservation holder.
var HeldStatuses = []SlotStatus{SlotReserved, SlotComplete}

// OpenStatuses are the statuses of a slot that has been opened on some date.
var OpenStatuses = []SlotStatus{SlotAvailable, SlotReserved, SlotComplete}

func ParseSlotStatus(s string) (SlotStatus, error) {
	status := SlotStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown slot status %q", s)
	}
	return status, nil
}

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotUnopened, SlotAvailable, SlotReserved, SlotComplete:
		return true
	}
	return false
}

func (s SlotStatus) IsHeld() bool {
	return s == SlotReserved || s == SlotComplete
}

type SlotEvent string

const (
	EventOpen   SlotEvent = "open"
	EventClaim  SlotEvent = "claim"
	EventClose  SlotEvent = "close"
	EventCancel SlotEvent = "cancel"
	EventSubmit SlotEvent = "submit"
	EventEdit   SlotEvent = "edit"
)

var ErrInvalidTransition = errors.New("invalid slot transition")

// TransitionError reports an event that is not allowed from the slot's current status.
type TransitionError struct {
	From  SlotStatus
	Event SlotEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a slot in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Transition returns the status a slot moves to when ev is applied in status from.
// Guards that depend on the caller (holder identity, limits, validation) are checked
// by the services; this table only encodes which edges exist.
func Transition(from SlotStatus, ev SlotEvent) (SlotStatus, error) {
	switch from {
	case SlotUnopened:
		switch ev {
		case EventOpen:
			return SlotAvailable, nil
		}
	case SlotAvailable:
		switch ev {
		case EventClaim:
			return SlotReserved, nil
		case EventClose:
			return SlotUnopened, nil
		}
	case SlotReserved:
		switch ev {
		case EventCancel:
			return SlotAvailable, nil
		case EventSubmit:
			return SlotComplete, nil
		}
	case SlotComplete:
		switch ev {
		case EventEdit:
			return SlotComplete, nil
		}
	default:
		return "", fmt.Errorf("unknown slot status %q", from)
	}
	return "", &TransitionError{From: from, Event: ev}
}

// ForceTarget reports whether an administrator may force a slot into status.
// Only holder-free statuses may be forced so the holder invariant survives.
func ForceTarget(status SlotStatus) bool {
	switch status {
	case SlotUnopened, SlotAvailable:
		return true
	case SlotReserved, SlotComplete:
		return false
	}
	return false
}
