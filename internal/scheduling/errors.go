package scheduling

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the service for a caller mistake or a
// state conflict matches exactly one of these with errors.Is.
var (
	ErrInvalid   = errors.New("invalid")
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrDoctorNotFound      = newError(ErrNotFound, "doctor not found")
	ErrPatientNotFound     = newError(ErrNotFound, "patient not found")
	ErrWindowNotFound      = newError(ErrNotFound, "availability window not found")
	ErrSlotNotFound        = newError(ErrNotFound, "slot not found")
	ErrAppointmentNotFound = newError(ErrNotFound, "appointment not found")

	ErrDuplicateWindow   = newError(ErrConflict, "availability window already exists for this doctor, date and session")
	ErrDuplicateSlot     = newError(ErrConflict, "slot already exists for this doctor, date and start time")
	ErrSlotUnavailable   = newError(ErrConflict, "slot is not available")
	ErrWindowInUse       = newError(ErrConflict, "window has slots referenced by appointments")
	ErrInvalidTransition = newError(ErrConflict, "invalid appointment status transition")

	ErrNotParticipant = newError(ErrForbidden, "caller is neither the doctor nor the patient on this appointment")
	ErrRoleNotAllowed = newError(ErrForbidden, "caller role may not perform this operation")
	ErrNotOwner       = newError(ErrForbidden, "caller does not own this resource")
)

// Reason enumerates why an input was rejected.
type Reason string

const (
	ReasonBadDate          Reason = "bad_date"
	ReasonPastDate         Reason = "past_date"
	ReasonBadTime          Reason = "bad_time"
	ReasonEndNotAfterStart Reason = "end_not_after_start"
	ReasonBadSession       Reason = "bad_session"
	ReasonBadWeekday       Reason = "bad_weekday"
	ReasonWeekdayMismatch  Reason = "weekday_mismatch"
	ReasonWindowTooShort   Reason = "window_too_short"
	ReasonBadPage          Reason = "bad_page"
	ReasonBadStatus        Reason = "bad_status"
)

// ValidationError is the Invalid outcome of a validator: which field failed and why.
type ValidationError struct {
	Field  string
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func invalid(field string, reason Reason, detail string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Detail: detail}
}
