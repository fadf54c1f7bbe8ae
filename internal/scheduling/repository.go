package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

// Reader contains the lookups needed by the service, usable inside or outside
// a transaction.
type Reader interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
	PatientExists(ctx context.Context, id uuid.UUID) (bool, error)

	GetWindow(ctx context.Context, id uuid.UUID) (*Window, error)
	ListWindows(ctx context.Context, doctorID uuid.UUID, date *timemath.Date) ([]Window, error)

	GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]TimeSlot, error)
	// ListAvailableSlots returns one page ordered by date then start time, and
	// the count of all matching slots before pagination.
	ListAvailableSlots(ctx context.Context, q SlotQuery) ([]TimeSlot, int, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, int, error)
}

// Tx is the write side. Every multi-record change runs through a single Tx so
// that it commits or rolls back as one unit.
type Tx interface {
	Reader

	// InsertWindow fails with ErrDuplicateWindow on (doctor, date, session) collision.
	InsertWindow(ctx context.Context, w *Window) error
	// InsertSlots fails with ErrDuplicateSlot on (doctor, date, start) collision.
	InsertSlots(ctx context.Context, slots []TimeSlot) error
	// DeleteWindow removes the window and its slots, failing with ErrWindowInUse
	// when any slot is referenced by an appointment.
	DeleteWindow(ctx context.Context, id uuid.UUID) error

	// TransitionSlot is a conditional update: it succeeds only if the slot is
	// currently in state from. It returns ErrSlotNotFound or ErrSlotUnavailable.
	TransitionSlot(ctx context.Context, id uuid.UUID, from, to SlotState) (*TimeSlot, error)

	// InsertAppointment fails with ErrSlotUnavailable if another non-cancelled
	// appointment already references the slot.
	InsertAppointment(ctx context.Context, a *Appointment) error
	// TransitionAppointment is a conditional status update returning
	// ErrAppointmentNotFound or ErrInvalidTransition.
	TransitionAppointment(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	// CompleteEnded moves Scheduled appointments whose slot ended at or before
	// now to Completed and returns them.
	CompleteEnded(ctx context.Context, now timemath.Moment) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	Reader
	// WithinTx runs fn in a transaction, committing if fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

var (
	_ Repository = (*PgRepository)(nil)
	_ Tx         = (*pgTx)(nil)
	_ Repository = (*MemRepository)(nil)
	_ Tx         = (*memTx)(nil)
)
