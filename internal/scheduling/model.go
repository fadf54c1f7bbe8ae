package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

type Session string

const (
	SessionMorning Session = "Morning"
	SessionEvening Session = "Evening"
	SessionFullDay Session = "FullDay"
)

// ParseSession accepts the canonical values plus the spaced "Full Day" spelling.
func ParseSession(s string) (Session, bool) {
	switch strings.ReplaceAll(strings.TrimSpace(s), " ", "") {
	case string(SessionMorning):
		return SessionMorning, true
	case string(SessionEvening):
		return SessionEvening, true
	case string(SessionFullDay):
		return SessionFullDay, true
	}
	return "", false
}

type SlotState string

const (
	SlotAvailable SlotState = "Available"
	SlotBooked    SlotState = "Booked"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusCompleted AppointmentStatus = "Completed"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	for _, st := range []AppointmentStatus{StatusScheduled, StatusCancelled, StatusCompleted} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(s)) {
	case RoleDoctor:
		return RoleDoctor, true
	case RolePatient:
		return RolePatient, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Identity is the already-authenticated caller. It is passed explicitly into
// every operation that needs authorization.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type Window struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      timemath.Date
	StartTime timemath.Clock
	EndTime   timemath.Clock
	Weekdays  []time.Weekday
	Session   Session
	CreatedAt time.Time
}

type TimeSlot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	WindowID  uuid.UUID
	Date      timemath.Date
	StartTime timemath.Clock
	EndTime   timemath.Clock
	State     SlotState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Start returns the naive moment the slot begins.
func (s TimeSlot) Start() timemath.Moment {
	return timemath.Moment{Date: s.Date, Clock: s.StartTime}
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Date      timemath.Date
	Time      timemath.Clock
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Involves reports whether the user is the doctor or the patient on the appointment.
func (a Appointment) Involves(userID uuid.UUID) bool {
	return a.DoctorID == userID || a.PatientID == userID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	WindowID      *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Page is one offset-paginated slice of a result set; Total counts the whole set.
type Page[T any] struct {
	Items []T
	Total int
}

// SlotQuery filters available slots. Exactly one of Date and NotBefore is set
// by the service.
type SlotQuery struct {
	DoctorID  uuid.UUID
	Date      *timemath.Date
	NotBefore *timemath.Moment
	Offset    int
	Limit     int
}

type AppointmentQuery struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
	Offset    int
	Limit     int
}
