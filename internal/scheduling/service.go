package scheduling

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability-scheduling/internal/config"
	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

const (
	EventWindowDeclared       = "WINDOW_DECLARED"
	EventWindowDeleted        = "WINDOW_DELETED"
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

// Service is the single entry point for declaring availability, querying
// slots and booking them. It holds no per-request state and is safe for
// concurrent use; all consistency comes from the repository transaction.
type Service struct {
	repo         Repository
	cache        AvailabilityCache
	slotDuration time.Duration
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCache enables the availability read cache.
func WithCache(c AvailabilityCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func NewService(repo Repository, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("falling back to local time zone")
		loc = time.Local
	}

	s := &Service{
		repo:         repo,
		cache:        nopCache{},
		slotDuration: cfg.SlotDuration,
		loc:          loc,
		now:          time.Now,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SlotDuration() time.Duration {
	return s.slotDuration
}

// moment is the current naive wall-clock reading in the configured zone.
func (s *Service) moment() timemath.Moment {
	return timemath.MomentOf(s.now(), s.loc)
}

func requireRole(id Identity, roles ...Role) error {
	if id.UserID == uuid.Nil {
		return ErrRoleNotAllowed
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return ErrRoleNotAllowed
}

func authenticated(id Identity) error {
	return requireRole(id, RoleDoctor, RolePatient, RoleAdmin)
}

type eventRef struct {
	appointmentID *uuid.UUID
	windowID      *uuid.UUID
}

func forAppointment(id uuid.UUID) eventRef { return eventRef{appointmentID: &id} }
func forWindow(id uuid.UUID) eventRef      { return eventRef{windowID: &id} }

// logEvent writes an audit row inside tx. A failed insert is logged and
// swallowed: losing an audit row must not undo a booking.
func (s *Service) logEvent(ctx context.Context, tx Tx, ref eventRef, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: ref.appointmentID,
		WindowID:      ref.windowID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to insert event log")
	}
}
