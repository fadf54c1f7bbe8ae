package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

// DeclareAvailability validates a window for doctorID, persists it and
// expands it into slots. The window and its slots are written in a single
// transaction; if slot insertion fails nothing is kept.
func (s *Service) DeclareAvailability(ctx context.Context, id Identity, doctorID uuid.UUID, in WindowInput) (*Window, []TimeSlot, error) {
	if err := requireRole(id, RoleDoctor, RoleAdmin); err != nil {
		return nil, nil, err
	}
	if id.Role == RoleDoctor && id.UserID != doctorID {
		return nil, nil, ErrNotOwner
	}

	ok, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return nil, nil, ErrDoctorNotFound
	}

	spec, err := ValidateWindow(in, s.moment().Date)
	if err != nil {
		return nil, nil, err
	}

	window := &Window{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      spec.Date,
		StartTime: spec.StartTime,
		EndTime:   spec.EndTime,
		Weekdays:  spec.Weekdays,
		Session:   spec.Session,
	}

	slots := GenerateSlots(*window, s.slotDuration)
	if len(slots) == 0 {
		return nil, nil, invalid("endTime", ReasonWindowTooShort,
			fmt.Sprintf("window is shorter than one %s slot", s.slotDuration))
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertWindow(ctx, window); err != nil {
			return err
		}
		if err := tx.InsertSlots(ctx, slots); err != nil {
			return err
		}
		s.logEvent(ctx, tx, forWindow(window.ID), EventWindowDeclared, map[string]any{
			"doctor_id":  doctorID.String(),
			"date":       window.Date.String(),
			"start_time": window.StartTime.String(),
			"end_time":   window.EndTime.String(),
			"session":    window.Session,
			"slots":      len(slots),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.invalidate(ctx, doctorID)
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("window_id", window.ID.String()).
		Str("date", window.Date.String()).
		Int("slots", len(slots)).
		Msg("availability declared")

	return window, slots, nil
}

// ListWindows returns the doctor's windows ordered by date and start time,
// optionally restricted to one date.
func (s *Service) ListWindows(ctx context.Context, id Identity, doctorID uuid.UUID, date string) ([]Window, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}

	var day *timemath.Date
	if date != "" {
		d, err := timemath.ParseDate(date)
		if err != nil {
			return nil, invalid("date", ReasonBadDate, err.Error())
		}
		day = &d
	}

	ok, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return nil, ErrDoctorNotFound
	}

	windows, err := s.repo.ListWindows(ctx, doctorID, day)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

// GetWindow returns a window and all of its slots, booked ones included,
// ordered by start time.
func (s *Service) GetWindow(ctx context.Context, id Identity, windowID uuid.UUID) (*Window, []TimeSlot, error) {
	if err := authenticated(id); err != nil {
		return nil, nil, err
	}

	w, err := s.repo.GetWindow(ctx, windowID)
	if err != nil {
		if errors.Is(err, ErrWindowNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("get window: %w", err)
	}

	slots, err := s.repo.ListSlotsByWindow(ctx, windowID)
	if err != nil {
		return nil, nil, fmt.Errorf("list window slots: %w", err)
	}
	return w, slots, nil
}

// DeleteWindow removes a window together with its slots. It refuses while any
// of the slots is referenced by an appointment, cancelled ones included.
func (s *Service) DeleteWindow(ctx context.Context, id Identity, windowID uuid.UUID) error {
	if err := requireRole(id, RoleDoctor, RoleAdmin); err != nil {
		return err
	}

	var doctorID uuid.UUID
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.GetWindow(ctx, windowID)
		if err != nil {
			return err
		}
		if id.Role == RoleDoctor && w.DoctorID != id.UserID {
			return ErrNotOwner
		}
		doctorID = w.DoctorID

		if err := tx.DeleteWindow(ctx, windowID); err != nil {
			return err
		}
		s.logEvent(ctx, tx, forWindow(windowID), EventWindowDeleted, map[string]any{
			"doctor_id":  w.DoctorID.String(),
			"date":       w.Date.String(),
			"session":    w.Session,
			"deleted_by": id.UserID.String(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, doctorID)
	s.logger.Info().Str("window_id", windowID.String()).Msg("availability window deleted")
	return nil
}
