package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Book reserves slotID for the calling patient. The slot flip and the
// appointment insert share one transaction, and the flip is a conditional
// update on the slot state, so among concurrent callers for the same slot
// exactly one succeeds and the rest get ErrSlotUnavailable.
func (s *Service) Book(ctx context.Context, id Identity, slotID uuid.UUID) (*Appointment, error) {
	if err := requireRole(id, RolePatient); err != nil {
		return nil, err
	}

	var appt *Appointment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.PatientExists(ctx, id.UserID)
		if err != nil {
			return fmt.Errorf("load patient: %w", err)
		}
		if !ok {
			return ErrPatientNotFound
		}

		slot, err := tx.TransitionSlot(ctx, slotID, SlotAvailable, SlotBooked)
		if err != nil {
			return err
		}

		appt = &Appointment{
			ID:        uuid.New(),
			DoctorID:  slot.DoctorID,
			PatientID: id.UserID,
			SlotID:    slot.ID,
			Date:      slot.Date,
			Time:      slot.StartTime,
			Status:    StatusScheduled,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}

		s.logEvent(ctx, tx, forAppointment(appt.ID), EventAppointmentBooked, map[string]any{
			"slot_id":    slot.ID.String(),
			"patient_id": id.UserID.String(),
			"doctor_id":  slot.DoctorID.String(),
			"date":       slot.Date.String(),
			"time":       slot.StartTime.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.logger.Debug().Str("slot_id", slotID.String()).Str("patient_id", id.UserID.String()).Msg("slot already taken")
		}
		return nil, err
	}

	s.invalidate(ctx, appt.DoctorID)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", slotID.String()).
		Str("patient_id", id.UserID.String()).
		Msg("slot booked")

	return appt, nil
}

// Cancel cancels a Scheduled appointment and returns its slot to Available in
// the same transaction. Only the doctor or the patient on the appointment, or
// an admin, may cancel. A missing or already cancelled appointment is
// ErrAppointmentNotFound; a completed one is ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id Identity, appointmentID uuid.UUID) (*Appointment, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}

	var cancelled *Appointment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.Status == StatusCancelled {
			return ErrAppointmentNotFound
		}
		if id.Role != RoleAdmin && !appt.Involves(id.UserID) {
			return ErrNotParticipant
		}
		if appt.Status != StatusScheduled {
			return ErrInvalidTransition
		}

		cancelled, err = tx.TransitionAppointment(ctx, appt.ID, StatusScheduled, StatusCancelled)
		if errors.Is(err, ErrInvalidTransition) {
			// A concurrent cancel committed between the read above and the update.
			if current, getErr := tx.GetAppointment(ctx, appt.ID); getErr == nil && current.Status == StatusCancelled {
				return ErrAppointmentNotFound
			}
		}
		if err != nil {
			return err
		}
		if _, err := tx.TransitionSlot(ctx, appt.SlotID, SlotBooked, SlotAvailable); err != nil {
			return fmt.Errorf("release slot %s: %w", appt.SlotID, err)
		}

		s.logEvent(ctx, tx, forAppointment(appt.ID), EventAppointmentCancelled, map[string]any{
			"slot_id":      appt.SlotID.String(),
			"cancelled_by": id.UserID.String(),
			"role":         id.Role,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, cancelled.DoctorID)
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("cancelled_by", id.UserID.String()).
		Msg("appointment cancelled")

	return cancelled, nil
}

// Complete marks a Scheduled appointment Completed. The slot stays Booked.
func (s *Service) Complete(ctx context.Context, id Identity, appointmentID uuid.UUID) (*Appointment, error) {
	if err := requireRole(id, RoleDoctor, RoleAdmin); err != nil {
		return nil, err
	}

	var completed *Appointment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if id.Role == RoleDoctor && appt.DoctorID != id.UserID {
			return ErrNotParticipant
		}

		completed, err = tx.TransitionAppointment(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil {
			return err
		}
		s.logEvent(ctx, tx, forAppointment(appt.ID), EventAppointmentCompleted, map[string]any{
			"completed_by": id.UserID.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// CompletePast completes every Scheduled appointment whose slot has ended and
// returns how many were moved. It is driven by the completion worker.
func (s *Service) CompletePast(ctx context.Context) (int, error) {
	now := s.moment()

	var done []Appointment
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		done, err = tx.CompleteEnded(ctx, now)
		if err != nil {
			return err
		}
		for _, a := range done {
			s.logEvent(ctx, tx, forAppointment(a.ID), EventAppointmentCompleted, map[string]any{
				"reason": "worker",
			})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("complete past appointments: %w", err)
	}

	if len(done) > 0 {
		s.logger.Info().Int("count", len(done)).Str("now", now.String()).Msg("completed past appointments")
	}
	return len(done), nil
}

// GetAppointment returns the appointment if the caller is its doctor or
// patient, or an admin.
func (s *Service) GetAppointment(ctx context.Context, id Identity, appointmentID uuid.UUID) (*Appointment, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if id.Role != RoleAdmin && !appt.Involves(id.UserID) {
		return nil, ErrNotParticipant
	}
	return appt, nil
}

// ListAppointments pages through the caller's appointments: a doctor sees
// their own schedule, a patient their own bookings, an admin everything.
func (s *Service) ListAppointments(ctx context.Context, id Identity, status string, page, limit int) (Page[Appointment], error) {
	if err := authenticated(id); err != nil {
		return Page[Appointment]{}, err
	}

	offset, size, err := ValidatePage(page, limit)
	if err != nil {
		return Page[Appointment]{}, err
	}

	q := AppointmentQuery{Offset: offset, Limit: size}
	if status != "" {
		st, ok := ParseAppointmentStatus(status)
		if !ok {
			return Page[Appointment]{}, invalid("status", ReasonBadStatus, "status must be one of Scheduled, Cancelled, Completed")
		}
		q.Status = &st
	}

	userID := id.UserID
	switch id.Role {
	case RoleDoctor:
		q.DoctorID = &userID
	case RolePatient:
		q.PatientID = &userID
	}

	items, total, err := s.repo.ListAppointments(ctx, q)
	if err != nil {
		return Page[Appointment]{}, fmt.Errorf("list appointments: %w", err)
	}
	return Page[Appointment]{Items: items, Total: total}, nil
}
