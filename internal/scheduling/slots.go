package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

// ListAvailable returns one page of a doctor's Available slots ordered by
// date then start time. With an empty date only slots starting at or after
// the current second are considered.
func (s *Service) ListAvailable(ctx context.Context, id Identity, doctorID uuid.UUID, date string, page, limit int) (Page[TimeSlot], error) {
	if err := authenticated(id); err != nil {
		return Page[TimeSlot]{}, err
	}

	offset, size, err := ValidatePage(page, limit)
	if err != nil {
		return Page[TimeSlot]{}, err
	}

	q := SlotQuery{DoctorID: doctorID, Offset: offset, Limit: size}
	if date != "" {
		d, err := timemath.ParseDate(date)
		if err != nil {
			return Page[TimeSlot]{}, invalid("date", ReasonBadDate, err.Error())
		}
		q.Date = &d
	} else {
		now := s.moment()
		q.NotBefore = &now
	}

	ok, err := s.repo.DoctorExists(ctx, doctorID)
	if err != nil {
		return Page[TimeSlot]{}, fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return Page[TimeSlot]{}, ErrDoctorNotFound
	}

	cached, key, hit := s.cachedAvailability(ctx, q)
	if hit {
		return cached, nil
	}

	items, total, err := s.repo.ListAvailableSlots(ctx, q)
	if err != nil {
		return Page[TimeSlot]{}, fmt.Errorf("list available slots: %w", err)
	}
	result := Page[TimeSlot]{Items: items, Total: total}

	s.storeAvailability(ctx, key, result)
	return result, nil
}
