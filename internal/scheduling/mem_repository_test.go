package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

func TestMemRepository_FailedTxLeavesNoTrace(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	doctor := uuid.New()
	repo.AddDoctor(doctor)

	w := Window{
		ID:        uuid.New(),
		DoctorID:  doctor,
		Date:      timemath.Date{Year: 2025, Month: time.March, Day: 10},
		StartTime: timemath.NewClock(9, 0, 0),
		EndTime:   timemath.NewClock(10, 0, 0),
		Session:   SessionMorning,
	}
	slots := GenerateSlots(w, 15*time.Minute)

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertWindow(ctx, &w); err != nil {
			return err
		}
		if err := tx.InsertSlots(ctx, slots); err != nil {
			return err
		}
		if _, err := tx.TransitionSlot(ctx, slots[0].ID, SlotAvailable, SlotBooked); err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, EventLog{EventType: EventWindowDeclared}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	if _, err := repo.GetWindow(ctx, w.ID); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("window should be rolled back, got %v", err)
	}
	if _, err := repo.GetSlot(ctx, slots[0].ID); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("slots should be rolled back, got %v", err)
	}
	if n := len(repo.Events()); n != 0 {
		t.Errorf("events of a failed transaction must be dropped, got %d", n)
	}
}

func TestMemRepository_RollbackRestoresPriorValues(t *testing.T) {
	repo := NewMemRepository()
	ctx := context.Background()
	doctor := uuid.New()
	repo.AddDoctor(doctor)

	w := Window{
		ID:        uuid.New(),
		DoctorID:  doctor,
		Date:      timemath.Date{Year: 2025, Month: time.March, Day: 10},
		StartTime: timemath.NewClock(9, 0, 0),
		EndTime:   timemath.NewClock(9, 30, 0),
		Session:   SessionMorning,
	}
	slots := GenerateSlots(w, 15*time.Minute)
	err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertWindow(ctx, &w); err != nil {
			return err
		}
		if err := tx.InsertSlots(ctx, slots); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, EventLog{EventType: EventWindowDeclared})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	_ = repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.TransitionSlot(ctx, slots[1].ID, SlotAvailable, SlotBooked); err != nil {
			return err
		}
		if err := tx.DeleteWindow(ctx, w.ID); err != nil {
			return err
		}
		return errors.New("abort")
	})

	got, err := repo.GetSlot(ctx, slots[1].ID)
	if err != nil {
		t.Fatalf("slot should be restored: %v", err)
	}
	if got.State != SlotAvailable {
		t.Errorf("expected restored slot Available, got %s", got.State)
	}
	if _, err := repo.GetWindow(ctx, w.ID); err != nil {
		t.Errorf("window should be restored: %v", err)
	}

	if err := repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertEvent(ctx, EventLog{EventType: EventWindowDeleted})
	}); err != nil {
		t.Fatalf("event: %v", err)
	}
	events := repo.Events()
	if len(events) != 2 || events[0].ID != 1 || events[1].ID != 2 {
		t.Errorf("expected committed events numbered 1 and 2, got %+v", events)
	}
}
