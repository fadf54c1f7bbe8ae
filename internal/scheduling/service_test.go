package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-availability-scheduling/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type fixture struct {
	svc     *Service
	repo    *MemRepository
	clock   *fakeClock
	doctor  Identity
	patient Identity
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	repo := NewMemRepository()
	clock := &fakeClock{t: time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)}
	cfg := config.Config{SlotDuration: 15 * time.Minute, Timezone: "UTC"}

	f := &fixture{
		repo:    repo,
		clock:   clock,
		doctor:  Identity{UserID: uuid.New(), Role: RoleDoctor},
		patient: Identity{UserID: uuid.New(), Role: RolePatient},
	}
	repo.AddDoctor(f.doctor.UserID)
	repo.AddPatient(f.patient.UserID)

	f.svc = NewService(repo, cfg, zerolog.Nop(), append([]Option{WithClock(clock.Now)}, opts...)...)
	return f
}

func (f *fixture) newPatient() Identity {
	p := Identity{UserID: uuid.New(), Role: RolePatient}
	f.repo.AddPatient(p.UserID)
	return p
}

func (f *fixture) declareMorning(t *testing.T) []TimeSlot {
	t.Helper()
	_, slots, err := f.svc.DeclareAvailability(context.Background(), f.doctor, f.doctor.UserID, WindowInput{
		Date:      "2025-03-10",
		StartTime: "09:00",
		EndTime:   "10:00",
		Session:   "Morning",
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	return slots
}

func startTimes(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime.String()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDeclareBookAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots := f.declareMorning(t)
	if got := startTimes(slots); !equalStrings(got, []string{"09:00", "09:15", "09:30", "09:45"}) {
		t.Fatalf("unexpected slots %v", got)
	}

	appt, err := f.svc.Book(ctx, f.patient, slots[1].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != StatusScheduled || appt.SlotID != slots[1].ID || appt.DoctorID != f.doctor.UserID {
		t.Errorf("unexpected appointment %+v", appt)
	}
	if appt.Time.String() != "09:15" || appt.Date.String() != "2025-03-10" {
		t.Errorf("appointment should carry slot date/time, got %s %s", appt.Date, appt.Time)
	}

	page, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-10", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := startTimes(page.Items); !equalStrings(got, []string{"09:00", "09:30", "09:45"}) {
		t.Errorf("expected booked slot excluded, got %v", got)
	}
	if page.Total != 3 {
		t.Errorf("expected total 3, got %d", page.Total)
	}

	other := f.newPatient()
	_, err = f.svc.Book(ctx, other, slots[1].ID)
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected conflict for second booking, got %v", err)
	}
}

func TestListAvailable_NoDateHidesPastSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	slots := f.declareMorning(t)
	if _, err := f.svc.Book(ctx, f.patient, slots[1].ID); err != nil {
		t.Fatalf("book: %v", err)
	}

	f.clock.Set(time.Date(2025, time.March, 10, 9, 20, 0, 0, time.UTC))

	page, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := startTimes(page.Items); !equalStrings(got, []string{"09:30", "09:45"}) {
		t.Errorf("expected only 09:30 and 09:45, got %v", got)
	}
}

func TestListAvailable_NoDateUsesSecondResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declareMorning(t)

	f.clock.Set(time.Date(2025, time.March, 10, 9, 15, 40, 0, time.UTC))

	page, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := startTimes(page.Items); !equalStrings(got, []string{"09:30", "09:45"}) {
		t.Errorf("09:15 started 40s ago and must not be listed, got %v", got)
	}
}

func TestListAvailable_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declareMorning(t)

	first, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-10", 1, 3)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	second, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-10", 2, 3)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}

	if got := startTimes(first.Items); !equalStrings(got, []string{"09:00", "09:15", "09:30"}) {
		t.Errorf("unexpected page 1 %v", got)
	}
	if got := startTimes(second.Items); !equalStrings(got, []string{"09:45"}) {
		t.Errorf("unexpected page 2 %v", got)
	}
	if first.Total != 4 || second.Total != 4 {
		t.Errorf("total should count before pagination, got %d and %d", first.Total, second.Total)
	}

	again, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-10", 1, 3)
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if !equalStrings(startTimes(again.Items), startTimes(first.Items)) {
		t.Error("identical queries returned different results")
	}
}

func TestListAvailable_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ListAvailable(ctx, f.patient, uuid.New(), "", 1, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for unknown doctor, got %v", err)
	}
	if _, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-13-01", 1, 10); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected invalid date, got %v", err)
	}
	if _, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "", -1, 10); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected invalid page, got %v", err)
	}
}

func TestDeclareAvailability_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := WindowInput{Date: "2025-03-10", StartTime: "09:00", EndTime: "10:00", Session: "Morning"}

	tests := []struct {
		name     string
		id       Identity
		doctorID uuid.UUID
		in       WindowInput
		kind     error
	}{
		{"end before start", f.doctor, f.doctor.UserID, WindowInput{Date: "2025-03-10", StartTime: "10:00", EndTime: "09:00", Session: "Morning"}, ErrInvalid},
		{"shorter than a slot", f.doctor, f.doctor.UserID, WindowInput{Date: "2025-03-10", StartTime: "09:00", EndTime: "09:10", Session: "Morning"}, ErrInvalid},
		{"past date", f.doctor, f.doctor.UserID, WindowInput{Date: "2025-03-09", StartTime: "09:00", EndTime: "10:00", Session: "Morning"}, ErrInvalid},
		{"patient caller", f.patient, f.doctor.UserID, valid, ErrForbidden},
		{"other doctor", Identity{UserID: uuid.New(), Role: RoleDoctor}, f.doctor.UserID, valid, ErrForbidden},
		{"anonymous caller", Identity{UserID: uuid.Nil, Role: RoleAdmin}, uuid.New(), valid, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.DeclareAvailability(ctx, tt.id, tt.doctorID, tt.in)
			if !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}

	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	if _, _, err := f.svc.DeclareAvailability(ctx, admin, uuid.New(), valid); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}

	f.declareMorning(t)
	if _, _, err := f.svc.DeclareAvailability(ctx, f.doctor, f.doctor.UserID, valid); !errors.Is(err, ErrDuplicateWindow) {
		t.Errorf("expected duplicate window conflict, got %v", err)
	}

	page, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-10", 1, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 4 {
		t.Errorf("failed declarations must not leave slots behind, got %d", page.Total)
	}
}

func TestDeclareAvailability_OverlappingSessionsRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.declareMorning(t)

	// FullDay over the same hours collides on (doctor, date, start) for every slot.
	_, _, err := f.svc.DeclareAvailability(ctx, f.doctor, f.doctor.UserID, WindowInput{
		Date: "2025-03-10", StartTime: "09:00", EndTime: "12:00", Session: "FullDay",
	})
	if !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("expected duplicate slot conflict, got %v", err)
	}

	windows, err := f.svc.ListWindows(ctx, f.doctor, f.doctor.UserID, "2025-03-10")
	if err != nil {
		t.Fatalf("list windows: %v", err)
	}
	if len(windows) != 1 || windows[0].Session != SessionMorning {
		t.Errorf("expected the FullDay window to be rolled back, got %d windows", len(windows))
	}
}

func TestBook_Exclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)
	target := slots[2].ID

	const n = 25
	patients := make([]Identity, n)
	for i := range patients {
		patients[i] = f.newPatient()
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(p Identity) {
			defer wg.Done()
			<-start
			_, err := f.svc.Book(ctx, p, target)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotUnavailable):
				conflicts++
			default:
				others = append(others, err)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != n-1 || len(others) != 0 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d (others %v)", n-1, successes, conflicts, others)
	}

	slot, err := f.repo.GetSlot(ctx, target)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotBooked {
		t.Errorf("expected slot Booked, got %s", slot.State)
	}

	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	page, err := f.svc.ListAppointments(ctx, admin, "Scheduled", 1, 100)
	if err != nil {
		t.Fatalf("list appointments: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected exactly one active appointment, got %d", page.Total)
	}
}

func TestBook_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	if _, err := f.svc.Book(ctx, f.patient, uuid.New()); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected slot not found, got %v", err)
	}
	if _, err := f.svc.Book(ctx, f.doctor, slots[0].ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected doctors to be refused, got %v", err)
	}
	stranger := Identity{UserID: uuid.New(), Role: RolePatient}
	if _, err := f.svc.Book(ctx, stranger, slots[0].ID); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected patient not found, got %v", err)
	}

	slot, err := f.repo.GetSlot(ctx, slots[0].ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotAvailable {
		t.Errorf("failed bookings must leave the slot Available, got %s", slot.State)
	}
}

func TestCancel_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected Cancelled, got %s", cancelled.Status)
	}

	slot, err := f.repo.GetSlot(ctx, slots[0].ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotAvailable {
		t.Errorf("expected slot Available after cancel, got %s", slot.State)
	}

	other := f.newPatient()
	rebooked, err := f.svc.Book(ctx, other, slots[0].ID)
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if rebooked.ID == appt.ID {
		t.Error("rebooking should create a new appointment")
	}

	if _, err := f.svc.Cancel(ctx, f.patient, appt.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected double cancel to be not found, got %v", err)
	}
}

// staleReadRepo serves a Scheduled snapshot of an appointment on the first
// read inside a transaction, as a second canceller would see it when the
// first commits between its read and its update.
type staleReadRepo struct {
	*MemRepository
	stale Appointment
}

func (r *staleReadRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.MemRepository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &staleReadTx{Tx: tx, stale: r.stale})
	})
}

type staleReadTx struct {
	Tx
	stale  Appointment
	served bool
}

func (t *staleReadTx) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if !t.served && id == t.stale.ID {
		t.served = true
		a := t.stale
		return &a, nil
	}
	return t.Tx.GetAppointment(ctx, id)
}

func TestCancel_LosingConcurrentCancelIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	snapshot := *appt

	if _, err := f.svc.Cancel(ctx, f.doctor, appt.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	cfg := config.Config{SlotDuration: 15 * time.Minute, Timezone: "UTC"}
	racing := NewService(&staleReadRepo{MemRepository: f.repo, stale: snapshot}, cfg, zerolog.Nop(), WithClock(f.clock.Now))

	_, err = racing.Cancel(ctx, f.patient, appt.ID)
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected the losing cancel to be not found, got %v", err)
	}

	slot, err := f.repo.GetSlot(ctx, slots[0].ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotAvailable {
		t.Errorf("expected slot to stay Available, got %s", slot.State)
	}
}

func TestCancel_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	stranger := f.newPatient()
	if _, err := f.svc.Cancel(ctx, stranger, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden for stranger, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.patient, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found for unknown appointment, got %v", err)
	}

	// the doctor on the appointment may cancel too
	if _, err := f.svc.Cancel(ctx, f.doctor, appt.ID); err != nil {
		t.Errorf("doctor cancel: %v", err)
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	if _, err := f.svc.Complete(ctx, f.patient, appt.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected patients to be refused, got %v", err)
	}

	done, err := f.svc.Complete(ctx, f.doctor, appt.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("expected Completed, got %s", done.Status)
	}

	if _, err := f.svc.Cancel(ctx, f.patient, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected conflict cancelling a completed appointment, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.doctor, appt.ID); !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict completing twice, got %v", err)
	}

	slot, err := f.repo.GetSlot(ctx, slots[0].ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.State != SlotBooked {
		t.Errorf("completed appointment keeps its slot Booked, got %s", slot.State)
	}
}

func TestCompletePast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	early, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book early: %v", err)
	}
	late, err := f.svc.Book(ctx, f.newPatient(), slots[3].ID)
	if err != nil {
		t.Fatalf("book late: %v", err)
	}

	// 09:15 is exactly when the first slot ends
	f.clock.Set(time.Date(2025, time.March, 10, 9, 15, 0, 0, time.UTC))

	n, err := f.svc.CompletePast(ctx)
	if err != nil {
		t.Fatalf("complete past: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completion, got %d", n)
	}

	admin := Identity{UserID: uuid.New(), Role: RoleAdmin}
	got, err := f.svc.GetAppointment(ctx, admin, early.ID)
	if err != nil {
		t.Fatalf("get early: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected early appointment Completed, got %s", got.Status)
	}
	got, err = f.svc.GetAppointment(ctx, admin, late.ID)
	if err != nil {
		t.Fatalf("get late: %v", err)
	}
	if got.Status != StatusScheduled {
		t.Errorf("expected late appointment still Scheduled, got %s", got.Status)
	}
}

func TestGetAndListAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	mine, err := f.svc.Book(ctx, f.patient, slots[2].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	other := f.newPatient()
	if _, err := f.svc.Book(ctx, other, slots[0].ID); err != nil {
		t.Fatalf("book other: %v", err)
	}

	if _, err := f.svc.GetAppointment(ctx, other, mine.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.GetAppointment(ctx, f.doctor, mine.ID); err != nil {
		t.Errorf("doctor should see own appointment: %v", err)
	}

	patientPage, err := f.svc.ListAppointments(ctx, f.patient, "", 1, 10)
	if err != nil {
		t.Fatalf("list patient: %v", err)
	}
	if patientPage.Total != 1 || patientPage.Items[0].ID != mine.ID {
		t.Errorf("patient should only see own bookings, got %d", patientPage.Total)
	}

	doctorPage, err := f.svc.ListAppointments(ctx, f.doctor, "", 1, 10)
	if err != nil {
		t.Fatalf("list doctor: %v", err)
	}
	if doctorPage.Total != 2 || doctorPage.Items[0].Time.String() != "09:00" {
		t.Errorf("doctor should see both bookings ordered by time, got %+v", doctorPage.Items)
	}

	if _, err := f.svc.ListAppointments(ctx, f.doctor, "Pending", 1, 10); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected invalid status, got %v", err)
	}
}

func TestDeleteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	window, slots, err := f.svc.DeclareAvailability(ctx, f.doctor, f.doctor.UserID, WindowInput{
		Date: "2025-03-11", StartTime: "17:00", EndTime: "18:00", Session: "Evening", Weekdays: []string{"Tuesday"},
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}

	otherDoctor := Identity{UserID: uuid.New(), Role: RoleDoctor}
	if err := f.svc.DeleteWindow(ctx, otherDoctor, window.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := f.svc.DeleteWindow(ctx, f.doctor, window.ID); !errors.Is(err, ErrWindowInUse) {
		t.Errorf("expected window in use, got %v", err)
	}

	// a cancelled appointment still references its slot
	if _, err := f.svc.Cancel(ctx, f.patient, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.svc.DeleteWindow(ctx, f.doctor, window.ID); !errors.Is(err, ErrWindowInUse) {
		t.Errorf("expected window in use after cancel, got %v", err)
	}

	fresh, _, err := f.svc.DeclareAvailability(ctx, f.doctor, f.doctor.UserID, WindowInput{
		Date: "2025-03-12", StartTime: "17:00", EndTime: "18:00", Session: "Evening",
	})
	if err != nil {
		t.Fatalf("declare fresh: %v", err)
	}
	if err := f.svc.DeleteWindow(ctx, f.doctor, fresh.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.svc.DeleteWindow(ctx, f.doctor, fresh.ID); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}

	page, err := f.svc.ListAvailable(ctx, f.patient, f.doctor.UserID, "2025-03-12", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expected deleted window's slots gone, got %d", page.Total)
	}
}

func TestEventsWritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	appt, err := f.svc.Book(ctx, f.patient, slots[0].ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.patient, appt.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	want := []string{EventWindowDeclared, EventAppointmentBooked, EventAppointmentCancelled}
	if !equalStrings(types, want) {
		t.Errorf("expected events %v, got %v", want, types)
	}
}

func TestGetWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slots := f.declareMorning(t)

	if _, err := f.svc.Book(ctx, f.patient, slots[2].ID); err != nil {
		t.Fatalf("book: %v", err)
	}

	window, got, err := f.svc.GetWindow(ctx, f.patient, slots[0].WindowID)
	if err != nil {
		t.Fatalf("get window: %v", err)
	}
	if window.ID != slots[0].WindowID || window.Session != SessionMorning {
		t.Errorf("unexpected window %+v", window)
	}
	if times := startTimes(got); !equalStrings(times, []string{"09:00", "09:15", "09:30", "09:45"}) {
		t.Errorf("expected every slot of the window in order, got %v", times)
	}
	if got[2].State != SlotBooked || got[0].State != SlotAvailable {
		t.Errorf("expected slot states to be reported, got %s and %s", got[0].State, got[2].State)
	}

	if _, _, err := f.svc.GetWindow(ctx, f.patient, uuid.New()); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, _, err := f.svc.GetWindow(ctx, Identity{}, slots[0].WindowID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected anonymous caller refused, got %v", err)
	}
}
