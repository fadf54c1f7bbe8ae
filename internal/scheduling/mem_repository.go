package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

// MemRepository is an in-process Repository. Transactions are serialized by a
// single mutex and mutate the live state while recording an undo entry per
// change; a failed transaction replays its undo log in reverse, so writes
// cost only what they touch. Used by STORE=memory and tests.
type MemRepository struct {
	mu     sync.Mutex
	state  *memState
	events []EventLog
}

type memState struct {
	doctors      map[uuid.UUID]struct{}
	patients     map[uuid.UUID]struct{}
	windows      map[uuid.UUID]Window
	slots        map[uuid.UUID]TimeSlot
	appointments map[uuid.UUID]Appointment
}

func NewMemRepository() *MemRepository {
	return &MemRepository{state: &memState{
		doctors:      make(map[uuid.UUID]struct{}),
		patients:     make(map[uuid.UUID]struct{}),
		windows:      make(map[uuid.UUID]Window),
		slots:        make(map[uuid.UUID]TimeSlot),
		appointments: make(map[uuid.UUID]Appointment),
	}}
}

// AddDoctor registers a doctor id in the directory.
func (r *MemRepository) AddDoctor(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.doctors[id] = struct{}{}
}

// AddPatient registers a patient id in the directory.
func (r *MemRepository) AddPatient(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.patients[id] = struct{}{}
}

// Events returns a copy of the audit log.
func (r *MemRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}

func (r *MemRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{s: r.state, nextEvent: int64(len(r.events)) + 1}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	committed = true
	r.events = append(r.events, tx.events...)
	return nil
}

func (r *MemRepository) read() *memTx {
	return &memTx{s: r.state}
}

func (r *MemRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().DoctorExists(ctx, id)
}

func (r *MemRepository) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().PatientExists(ctx, id)
}

func (r *MemRepository) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().GetWindow(ctx, id)
}

func (r *MemRepository) ListWindows(ctx context.Context, doctorID uuid.UUID, date *timemath.Date) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().ListWindows(ctx, doctorID, date)
}

func (r *MemRepository) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().GetSlot(ctx, id)
}

func (r *MemRepository) ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().ListSlotsByWindow(ctx, windowID)
}

func (r *MemRepository) ListAvailableSlots(ctx context.Context, q SlotQuery) ([]TimeSlot, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().ListAvailableSlots(ctx, q)
}

func (r *MemRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().GetAppointment(ctx, id)
}

func (r *MemRepository) ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read().ListAppointments(ctx, q)
}

// memTx operates on a state the caller already holds exclusively.
type memTx struct {
	s         *memState
	undo      []func()
	events    []EventLog
	nextEvent int64
}

// remember records how to restore m[k] to its current value.
func remember[K comparable, V any](t *memTx, m map[K]V, k K) {
	prev, had := m[k]
	t.undo = append(t.undo, func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.events = nil
}

func (t *memTx) DoctorExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := t.s.doctors[id]
	return ok, nil
}

func (t *memTx) PatientExists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := t.s.patients[id]
	return ok, nil
}

func (t *memTx) GetWindow(_ context.Context, id uuid.UUID) (*Window, error) {
	w, ok := t.s.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (t *memTx) ListWindows(_ context.Context, doctorID uuid.UUID, date *timemath.Date) ([]Window, error) {
	var result []Window
	for _, w := range t.s.windows {
		if w.DoctorID != doctorID {
			continue
		}
		if date != nil && w.Date != *date {
			continue
		}
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID.String() < b.ID.String()
	})
	return result, nil
}

func (t *memTx) GetSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	s, ok := t.s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (t *memTx) ListSlotsByWindow(_ context.Context, windowID uuid.UUID) ([]TimeSlot, error) {
	var result []TimeSlot
	for _, s := range t.s.slots {
		if s.WindowID == windowID {
			result = append(result, s)
		}
	}
	sortSlots(result)
	return result, nil
}

func (t *memTx) ListAvailableSlots(_ context.Context, q SlotQuery) ([]TimeSlot, int, error) {
	var matched []TimeSlot
	for _, s := range t.s.slots {
		if s.DoctorID != q.DoctorID || s.State != SlotAvailable {
			continue
		}
		if q.Date != nil && s.Date != *q.Date {
			continue
		}
		if q.NotBefore != nil && s.Start().Before(*q.NotBefore) {
			continue
		}
		matched = append(matched, s)
	}
	sortSlots(matched)
	return paginate(matched, q.Offset, q.Limit), len(matched), nil
}

func sortSlots(slots []TimeSlot) {
	sort.Slice(slots, func(i, j int) bool {
		if c := slots[i].Start().Compare(slots[j].Start()); c != 0 {
			return c < 0
		}
		return slots[i].ID.String() < slots[j].ID.String()
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (t *memTx) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) ListAppointments(_ context.Context, q AppointmentQuery) ([]Appointment, int, error) {
	var matched []Appointment
	for _, a := range t.s.appointments {
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID.String() < b.ID.String()
	})
	return paginate(matched, q.Offset, q.Limit), len(matched), nil
}

func (t *memTx) InsertWindow(_ context.Context, w *Window) error {
	if _, ok := t.s.doctors[w.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	for _, existing := range t.s.windows {
		if existing.DoctorID == w.DoctorID && existing.Date == w.Date && existing.Session == w.Session {
			return ErrDuplicateWindow
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	remember(t, t.s.windows, w.ID)
	t.s.windows[w.ID] = *w
	return nil
}

func (t *memTx) InsertSlots(_ context.Context, slots []TimeSlot) error {
	type startKey struct {
		doctor uuid.UUID
		date   timemath.Date
		start  timemath.Clock
	}
	taken := make(map[startKey]bool, len(t.s.slots))
	for _, s := range t.s.slots {
		taken[startKey{s.DoctorID, s.Date, s.StartTime}] = true
	}

	now := time.Now()
	for i := range slots {
		k := startKey{slots[i].DoctorID, slots[i].Date, slots[i].StartTime}
		if taken[k] {
			return ErrDuplicateSlot
		}
		taken[k] = true

		if slots[i].ID == uuid.Nil {
			slots[i].ID = uuid.New()
		}
		slots[i].CreatedAt = now
		slots[i].UpdatedAt = now
		remember(t, t.s.slots, slots[i].ID)
		t.s.slots[slots[i].ID] = slots[i]
	}
	return nil
}

func (t *memTx) DeleteWindow(_ context.Context, id uuid.UUID) error {
	if _, ok := t.s.windows[id]; !ok {
		return ErrWindowNotFound
	}
	for _, a := range t.s.appointments {
		if s, ok := t.s.slots[a.SlotID]; ok && s.WindowID == id {
			return ErrWindowInUse
		}
	}
	for sid, s := range t.s.slots {
		if s.WindowID == id {
			remember(t, t.s.slots, sid)
			delete(t.s.slots, sid)
		}
	}
	remember(t, t.s.windows, id)
	delete(t.s.windows, id)
	return nil
}

func (t *memTx) TransitionSlot(_ context.Context, id uuid.UUID, from, to SlotState) (*TimeSlot, error) {
	s, ok := t.s.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.State != from {
		return nil, ErrSlotUnavailable
	}
	s.State = to
	s.UpdatedAt = time.Now()
	remember(t, t.s.slots, id)
	t.s.slots[id] = s
	return &s, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *Appointment) error {
	if _, ok := t.s.patients[a.PatientID]; !ok {
		return ErrPatientNotFound
	}
	if _, ok := t.s.slots[a.SlotID]; !ok {
		return ErrSlotNotFound
	}
	for _, existing := range t.s.appointments {
		if existing.SlotID == a.SlotID && existing.Status != StatusCancelled {
			return ErrSlotUnavailable
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	remember(t, t.s.appointments, a.ID)
	t.s.appointments[a.ID] = *a
	return nil
}

func (t *memTx) TransitionAppointment(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	a, ok := t.s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	remember(t, t.s.appointments, id)
	t.s.appointments[id] = a
	return &a, nil
}

func (t *memTx) CompleteEnded(_ context.Context, now timemath.Moment) ([]Appointment, error) {
	var done []Appointment
	for id, a := range t.s.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		s, ok := t.s.slots[a.SlotID]
		if !ok {
			continue
		}
		end := timemath.Moment{Date: s.Date, Clock: s.EndTime}
		if now.Before(end) {
			continue
		}
		a.Status = StatusCompleted
		a.UpdatedAt = time.Now()
		remember(t, t.s.appointments, id)
		t.s.appointments[id] = a
		done = append(done, a)
	}
	return done, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = t.nextEvent + int64(len(t.events))
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	t.events = append(t.events, ev)
	return nil
}
