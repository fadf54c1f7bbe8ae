package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/doctor-availability-scheduling/internal/db"
	"github.com/hackgods/doctor-availability-scheduling/internal/timemath"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintWindowSession = "uq_windows_doctor_date_session"
	constraintSlotStart     = "uq_slots_doctor_date_start"
	constraintActiveSlot    = "uq_appointments_active_slot"
)

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	pgReader
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pgReader: pgReader{q: pool}, pool: pool}
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{pgReader: pgReader{q: tx}, tx: tx})
	})
}

type pgTx struct {
	pgReader
	tx pgx.Tx
}

type pgReader struct {
	q queryable
}

// Helpers

const (
	windowCols      = `id, doctor_id, date, start_time, end_time, weekdays, session, created_at`
	slotCols        = `id, doctor_id, window_id, date, start_time, end_time, state, created_at, updated_at`
	appointmentCols = `id, doctor_id, patient_id, slot_id, date, slot_time, status, created_at, updated_at`
)

func pgDate(d timemath.Date) pgtype.Date {
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func pgClock(c timemath.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c.Duration() / time.Microsecond), Valid: true}
}

func fromPgClock(t pgtype.Time) timemath.Clock {
	return timemath.Clock(t.Microseconds / int64(time.Second/time.Microsecond))
}

func weekdayNames(days []time.Weekday) []string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return names
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var date pgtype.Date
	var start, end pgtype.Time
	var weekdays []string

	err := row.Scan(&w.ID, &w.DoctorID, &date, &start, &end, &weekdays, &w.Session, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Date = timemath.DateOf(date.Time)
	w.StartTime = fromPgClock(start)
	w.EndTime = fromPgClock(end)
	for _, name := range weekdays {
		if wd, ok := timemath.ParseWeekday(name); ok {
			w.Weekdays = append(w.Weekdays, wd)
		}
	}
	return &w, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	var date pgtype.Date
	var start, end pgtype.Time

	err := row.Scan(&s.ID, &s.DoctorID, &s.WindowID, &date, &start, &end, &s.State, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Date = timemath.DateOf(date.Time)
	s.StartTime = fromPgClock(start)
	s.EndTime = fromPgClock(end)
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var at pgtype.Time

	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.SlotID, &date, &at, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = timemath.DateOf(date.Time)
	a.Time = fromPgClock(at)
	return &a, nil
}

func pgErrorCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func (r pgReader) exists(ctx context.Context, query string, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Reader

func (r pgReader) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id)
}

func (r pgReader) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, id)
}

func (r pgReader) GetWindow(ctx context.Context, id uuid.UUID) (*Window, error) {
	return scanWindow(r.q.QueryRow(ctx, `SELECT `+windowCols+` FROM availability_windows WHERE id = $1`, id))
}

func (r pgReader) ListWindows(ctx context.Context, doctorID uuid.UUID, date *timemath.Date) ([]Window, error) {
	query := `SELECT ` + windowCols + ` FROM availability_windows WHERE doctor_id = $1`
	args := []any{doctorID}
	if date != nil {
		query += ` AND date = $2`
		args = append(args, pgDate(*date))
	}
	query += ` ORDER BY date, start_time, id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func (r pgReader) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	return scanSlot(r.q.QueryRow(ctx, `SELECT `+slotCols+` FROM time_slots WHERE id = $1`, id))
}

func (r pgReader) ListSlotsByWindow(ctx context.Context, windowID uuid.UUID) ([]TimeSlot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotCols+`
		FROM time_slots
		WHERE window_id = $1
		ORDER BY date, start_time
	`, windowID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (r pgReader) ListAvailableSlots(ctx context.Context, q SlotQuery) ([]TimeSlot, int, error) {
	where := `doctor_id = $1 AND state = 'Available'`
	args := []any{q.DoctorID}

	switch {
	case q.Date != nil:
		where += ` AND date = $2`
		args = append(args, pgDate(*q.Date))
	case q.NotBefore != nil:
		where += ` AND (date > $2 OR (date = $2 AND start_time >= $3))`
		args = append(args, pgDate(q.NotBefore.Date), pgClock(q.NotBefore.Clock))
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM time_slots WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count available slots: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM time_slots WHERE %s ORDER BY date, start_time, id LIMIT $%d OFFSET $%d`,
		slotCols, where, len(args)+1, len(args)+2)
	rows, err := r.q.Query(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list available slots: %w", err)
	}
	items, err := collectSlots(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectSlots(rows pgx.Rows) ([]TimeSlot, error) {
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r pgReader) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
}

func (r pgReader) ListAppointments(ctx context.Context, q AppointmentQuery) ([]Appointment, int, error) {
	where := `1=1`
	var args []any
	idx := 1

	if q.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *q.DoctorID)
		idx++
	}
	if q.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *q.PatientID)
		idx++
	}
	if q.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *q.Status)
		idx++
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE %s ORDER BY date, slot_time, id LIMIT $%d OFFSET $%d`,
		appointmentCols, where, idx, idx+1)
	rows, err := r.q.Query(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Tx

func (t *pgTx) InsertWindow(ctx context.Context, w *Window) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_id, date, start_time, end_time, weekdays, session, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING created_at
	`, w.ID, w.DoctorID, pgDate(w.Date), pgClock(w.StartTime), pgClock(w.EndTime), weekdayNames(w.Weekdays), w.Session).
		Scan(&w.CreatedAt)
	if err != nil {
		if code, name := pgErrorCode(err); code == pgUniqueViolation && name == constraintWindowSession {
			return ErrDuplicateWindow
		}
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return ErrDoctorNotFound
		}
		return fmt.Errorf("insert window: %w", err)
	}
	return nil
}

func (t *pgTx) InsertSlots(ctx context.Context, slots []TimeSlot) error {
	now := time.Now()
	rows := make([][]any, len(slots))
	for i := range slots {
		if slots[i].ID == uuid.Nil {
			slots[i].ID = uuid.New()
		}
		slots[i].CreatedAt = now
		slots[i].UpdatedAt = now
		s := slots[i]
		rows[i] = []any{s.ID, s.DoctorID, s.WindowID, pgDate(s.Date), pgClock(s.StartTime), pgClock(s.EndTime), string(s.State), now, now}
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"time_slots"},
		[]string{"id", "doctor_id", "window_id", "date", "start_time", "end_time", "state", "created_at", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if code, name := pgErrorCode(err); code == pgUniqueViolation && name == constraintSlotStart {
			return ErrDuplicateSlot
		}
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM time_slots WHERE window_id = $1`, id); err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return ErrWindowInUse
		}
		return fmt.Errorf("delete window slots: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (t *pgTx) TransitionSlot(ctx context.Context, id uuid.UUID, from, to SlotState) (*TimeSlot, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE time_slots
		SET state = $3,
		    updated_at = now()
		WHERE id = $1
		  AND state = $2
		RETURNING `+slotCols, id, from, to)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// zero rows: either the slot is gone or it is not in the expected state
		found, exErr := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)`, id)
		if exErr != nil {
			return nil, fmt.Errorf("check slot: %w", exErr)
		}
		if found {
			return nil, ErrSlotUnavailable
		}
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transition slot: %w", err)
	}
	return slot, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_id, date, slot_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.DoctorID, a.PatientID, a.SlotID, pgDate(a.Date), pgClock(a.Time), a.Status).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if code, name := pgErrorCode(err); code == pgUniqueViolation && name == constraintActiveSlot {
			return ErrSlotUnavailable
		}
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return ErrPatientNotFound
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) TransitionAppointment(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentCols, id, from, to)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		found, exErr := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id)
		if exErr != nil {
			return nil, fmt.Errorf("check appointment: %w", exErr)
		}
		if found {
			return nil, ErrInvalidTransition
		}
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transition appointment: %w", err)
	}
	return appt, nil
}

func (t *pgTx) CompleteEnded(ctx context.Context, now timemath.Moment) ([]Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE appointments a
		SET status = 'Completed',
		    updated_at = now()
		FROM time_slots s
		WHERE a.slot_id = s.id
		  AND a.status = 'Scheduled'
		  AND (s.date < $1 OR (s.date = $1 AND s.end_time <= $2))
		RETURNING a.id, a.doctor_id, a.patient_id, a.slot_id, a.date, a.slot_time, a.status, a.created_at, a.updated_at
	`, pgDate(now.Date), pgClock(now.Clock))
	if err != nil {
		return nil, fmt.Errorf("complete ended appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// InsertEvent writes inside a savepoint so a failed audit insert does not
// abort the surrounding transaction.
func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin event savepoint: %w", err)
	}

	_, err = sp.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, window_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.WindowID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("insert event log: %w", err)
	}

	return sp.Commit(ctx)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
