package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores appointments in the relational database. Slot writes
// run in a transaction that locks the doctor's rows for the date, so two
// concurrent bookings for the same slot cannot both commit.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository initializes a repo backed by pgxpool.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	a.id, a.client_phone, COALESCE(c.name, ''), COALESCE(a.patient_name, ''),
	a.doctor_id, d.name, a.service_id, s.name,
	to_char(a.date, 'YYYY-MM-DD'), to_char(a.time, 'HH24:MI'),
	a.duration_minutes, a.price, a.status,
	COALESCE(a.notes, ''), COALESCE(a.cancellation_reason, ''),
	COALESCE(to_char(a.follow_up_date, 'YYYY-MM-DD'), ''), COALESCE(a.follow_up_notes, ''),
	COALESCE(a.actual_price, 0), COALESCE(a.payment_status, ''),
	COALESCE(a.calendar_event_id, '')`

const appointmentJoins = `
	FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN services s ON s.id = a.service_id
	LEFT JOIN clients c ON c.phone = a.client_phone`

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.ClientPhone, &a.ClientName, &a.PatientName,
		&a.DoctorID, &a.DoctorName, &a.ServiceID, &a.ServiceName,
		&a.Date, &a.Time,
		&a.DurationMinutes, &a.Price, &a.Status,
		&a.Notes, &a.CancellationReason,
		&a.FollowUpDate, &a.FollowUpNotes,
		&a.ActualPrice, &a.PaymentStatus,
		&a.CalendarEventID,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// lockAndCheckOverlap takes row locks on the doctor's scheduled appointments
// for the date, then reports whether [t, t+duration) collides with any of
// them. Must run inside a transaction. skipID excludes the appointment being
// rescheduled.
func lockAndCheckOverlap(ctx context.Context, tx pgx.Tx, doctorID int, date, t string, durationMinutes, skipID int) (bool, error) {
	_, err := tx.Exec(ctx, `
		SELECT 1 FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND status = 'scheduled'
		FOR UPDATE`,
		doctorID, date)
	if err != nil {
		return false, fmt.Errorf("booking: lock doctor slots: %w", err)
	}

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND status = 'scheduled' AND id <> $5
			  AND time < $3::time + make_interval(mins => $4)
			  AND time + make_interval(mins => duration_minutes) > $3::time
		)`,
		doctorID, date, t, durationMinutes, skipID).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("booking: overlap check: %w", err)
	}
	return conflict, nil
}

// Create inserts a new appointment after re-checking the slot under a row
// lock. Returns ErrSlotTaken if a concurrent writer got there first.
func (r *PgRepository) Create(ctx context.Context, p CreateParams) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	conflict, err := lockAndCheckOverlap(ctx, tx, p.DoctorID, p.Date, p.Time, p.DurationMinutes, 0)
	if err != nil {
		return Appointment{}, err
	}
	if conflict {
		return Appointment{}, ErrSlotTaken
	}

	var id int
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_phone, patient_name, doctor_id, service_id, date, time,
			 duration_minutes, price, status, notes)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, 'scheduled', NULLIF($9, ''))
		RETURNING id`,
		p.ClientPhone, p.PatientName, p.DoctorID, p.ServiceID, p.Date, p.Time,
		p.DurationMinutes, p.Price, p.Notes).Scan(&id)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: insert failed: %w", err)
	}

	a, err := scanAppointment(tx.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+` WHERE a.id = $1`, id))
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: read back failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Appointment{}, fmt.Errorf("booking: commit: %w", err)
	}
	return a, nil
}

// GetByID fetches one appointment.
func (r *PgRepository) GetByID(ctx context.Context, id int) (Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, fmt.Errorf("booking: select failed: %w", err)
	}
	return a, nil
}

// Cancel marks a scheduled appointment cancelled. When clientPhone is
// non-empty the update is scoped to that client, so patients cannot cancel
// someone else's visit.
func (r *PgRepository) Cancel(ctx context.Context, id int, clientPhone, reason string) (Appointment, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancellation_reason = NULLIF($3, '')
		WHERE id = $1 AND status = 'scheduled'
		  AND ($2 = '' OR client_phone = $2)`,
		id, clientPhone, reason)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: cancel failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Reschedule moves a scheduled appointment to a new slot, re-checking for
// overlap under a row lock and resetting reminder flags so the new time gets
// its own reminders.
func (r *PgRepository) Reschedule(ctx context.Context, id int, clientPhone, newDate, newTime string) (RescheduleResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var doctorID, duration int
	var oldDate, oldTime string
	err = tx.QueryRow(ctx, `
		SELECT doctor_id, duration_minutes,
		       to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI')
		FROM appointments
		WHERE id = $1 AND status = 'scheduled'
		  AND ($2 = '' OR client_phone = $2)
		FOR UPDATE`,
		id, clientPhone).Scan(&doctorID, &duration, &oldDate, &oldTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RescheduleResult{}, ErrNotFound
		}
		return RescheduleResult{}, fmt.Errorf("booking: select for reschedule: %w", err)
	}

	conflict, err := lockAndCheckOverlap(ctx, tx, doctorID, newDate, newTime, duration, id)
	if err != nil {
		return RescheduleResult{}, err
	}
	if conflict {
		return RescheduleResult{}, ErrSlotTaken
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, time = $3,
		    reminder_24h_sent = FALSE, reminder_2h_sent = FALSE, reminder_1h_sent = FALSE
		WHERE id = $1`,
		id, newDate, newTime)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("booking: reschedule update: %w", err)
	}

	a, err := scanAppointment(tx.QueryRow(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+` WHERE a.id = $1`, id))
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("booking: read back failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RescheduleResult{}, fmt.Errorf("booking: commit: %w", err)
	}
	return RescheduleResult{Appointment: a, OldDate: oldDate, OldTime: oldTime}, nil
}

// ListByClient returns the client's most recent appointments, newest first.
func (r *PgRepository) ListByClient(ctx context.Context, phone string, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.client_phone = $1
		ORDER BY a.date DESC, a.time DESC
		LIMIT $2`,
		phone, limit)
	if err != nil {
		return nil, fmt.Errorf("booking: list by client: %w", err)
	}
	return collectAppointments(rows)
}

// ListUpcoming returns the client's scheduled future appointments, soonest
// first.
func (r *PgRepository) ListUpcoming(ctx context.Context, phone string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.client_phone = $1 AND a.status = 'scheduled'
		  AND (a.date > CURRENT_DATE OR (a.date = CURRENT_DATE AND a.time >= CURRENT_TIME))
		ORDER BY a.date, a.time`,
		phone)
	if err != nil {
		return nil, fmt.Errorf("booking: list upcoming: %w", err)
	}
	return collectAppointments(rows)
}

// ListByDate returns all scheduled appointments on a date.
func (r *PgRepository) ListByDate(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.date = $1 AND a.status = 'scheduled'
		ORDER BY a.time, a.doctor_id`,
		date)
	if err != nil {
		return nil, fmt.Errorf("booking: list by date: %w", err)
	}
	return collectAppointments(rows)
}

// ListRange returns every appointment in the inclusive date range regardless
// of status, for admin reports.
func (r *PgRepository) ListRange(ctx context.Context, from, to string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.date BETWEEN $1 AND $2
		ORDER BY a.date, a.time, a.doctor_id`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: list range: %w", err)
	}
	return collectAppointments(rows)
}

// ListBusy returns the doctor's scheduled appointments on a date, used to
// compute free slots and validate candidates.
func (r *PgRepository) ListBusy(ctx context.Context, doctorID int, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.doctor_id = $1 AND a.date = $2 AND a.status = 'scheduled'
		ORDER BY a.time`,
		doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: list busy: %w", err)
	}
	return collectAppointments(rows)
}

// SetDoctorAbsence records an absence and bulk-cancels the doctor's
// scheduled appointments in the range. Returns the affected appointments so
// their clients can be notified.
func (r *PgRepository) SetDoctorAbsence(ctx context.Context, doctorID int, from, to, reason string) (AbsenceResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var absenceID int
	err = tx.QueryRow(ctx, `
		INSERT INTO doctor_absences (doctor_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id`,
		doctorID, from, to, reason).Scan(&absenceID)
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: insert absence: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.doctor_id = $1 AND a.status = 'scheduled'
		  AND a.date BETWEEN $2 AND $3
		ORDER BY a.date, a.time
		FOR UPDATE OF a`,
		doctorID, from, to)
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: select affected: %w", err)
	}
	affected, err := collectAppointments(rows)
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: collect affected: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancellation_reason = $4
		WHERE doctor_id = $1 AND status = 'scheduled'
		  AND date BETWEEN $2 AND $3`,
		doctorID, from, to, "doctor unavailable: "+reason)
	if err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: bulk cancel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AbsenceResult{}, fmt.Errorf("booking: commit: %w", err)
	}
	return AbsenceResult{
		AbsenceID:      absenceID,
		CancelledCount: int(tag.RowsAffected()),
		Affected:       affected,
	}, nil
}

// ScheduleFollowUp attaches a follow-up date and notes to an appointment.
func (r *PgRepository) ScheduleFollowUp(ctx context.Context, id int, date, notes string) (Appointment, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET follow_up_date = $2, follow_up_notes = NULLIF($3, '')
		WHERE id = $1`,
		id, date, notes)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: schedule follow-up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// MarkNoShow flags a scheduled appointment whose client never arrived.
func (r *PgRepository) MarkNoShow(ctx context.Context, id int) (Appointment, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = 'no_show'
		WHERE id = $1 AND status = 'scheduled'`,
		id)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: mark no-show: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// RecordPayment stores the actual amount paid and the payment status, and
// marks the visit completed.
func (r *PgRepository) RecordPayment(ctx context.Context, id, amount int, status string) (Appointment, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET actual_price = $2, payment_status = $3,
		    status = CASE WHEN status = 'scheduled' THEN 'completed' ELSE status END
		WHERE id = $1`,
		id, amount, status)
	if err != nil {
		return Appointment{}, fmt.Errorf("booking: record payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Appointment{}, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// MarkCompleted transitions scheduled appointments whose end time is before
// the cutoff to completed. Returns the number of rows updated.
func (r *PgRepository) MarkCompleted(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = 'completed'
		WHERE status = 'scheduled'
		  AND (date + time + make_interval(mins => duration_minutes)) < $1`,
		before)
	if err != nil {
		return 0, fmt.Errorf("booking: mark completed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateCalendarEventID stores the external calendar event linked to an
// appointment.
func (r *PgRepository) UpdateCalendarEventID(ctx context.Context, id int, eventID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE appointments SET calendar_event_id = $2 WHERE id = $1`,
		id, eventID)
	if err != nil {
		return fmt.Errorf("booking: update calendar event: %w", err)
	}
	return nil
}

// MonthStats aggregates one calendar month for admin reports. Revenue counts
// actual prices where recorded, falling back to the list price.
func (r *PgRepository) MonthStats(ctx context.Context, year, month int) (MonthStats, error) {
	stats := MonthStats{Year: year, Month: month}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COUNT(*) FILTER (WHERE status = 'no_show'),
			COALESCE(SUM(CASE WHEN status = 'completed'
				THEN COALESCE(NULLIF(actual_price, 0), price) ELSE 0 END), 0),
			COUNT(DISTINCT client_phone)
		FROM appointments
		WHERE EXTRACT(YEAR FROM date) = $1 AND EXTRACT(MONTH FROM date) = $2`,
		year, month).Scan(
		&stats.Total, &stats.Completed, &stats.Cancelled, &stats.NoShow,
		&stats.Revenue, &stats.UniqueClients)
	if err != nil {
		return MonthStats{}, fmt.Errorf("booking: month stats: %w", err)
	}
	return stats, nil
}

var reminderFlags = map[ReminderKind]string{
	Reminder24h: "reminder_24h_sent",
	Reminder2h:  "reminder_2h_sent",
	Reminder1h:  "reminder_1h_sent",
}

// DueReminders returns scheduled appointments starting inside [from, to)
// whose flag for the kind is still unset.
func (r *PgRepository) DueReminders(ctx context.Context, kind ReminderKind, from, to time.Time) ([]Appointment, error) {
	flag, ok := reminderFlags[kind]
	if !ok {
		return nil, fmt.Errorf("booking: unknown reminder kind %q", kind)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.status = 'scheduled' AND NOT a.`+flag+`
		  AND (a.date + a.time) >= $1 AND (a.date + a.time) < $2
		ORDER BY a.date, a.time`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("booking: due reminders: %w", err)
	}
	return collectAppointments(rows)
}

// MarkReminderSent sets the flag for one reminder kind.
func (r *PgRepository) MarkReminderSent(ctx context.Context, id int, kind ReminderKind) error {
	flag, ok := reminderFlags[kind]
	if !ok {
		return fmt.Errorf("booking: unknown reminder kind %q", kind)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE appointments SET `+flag+` = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("booking: mark reminder sent: %w", err)
	}
	return nil
}

// DueFollowUps returns completed appointments whose follow-up date is the
// given day, so clients can be invited back.
func (r *PgRepository) DueFollowUps(ctx context.Context, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+appointmentJoins+`
		WHERE a.follow_up_date = $1 AND a.status = 'completed'
		ORDER BY a.client_phone`,
		date)
	if err != nil {
		return nil, fmt.Errorf("booking: due follow-ups: %w", err)
	}
	return collectAppointments(rows)
}
