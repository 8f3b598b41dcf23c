package booking

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an appointment does not exist or does not
	// belong to the requesting client.
	ErrNotFound = errors.New("booking: appointment not found")

	// ErrSlotTaken is returned when a create or reschedule loses the race for
	// a slot that was free at validation time.
	ErrSlotTaken = errors.New("booking: slot already taken")
)

// CreateParams carries everything needed to insert a new appointment.
type CreateParams struct {
	ClientPhone     string
	PatientName     string
	DoctorID        int
	ServiceID       int
	Date            string
	Time            string
	DurationMinutes int
	Price           int
	Notes           string
}

// RescheduleResult reports the slot an appointment was moved from.
type RescheduleResult struct {
	Appointment Appointment
	OldDate     string
	OldTime     string
}

// ReminderKind selects which reminder flag DueReminders inspects.
type ReminderKind string

const (
	Reminder24h = ReminderKind("24h")
	Reminder2h  = ReminderKind("2h")
	Reminder1h  = ReminderKind("1h")
)

// Repository is the appointment store. Create and Reschedule serialize
// concurrent writers for the same doctor and return ErrSlotTaken on overlap.
type Repository interface {
	Create(ctx context.Context, p CreateParams) (Appointment, error)
	GetByID(ctx context.Context, id int) (Appointment, error)
	Cancel(ctx context.Context, id int, clientPhone, reason string) (Appointment, error)
	Reschedule(ctx context.Context, id int, clientPhone, newDate, newTime string) (RescheduleResult, error)

	ListByClient(ctx context.Context, phone string, limit int) ([]Appointment, error)
	ListUpcoming(ctx context.Context, phone string) ([]Appointment, error)
	ListByDate(ctx context.Context, date string) ([]Appointment, error)
	ListRange(ctx context.Context, from, to string) ([]Appointment, error)
	ListBusy(ctx context.Context, doctorID int, date string) ([]Appointment, error)

	SetDoctorAbsence(ctx context.Context, doctorID int, from, to, reason string) (AbsenceResult, error)
	ScheduleFollowUp(ctx context.Context, id int, date, notes string) (Appointment, error)
	MarkNoShow(ctx context.Context, id int) (Appointment, error)
	RecordPayment(ctx context.Context, id, amount int, status string) (Appointment, error)
	MarkCompleted(ctx context.Context, before time.Time) (int, error)
	UpdateCalendarEventID(ctx context.Context, id int, eventID string) error

	MonthStats(ctx context.Context, year, month int) (MonthStats, error)
	DueReminders(ctx context.Context, kind ReminderKind, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id int, kind ReminderKind) error
	DueFollowUps(ctx context.Context, date string) ([]Appointment, error)
}
