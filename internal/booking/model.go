package booking

import "time"

// Appointment statuses. Transitions are one-directional except reschedule,
// which keeps the row but replaces date/time and clears reminder flags.
const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Payment statuses recorded against a completed visit.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentPartial  = "partial"
	PaymentRefunded = "refunded"
)

// DateLayout and TimeLayout are the wire formats used by tools and storage.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is a booked visit joined with its client, doctor, and service.
type Appointment struct {
	ID                 int    `json:"appointment_id"`
	ClientPhone        string `json:"client_phone"`
	ClientName         string `json:"client_name,omitempty"`
	PatientName        string `json:"patient_name,omitempty"` // set when booked for a dependent
	DoctorID           int    `json:"doctor_id"`
	DoctorName         string `json:"doctor_name"`
	ServiceID          int    `json:"service_id"`
	ServiceName        string `json:"service_name"`
	Date               string `json:"date"` // YYYY-MM-DD
	Time               string `json:"time"` // HH:MM
	DurationMinutes    int    `json:"duration_minutes"`
	Price              int    `json:"price"`
	Status             string `json:"status"`
	Notes              string `json:"notes,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	FollowUpDate       string `json:"follow_up_date,omitempty"`
	FollowUpNotes      string `json:"follow_up_notes,omitempty"`
	ActualPrice        int    `json:"actual_price,omitempty"`
	PaymentStatus      string `json:"payment_status,omitempty"`
	CalendarEventID    string `json:"-"`
}

// StartsAt combines the appointment date and time in the given location.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, a.Date+" "+a.Time, loc)
}

// FreeSlot is one bookable doctor/time combination on a date.
type FreeSlot struct {
	DoctorID   int    `json:"doctor_id"`
	DoctorName string `json:"doctor_name"`
	Time       string `json:"time"`
}

// MonthStats is an aggregate report for one calendar month.
type MonthStats struct {
	Year          int `json:"year"`
	Month         int `json:"month"`
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	Cancelled     int `json:"cancelled"`
	NoShow        int `json:"no_show"`
	Revenue       int `json:"revenue"`
	UniqueClients int `json:"unique_clients"`
}

// AbsenceResult reports the outcome of registering a doctor absence.
type AbsenceResult struct {
	AbsenceID      int
	CancelledCount int
	Affected       []Appointment
}
