package clinic

import (
	"strings"
	"time"
)

// Doctor is a practitioner patients can be booked with. Inactive doctors are
// excluded from new bookings but remain referenced by historical appointments.
type Doctor struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	ExperienceYrs  int    `json:"experience_years,omitempty"`
	IsActive       bool   `json:"is_active"`
}

// Service is a billable clinic procedure.
type Service struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Price           int    `json:"price"`
	DurationMinutes int    `json:"duration_minutes"`
	IsActive        bool   `json:"is_active"`
}

// Schedule is a doctor's working interval for one weekday. A doctor with no
// schedule row for a weekday is unavailable that day unless the clinic default
// applies.
type Schedule struct {
	DoctorID int    `json:"doctor_id"`
	Weekday  int    `json:"weekday"` // 0=Monday .. 6=Sunday
	Start    string `json:"start"`   // HH:MM
	End      string `json:"end"`     // HH:MM
}

// Absence is a closed date range during which a doctor is unavailable
// regardless of schedule.
type Absence struct {
	ID       int       `json:"id"`
	DoctorID int       `json:"doctor_id"`
	Start    time.Time `json:"start_date"`
	End      time.Time `json:"end_date"`
	Reason   string    `json:"reason"`
}

// Info is static clinic contact data surfaced to patients via the
// get_clinic_info tool.
type Info struct {
	Name               string            `json:"name"`
	Address            string            `json:"address"`
	Phone              string            `json:"phone"`
	Hours              map[string]string `json:"hours"`
	CancellationPolicy string            `json:"cancellation_policy"`
}

// DefaultHours is the clinic-wide fallback used when a doctor has no
// individual schedule row.
var DefaultHours = map[string]string{
	"Monday":    "09:00-18:00",
	"Tuesday":   "09:00-18:00",
	"Wednesday": "09:00-18:00",
	"Thursday":  "09:00-18:00",
	"Friday":    "09:00-18:00",
	"Saturday":  "10:00-16:00",
	"Sunday":    "closed",
}

// DefaultHoursFor returns the clinic default open/close times for a weekday.
// open is false on days the clinic is closed.
func DefaultHoursFor(d time.Weekday) (start, end string, open bool) {
	hours := DefaultHours[WeekdayName(WeekdayIndex(d))]
	if hours == "" || hours == "closed" {
		return "", "", false
	}
	parts := strings.SplitN(hours, "-", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// WeekdayIndex converts a time.Weekday to the Monday-based index used by
// schedule rows.
func WeekdayIndex(d time.Weekday) int {
	if d == time.Sunday {
		return 6
	}
	return int(d) - 1
}

var weekdayNames = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// WeekdayName returns the schedule-row weekday name for a Monday-based index.
func WeekdayName(idx int) string {
	if idx < 0 || idx >= len(weekdayNames) {
		return ""
	}
	return weekdayNames[idx]
}
