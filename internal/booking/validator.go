package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
)

// Validation reason codes. These are business outcomes, not errors; they are
// relayed to the model as tool output so it can explain the problem to the
// user.
const (
	ReasonPastSlot      = "past_slot"
	ReasonBeyondHorizon = "beyond_horizon"
	ReasonOffGrid       = "off_grid"
	ReasonSlotTaken     = "slot_unavailable"
	ReasonNotScheduled  = "not_scheduled"
	ReasonTooLate       = "cancellation_window_passed"
	ReasonBadInput      = "bad_input"
)

// ValidationResult is the outcome of a pre-mutation check. CorrectedTime is
// set when a misaligned time was rounded to the nearest grid slot.
type ValidationResult struct {
	Valid         bool
	Reason        string
	Message       string
	CorrectedTime string
}

func invalid(reason, format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Rules carries the scheduling invariants. All checks are pure: "now" is
// injected by the caller, already in the clinic timezone.
type Rules struct {
	HorizonDays     int // maximum days ahead a booking may be made
	GridMinutes     int // slot grid, e.g. 30
	CancelLeadHours int // minimum hours before start for cancel/reschedule
	ClosingHour     int // rounding up past this hour fails instead
}

// DefaultRules mirrors the clinic policy: 60-day horizon, 30-minute grid,
// 2-hour cancellation lead, 18:00 closing.
func DefaultRules() Rules {
	return Rules{HorizonDays: 60, GridMinutes: 30, CancelLeadHours: 2, ClosingHour: 18}
}

// ValidateAppointmentTime checks a candidate slot for a new booking.
// Misaligned minutes produce a CorrectedTime rounded to the nearest grid slot
// (exact midpoints round up); rounding past closing is rejected outright.
// busy must contain the doctor's scheduled appointments for the date.
func (r Rules) ValidateAppointmentTime(date, t string, now time.Time, busy []Appointment, durationMinutes int) ValidationResult {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+t, now.Location())
	if err != nil {
		return invalid(ReasonBadInput, "invalid date or time: use YYYY-MM-DD and HH:MM")
	}

	if start.Before(now) {
		return invalid(ReasonPastSlot, "cannot book a past date or time, please pick a future slot")
	}

	horizon := now.AddDate(0, 0, r.HorizonDays)
	if start.After(horizon) {
		return invalid(ReasonBeyondHorizon, "bookings are accepted at most %d days ahead", r.HorizonDays)
	}

	corrected := ""
	if start.Minute()%r.GridMinutes != 0 {
		rounded, ok := r.roundToGrid(start)
		if !ok {
			return invalid(ReasonOffGrid,
				"time %s is not bookable: appointments start every %d minutes (e.g. 15:00 or 15:30)",
				t, r.GridMinutes)
		}
		corrected = rounded.Format(TimeLayout)
		start = rounded
		// rounding down can land before now even when the requested time
		// was in the future
		if start.Before(now) {
			return invalid(ReasonPastSlot, "cannot book a past date or time, please pick a future slot")
		}
	}

	if conflictsWith(start, durationMinutes, busy, 0, now.Location()) {
		return invalid(ReasonSlotTaken, "slot %s on %s is already taken for this doctor", start.Format(TimeLayout), date)
	}

	return ValidationResult{Valid: true, CorrectedTime: corrected}
}

// ValidateCancellation requires the appointment to still be scheduled and its
// start to be at least CancelLeadHours away.
func (r Rules) ValidateCancellation(a Appointment, now time.Time) ValidationResult {
	if a.Status != StatusScheduled {
		return invalid(ReasonNotScheduled, "appointment %d is %s and cannot be cancelled", a.ID, a.Status)
	}

	start, err := a.StartsAt(now.Location())
	if err != nil {
		return invalid(ReasonBadInput, "appointment %d has a malformed date/time", a.ID)
	}

	if start.Sub(now) < time.Duration(r.CancelLeadHours)*time.Hour {
		return invalid(ReasonTooLate,
			"cancellations must be made at least %d hours before the appointment", r.CancelLeadHours)
	}

	return ValidationResult{Valid: true}
}

// ValidateReschedule applies the creation rules to the new slot and requires
// the target appointment to currently be scheduled. busy must exclude the
// appointment being moved.
func (r Rules) ValidateReschedule(a Appointment, newDate, newTime string, now time.Time, busy []Appointment) ValidationResult {
	if a.Status != StatusScheduled {
		return invalid(ReasonNotScheduled, "appointment %d is %s and cannot be rescheduled", a.ID, a.Status)
	}
	res := r.ValidateAppointmentTime(newDate, newTime, now, busy, a.DurationMinutes)
	if !res.Valid && res.Reason == ReasonSlotTaken {
		res.Message = fmt.Sprintf("slot %s on %s is already taken, offer another time or show free slots", newTime, newDate)
	}
	return res
}

// roundToGrid rounds a misaligned time to the nearest grid slot; ties round
// up. Returns false when rounding would land at or past the closing hour.
func (r Rules) roundToGrid(t time.Time) (time.Time, bool) {
	grid := time.Duration(r.GridMinutes) * time.Minute
	offset := time.Duration(t.Minute()%r.GridMinutes) * time.Minute

	var rounded time.Time
	if offset*2 < grid {
		rounded = t.Add(-offset)
	} else {
		rounded = t.Add(grid - offset)
	}
	rounded = rounded.Truncate(time.Minute)

	if rounded.Hour()*60+rounded.Minute() >= r.ClosingHour*60 {
		return time.Time{}, false
	}
	return rounded, true
}

// conflictsWith reports whether [start, start+duration) overlaps any busy
// appointment for the same doctor, ignoring the appointment with skipID.
func conflictsWith(start time.Time, durationMinutes int, busy []Appointment, skipID int, loc *time.Location) bool {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for _, b := range busy {
		if b.ID == skipID && skipID != 0 {
			continue
		}
		if b.Status != StatusScheduled {
			continue
		}
		bStart, err := b.StartsAt(loc)
		if err != nil {
			continue
		}
		bEnd := bStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
		if start.Before(bEnd) && bStart.Before(end) {
			return true
		}
	}
	return false
}

// FindDoctorByName does a case-insensitive containment match in either
// direction, matching how patients type partial names. Returns nil when
// nothing matches; disambiguation stays with the caller.
func FindDoctorByName(name string, doctors []clinic.Doctor) *clinic.Doctor {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range doctors {
		hay := strings.ToLower(doctors[i].Name)
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return &doctors[i]
		}
	}
	return nil
}

// FindServiceByName mirrors FindDoctorByName for services.
func FindServiceByName(name string, services []clinic.Service) *clinic.Service {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range services {
		hay := strings.ToLower(services[i].Name)
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return &services[i]
		}
	}
	return nil
}
