package booking

import (
	"sort"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
)

// FreeSlots computes open slots for a date across the given doctors.
// Schedules are keyed by doctor ID for that date's weekday; doctors without
// one fall back to the clinic default hours. Absent doctors are skipped, and
// slots overlapping a scheduled appointment or before "now" are excluded.
func FreeSlots(
	date string,
	doctors []clinic.Doctor,
	schedules map[int]clinic.Schedule,
	absent map[int]bool,
	busy []Appointment,
	now time.Time,
	slotMinutes int,
) ([]FreeSlot, error) {
	day, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return nil, err
	}

	defOpen, defClose, open := clinic.DefaultHoursFor(day.Weekday())

	busyByDoctor := make(map[int][]Appointment)
	for _, a := range busy {
		if a.Status == StatusScheduled && a.Date == date {
			busyByDoctor[a.DoctorID] = append(busyByDoctor[a.DoctorID], a)
		}
	}

	var slots []FreeSlot
	for _, d := range doctors {
		if absent[d.ID] {
			continue
		}

		startStr, endStr := defOpen, defClose
		if sch, ok := schedules[d.ID]; ok {
			startStr, endStr = sch.Start, sch.End
		} else if !open {
			continue
		}
		if startStr == "" || endStr == "" {
			continue
		}

		start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+startStr, now.Location())
		if err != nil {
			continue
		}
		end, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+endStr, now.Location())
		if err != nil {
			continue
		}

		step := time.Duration(slotMinutes) * time.Minute
		for t := start; t.Add(step).Before(end) || t.Add(step).Equal(end); t = t.Add(step) {
			if t.Before(now) {
				continue
			}
			if conflictsWith(t, slotMinutes, busyByDoctor[d.ID], 0, now.Location()) {
				continue
			}
			slots = append(slots, FreeSlot{
				DoctorID:   d.ID,
				DoctorName: d.Name,
				Time:       t.Format(TimeLayout),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Time != slots[j].Time {
			return slots[i].Time < slots[j].Time
		}
		return slots[i].DoctorID < slots[j].DoctorID
	})
	return slots, nil
}
