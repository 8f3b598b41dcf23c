// Package gsync mirrors appointments into Google Calendar and Google Sheets.
// Everything here is best-effort: a booking must never fail because an
// external mirror is down, so errors are logged by callers and swallowed.
package gsync

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// Calendar event colors.
const (
	colorActive      = "10" // green
	colorCancelled   = "11" // red
	colorRescheduled = "5"  // yellow
	colorCompleted   = "8"  // gray
)

// Calendar mirrors appointments as events on one clinic calendar. A nil
// *Calendar is valid and every method is a no-op, which is how the service
// runs when Google credentials are not configured.
type Calendar struct {
	svc        *calendar.Service
	calendarID string
	timezone   string
	log        *logging.Logger
}

// NewCalendar builds the mirror from a service account credentials file.
// Returns nil (not an error) when credentialsPath or calendarID is empty.
func NewCalendar(ctx context.Context, credentialsPath, calendarID, timezone string, log *logging.Logger) (*Calendar, error) {
	if credentialsPath == "" || calendarID == "" {
		return nil, nil
	}
	svc, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(calendar.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("gsync: calendar service: %w", err)
	}
	return &Calendar{svc: svc, calendarID: calendarID, timezone: timezone, log: log}, nil
}

// CreateEvent inserts a green event for a new appointment and returns its id.
func (c *Calendar) CreateEvent(ctx context.Context, a booking.Appointment) (string, error) {
	if c == nil {
		return "", nil
	}
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		loc = time.UTC
	}
	start, err := a.StartsAt(loc)
	if err != nil {
		return "", fmt.Errorf("gsync: event time: %w", err)
	}
	end := start.Add(time.Duration(a.DurationMinutes) * time.Minute)

	event := &calendar.Event{
		Summary: fmt.Sprintf("%s - %s", a.ServiceName, displayName(a)),
		Description: fmt.Sprintf(
			"Patient: %s\nPhone: %s\nService: %s\nPrice: %d\nStatus: active",
			displayName(a), a.ClientPhone, a.ServiceName, a.Price),
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.timezone},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.timezone},
		ColorId: colorActive,
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: 24 * 60},
				{Method: "popup", Minutes: 120},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := c.svc.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gsync: insert event: %w", err)
	}
	return created.Id, nil
}

// MoveEvent updates an event's time and marks it yellow for rescheduled.
func (c *Calendar) MoveEvent(ctx context.Context, eventID string, a booking.Appointment) error {
	if c == nil || eventID == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.timezone)
	if err != nil {
		loc = time.UTC
	}
	start, err := a.StartsAt(loc)
	if err != nil {
		return fmt.Errorf("gsync: event time: %w", err)
	}
	end := start.Add(time.Duration(a.DurationMinutes) * time.Minute)

	patch := &calendar.Event{
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: c.timezone},
		End:     &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: c.timezone},
		ColorId: colorRescheduled,
	}
	if _, err := c.svc.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsync: patch event: %w", err)
	}
	return nil
}

// CancelEvent recolors an event red and appends the cancellation reason.
// The event is kept on the calendar so staff can see what fell through.
func (c *Calendar) CancelEvent(ctx context.Context, eventID, reason string) error {
	if c == nil || eventID == "" {
		return nil
	}
	desc := "Status: CANCELLED"
	if reason != "" {
		desc += "\nReason: " + reason
	}
	patch := &calendar.Event{Description: desc, ColorId: colorCancelled}
	if _, err := c.svc.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsync: patch event: %w", err)
	}
	return nil
}

// CompleteEvent recolors an event gray after the visit happened.
func (c *Calendar) CompleteEvent(ctx context.Context, eventID string) error {
	if c == nil || eventID == "" {
		return nil
	}
	patch := &calendar.Event{ColorId: colorCompleted}
	if _, err := c.svc.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gsync: patch event: %w", err)
	}
	return nil
}

func displayName(a booking.Appointment) string {
	if a.PatientName != "" {
		return a.PatientName
	}
	if a.ClientName != "" {
		return a.ClientName
	}
	return "client"
}
