// Package scheduler runs the periodic jobs: appointment reminders, marking
// finished visits as completed, and follow-up invitations.
package scheduler

import (
	"context"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// reminderJob couples a reminder kind with its look-ahead window and the
// phrasing the patient sees.
type reminderJob struct {
	kind booking.ReminderKind
	lead time.Duration
	text string
}

// followUpLeadDays is how far ahead of the planned return date the
// invitation goes out.
const followUpLeadDays = 3

var reminderJobs = []reminderJob{
	{kind: booking.Reminder24h, lead: 24 * time.Hour, text: "tomorrow"},
	{kind: booking.Reminder2h, lead: 2 * time.Hour, text: "in 2 hours"},
	{kind: booking.Reminder1h, lead: time.Hour, text: "in 1 hour"},
}

// Store is the slice of the booking repository the scheduler needs.
type Store interface {
	DueReminders(ctx context.Context, kind booking.ReminderKind, from, to time.Time) ([]booking.Appointment, error)
	MarkReminderSent(ctx context.Context, id int, kind booking.ReminderKind) error
	MarkCompleted(ctx context.Context, before time.Time) (int, error)
	DueFollowUps(ctx context.Context, date string) ([]booking.Appointment, error)
}

// Notifier delivers patient-facing scheduler messages.
type Notifier interface {
	Reminder(ctx context.Context, a booking.Appointment, lead string)
	FollowUpInvite(ctx context.Context, a booking.Appointment)
}

// Config wires the scheduler.
type Config struct {
	Store    Store
	Notifier Notifier
	Logger   *logging.Logger
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Scheduler ticks every Interval and runs all due jobs. Reminder sends are
// recorded before delivery, so a crashed send costs one reminder instead of
// spamming the patient on every later tick.
type Scheduler struct {
	store    Store
	notifier Notifier
	log      *logging.Logger
	interval time.Duration
	loc      *time.Location
	now      func() time.Time

	lastFollowUpDate string
}

// New validates dependencies and builds the scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Store == nil {
		panic("scheduler: store required")
	}
	if cfg.Notifier == nil {
		panic("scheduler: notifier required")
	}
	if cfg.Logger == nil {
		panic("scheduler: logger required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		loc := cfg.Location
		cfg.Now = func() time.Time { return time.Now().In(loc) }
	}
	return &Scheduler{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		interval: cfg.Interval,
		loc:      cfg.Location,
		now:      cfg.Now,
	}
}

// Run blocks until ctx is cancelled, executing all jobs once per interval.
// The first pass runs immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single pass of every job.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sendReminders(ctx)
	s.completeFinished(ctx)
	s.inviteFollowUps(ctx)
}

func (s *Scheduler) sendReminders(ctx context.Context) {
	now := s.now()
	for _, job := range reminderJobs {
		due, err := s.store.DueReminders(ctx, job.kind, now, now.Add(job.lead))
		if err != nil {
			s.log.Error("reminder query failed", "kind", string(job.kind), "error", err)
			continue
		}
		for _, a := range due {
			if err := s.store.MarkReminderSent(ctx, a.ID, job.kind); err != nil {
				s.log.Error("reminder flag update failed", "appointment_id", a.ID, "error", err)
				continue
			}
			s.notifier.Reminder(ctx, a, job.text)
			s.log.Info("reminder sent", "appointment_id", a.ID, "kind", string(job.kind))
		}
	}
}

func (s *Scheduler) completeFinished(ctx context.Context) {
	n, err := s.store.MarkCompleted(ctx, s.now())
	if err != nil {
		s.log.Error("auto-complete failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("appointments auto-completed", "count", n)
	}
}

// inviteFollowUps runs at most once per calendar day and invites patients
// whose planned return date is three days out.
func (s *Scheduler) inviteFollowUps(ctx context.Context) {
	today := s.now().Format(booking.DateLayout)
	if today == s.lastFollowUpDate {
		return
	}

	target := s.now().AddDate(0, 0, followUpLeadDays).Format(booking.DateLayout)
	due, err := s.store.DueFollowUps(ctx, target)
	if err != nil {
		s.log.Error("follow-up query failed", "error", err)
		return
	}
	s.lastFollowUpDate = today
	for _, a := range due {
		s.notifier.FollowUpInvite(ctx, a)
		s.log.Info("follow-up invitation sent", "appointment_id", a.ID, "phone", a.ClientPhone)
	}
}
