// Package notify fans appointment events out to administrators and patients
// over every channel they are reachable on.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// Mutation kinds produced by tool execution.
const (
	KindCreated     = "created"
	KindCancelled   = "cancelled"
	KindRescheduled = "rescheduled"
	KindEmergency   = "emergency"
	KindAbsence     = "absence"
)

// Mutation describes a state change that other parties should hear about.
// ActorPhone is excluded from admin broadcasts when the actor is an admin,
// so admins do not get notified about their own actions.
type Mutation struct {
	Kind        string
	Appointment booking.Appointment
	OldDate     string
	OldTime     string
	ActorPhone  string
	ActorAdmin  bool
	ActorName   string
	Description string
	Reason      string
	Affected    []booking.Appointment
}

// Directory resolves recipients: who the admins are and whether a phone has
// a linked telegram chat.
type Directory interface {
	AdminPhones(ctx context.Context) ([]string, error)
	TelegramChatID(ctx context.Context, phone string) (int64, error)
}

// Channel delivers one text message to a recipient identifier.
type Channel interface {
	Send(ctx context.Context, recipient, text string) error
}

// Service sends each notification over WhatsApp and, when the recipient has
// linked an account, Telegram. Delivery failures are logged and never
// propagate: notifications are best-effort by contract.
type Service struct {
	dir      Directory
	whatsapp Channel
	telegram Channel
	log      *logging.Logger
}

// NewService builds the fanout. telegram may be nil when the bot is not
// configured.
func NewService(dir Directory, whatsapp, telegram Channel, log *logging.Logger) *Service {
	if dir == nil {
		panic("notify: directory required")
	}
	if whatsapp == nil {
		panic("notify: whatsapp channel required")
	}
	if log == nil {
		panic("notify: logger required")
	}
	return &Service{dir: dir, whatsapp: whatsapp, telegram: telegram, log: log}
}

// Dispatch routes one mutation to everyone who should hear about it.
func (s *Service) Dispatch(ctx context.Context, m Mutation) {
	exclude := ""
	if m.ActorAdmin {
		exclude = m.ActorPhone
	}

	switch m.Kind {
	case KindCreated:
		s.broadcastAdmins(ctx, s.newAppointmentText(m.Appointment), exclude)
	case KindCancelled:
		s.broadcastAdmins(ctx, s.cancellationText(m), exclude)
		if m.ActorAdmin && m.Appointment.ClientPhone != "" && m.Appointment.ClientPhone != m.ActorPhone {
			s.sendToPhone(ctx, m.Appointment.ClientPhone, s.patientCancellationText(m.Appointment))
		}
	case KindRescheduled:
		s.broadcastAdmins(ctx, s.rescheduleText(m), exclude)
		if m.ActorAdmin && m.Appointment.ClientPhone != "" && m.Appointment.ClientPhone != m.ActorPhone {
			s.sendToPhone(ctx, m.Appointment.ClientPhone, s.patientRescheduleText(m))
		}
	case KindEmergency:
		s.broadcastAdmins(ctx, s.emergencyText(m), "")
	case KindAbsence:
		for _, a := range m.Affected {
			s.sendToPhone(ctx, a.ClientPhone, s.absenceText(a, m.Reason))
		}
	default:
		s.log.Warn("notify: unknown mutation kind", "kind", m.Kind)
	}
}

// AIServiceDown alerts every admin that the language model API is failing
// and patient messages are going unanswered.
func (s *Service) AIServiceDown(ctx context.Context) {
	s.broadcastAdmins(ctx,
		"WARNING: the AI service (OpenRouter) is unreachable.\n"+
			"The bot cannot process patient messages.\n"+
			"Check the API balance and status.", "")
}

// Reminder sends an upcoming-appointment reminder to the patient.
func (s *Service) Reminder(ctx context.Context, a booking.Appointment, lead string) {
	text := fmt.Sprintf(
		"Reminder: you have an appointment %s.\n\n%s at %s\nDoctor: %s\nService: %s\n\nReply here if you need to reschedule.",
		lead, a.Date, a.Time, a.DoctorName, a.ServiceName)
	s.sendToPhone(ctx, a.ClientPhone, text)
}

// FollowUpInvite asks a patient to come back for their planned follow-up.
func (s *Service) FollowUpInvite(ctx context.Context, a booking.Appointment) {
	var b strings.Builder
	b.WriteString("Hello! Your doctor recommended a follow-up visit in the coming days.\n\n")
	fmt.Fprintf(&b, "Previous visit: %s, %s with %s.\n", a.Date, a.ServiceName, a.DoctorName)
	if a.FollowUpNotes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", a.FollowUpNotes)
	}
	b.WriteString("\nReply here to pick a convenient time.")
	s.sendToPhone(ctx, a.ClientPhone, b.String())
}

func (s *Service) broadcastAdmins(ctx context.Context, text, exclude string) {
	phones, err := s.dir.AdminPhones(ctx)
	if err != nil {
		s.log.Error("notify: load admin phones", "error", err)
		return
	}
	for _, phone := range phones {
		if phone == exclude {
			continue
		}
		s.sendToPhone(ctx, phone, text)
	}
}

// sendToPhone delivers over WhatsApp always, and over Telegram when the
// phone has a linked chat. Each channel fails independently.
func (s *Service) sendToPhone(ctx context.Context, phone, text string) {
	if err := s.whatsapp.Send(ctx, phone, text); err != nil {
		s.log.Error("notify: whatsapp send failed", "phone", phone, "error", err)
	}

	if s.telegram == nil {
		return
	}
	chatID, err := s.dir.TelegramChatID(ctx, phone)
	if err != nil || chatID == 0 {
		return
	}
	if err := s.telegram.Send(ctx, strconv.FormatInt(chatID, 10), text); err != nil {
		s.log.Debug("notify: telegram send skipped", "phone", phone, "error", err)
	}
}

func (s *Service) newAppointmentText(a booking.Appointment) string {
	text := fmt.Sprintf(
		"New appointment!\n\nClient: %s\nPhone: %s\nDoctor: %s\nService: %s\nDate: %s\nTime: %s\nPrice: %d",
		orDash(a.ClientName), a.ClientPhone, a.DoctorName, a.ServiceName, a.Date, a.Time, a.Price)
	if a.PatientName != "" {
		text += "\nPatient: " + a.PatientName
	}
	return text
}

func (s *Service) cancellationText(m Mutation) string {
	a := m.Appointment
	text := fmt.Sprintf(
		"Appointment cancelled\n\nClient: %s\nWas: %s at %s\nService: %s",
		orDash(a.ClientName), a.Date, a.Time, a.ServiceName)
	reason := m.Reason
	if reason == "" {
		reason = a.CancellationReason
	}
	if reason != "" {
		text += "\nReason: " + reason
	}
	return text
}

func (s *Service) rescheduleText(m Mutation) string {
	a := m.Appointment
	return fmt.Sprintf(
		"Appointment rescheduled\n\nClient: %s\nPhone: %s\nWas: %s at %s\nNow: %s at %s\nService: %s",
		orDash(a.ClientName), a.ClientPhone, orDash(m.OldDate), orDash(m.OldTime), a.Date, a.Time, a.ServiceName)
}

func (s *Service) patientCancellationText(a booking.Appointment) string {
	return fmt.Sprintf(
		"Hello! Your appointment has been cancelled by the clinic administrator.\n\nDoctor: %s\nService: %s\nDate: %s\nTime: %s\n\nIf you would like to book another time, just write to us!",
		a.DoctorName, a.ServiceName, a.Date, a.Time)
}

func (s *Service) patientRescheduleText(m Mutation) string {
	a := m.Appointment
	return fmt.Sprintf(
		"Hello! Your appointment has been rescheduled.\n\nWas: %s at %s\nNow: %s at %s\nDoctor: %s\nService: %s\n\nIf this time does not work for you, write to us and we will find another!",
		orDash(m.OldDate), orDash(m.OldTime), a.Date, a.Time, a.DoctorName, a.ServiceName)
}

func (s *Service) emergencyText(m Mutation) string {
	return fmt.Sprintf(
		"EMERGENCY PATIENT!\n\nClient: %s (%s)\nSituation: %s\n\nUrgent attention required!",
		orDash(m.ActorName), m.ActorPhone, orDash(m.Description))
}

func (s *Service) absenceText(a booking.Appointment, reason string) string {
	reasonText := map[string]string{
		"sick":     "because the doctor is ill",
		"vacation": "because the doctor is on leave",
		"other":    "for unavoidable reasons",
	}[reason]
	if reasonText == "" {
		reasonText = "for unavoidable reasons"
	}
	return fmt.Sprintf(
		"Dear %s!\n\nUnfortunately your appointment on %s at %s (%s) has been cancelled %s.\n\nWrite to us to rebook with another doctor or on another date.",
		orName(a.ClientName), a.Date, a.Time, a.ServiceName, reasonText)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orName(s string) string {
	if s == "" {
		return "client"
	}
	return s
}
