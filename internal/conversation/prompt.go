package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
)

// PromptContext is everything the system prompt is built from: static clinic
// data plus the per-client state loaded at the start of each message.
type PromptContext struct {
	Clinic   clinic.Info
	Client   patients.Client
	IsAdmin  bool
	Now      time.Time
	Upcoming []booking.Appointment
	History  []booking.Appointment
}

// BuildSystemPrompt renders the assistant instructions plus the client's
// current state. The model sees dates relative to "today", so the prompt
// restates the clock every message.
func BuildSystemPrompt(pc PromptContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the virtual assistant of %s, a dental clinic.\n", pc.Clinic.Name)
	b.WriteString("You help patients book, reschedule, and cancel appointments, and answer questions about the clinic, its doctors, and services.\n\n")

	fmt.Fprintf(&b, "Today is %s (%s). Current time: %s.\n",
		pc.Now.Format("2006-01-02"), pc.Now.Weekday(), pc.Now.Format("15:04"))
	fmt.Fprintf(&b, "Clinic address: %s. Phone: %s.\n", pc.Clinic.Address, pc.Clinic.Phone)
	if len(pc.Clinic.Hours) > 0 {
		b.WriteString("Working hours:\n")
		days := make([]string, 0, len(pc.Clinic.Hours))
		for d := range pc.Clinic.Hours {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool {
			return dayOrder(days[i]) < dayOrder(days[j])
		})
		for _, d := range days {
			fmt.Fprintf(&b, "  %s: %s\n", d, pc.Clinic.Hours[d])
		}
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Appointments start only at :00 or :30. Bookings are accepted up to 60 days ahead.\n")
	b.WriteString("- Cancellations and reschedules require at least 2 hours notice.\n")
	b.WriteString("- Before calling create_appointment, always call get_services and get_doctors first and use the exact names from their output.\n")
	b.WriteString("- Call booking, cancellation, or reschedule tools only after the client explicitly confirms.\n")
	b.WriteString("- Ask for the cancellation reason before cancelling.\n")
	b.WriteString("- If the client mentions acute pain, trauma, or bleeding, call notify_emergency immediately.\n")
	b.WriteString("- When the client introduces themselves, call save_client_name.\n")
	b.WriteString("- Be brief, warm, and professional. Answer in the client's language.\n")

	if pc.IsAdmin {
		b.WriteString("\nThis user is a clinic ADMINISTRATOR. Admin tools are available: doctor absences, reports, payments, no-shows, blocking patients, exports. Appointments are created for patients only, never for the administrator personally; always require a patient name.\n")
	}

	b.WriteString("\n--- Client context ---\n")
	fmt.Fprintf(&b, "Phone: %s\n", pc.Client.Phone)
	if pc.Client.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", pc.Client.Name)
	} else {
		b.WriteString("Name: unknown (ask politely and save it)\n")
	}

	if len(pc.Upcoming) > 0 {
		b.WriteString("Upcoming appointments:\n")
		for _, a := range pc.Upcoming {
			fmt.Fprintf(&b, "  #%d %s %s, %s with %s\n", a.ID, a.Date, a.Time, a.ServiceName, a.DoctorName)
		}
	} else if !pc.IsAdmin {
		b.WriteString("Upcoming appointments: none\n")
	}

	if len(pc.History) > 0 {
		b.WriteString("Recent visit history:\n")
		for _, a := range pc.History {
			fmt.Fprintf(&b, "  %s %s (%s)\n", a.Date, a.ServiceName, a.Status)
		}
	}

	return b.String()
}

func dayOrder(name string) int {
	for i := 0; i < 7; i++ {
		if clinic.WeekdayName(i) == name {
			return i
		}
	}
	return 7
}
