package conversation

import (
	"context"
	"encoding/json"
)

// Tool catalog exposed to the model. Each entry binds the function schema,
// who may call it, and the dispatcher handler that runs it; dispatch is a
// lookup in this registry. Descriptions steer the model, so they carry the
// guardrails (confirm first, look up exact names) in prose.

func objectSchema(props map[string]any, required ...string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}

// toolDef is one registry entry: the schema shown to the model, the role
// allowed to call it, and the handler.
type toolDef struct {
	Spec      ToolSpec
	AdminOnly bool
	Run       func(d *Dispatcher, ctx context.Context, args json.RawMessage, s *session) (any, error)
}

// toolRegistry is ordered: client tools first, then the admin set. ToolsFor
// preserves this order when presenting the catalog to the model.
var toolRegistry = []toolDef{
	{
		Spec: ToolSpec{
			Name:        "get_clinic_info",
			Description: "Get clinic information: address, working hours, contacts, rules",
			Parameters:  objectSchema(nil),
		},
		Run: func(d *Dispatcher, _ context.Context, _ json.RawMessage, _ *session) (any, error) {
			return d.getClinicInfo(), nil
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_services",
			Description: "Get the full list of services with prices and durations",
			Parameters:  objectSchema(nil),
		},
		Run: func(d *Dispatcher, ctx context.Context, _ json.RawMessage, _ *session) (any, error) {
			return d.getServices(ctx)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_doctors",
			Description: "Get the list of doctors with their specialization and experience",
			Parameters:  objectSchema(nil),
		},
		Run: func(d *Dispatcher, ctx context.Context, _ json.RawMessage, _ *session) (any, error) {
			return d.getDoctors(ctx)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_free_slots",
			Description: "Get free time slots for a specific date. A doctor can optionally be specified.",
			Parameters: objectSchema(map[string]any{
				"date":      strProp("Date in YYYY-MM-DD format"),
				"doctor_id": intProp("Doctor ID (optional). When omitted, slots for all doctors are shown."),
			}, "date"),
		},
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.getFreeSlots(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "create_appointment",
			Description: "Create an appointment. Call ONLY after the client confirms. IMPORTANT: before calling, ALWAYS call get_services() and get_doctors() and use the EXACT names from their output.",
			Parameters: objectSchema(map[string]any{
				"service_name": strProp("Service name exactly as returned by get_services"),
				"doctor_name":  strProp("Doctor name exactly as returned by get_doctors"),
				"date":         strProp("Date in YYYY-MM-DD format"),
				"time":         strProp("Time in HH:MM format. IMPORTANT: only :00 or :30 (e.g. 09:00, 09:30, 10:00)"),
				"notes":        strProp("Notes (optional)"),
				"patient_name": strProp("Patient name when the booking is NOT for the client themselves (child, relative). Omit to book for the client."),
			}, "service_name", "doctor_name", "date", "time"),
		},
		Run: (*Dispatcher).createAppointment,
	},
	{
		Spec: ToolSpec{
			Name:        "create_combo_appointment",
			Description: "Create a combo booking: two services back to back with the same doctor. The second service starts right after the first.",
			Parameters: objectSchema(map[string]any{
				"service_name_1": strProp("First service"),
				"service_name_2": strProp("Second service"),
				"doctor_name":    strProp("Doctor name"),
				"date":           strProp("Date YYYY-MM-DD"),
				"time":           strProp("Start time of the first service HH:MM"),
				"patient_name":   strProp("Patient name (when not for the client themselves)"),
			}, "service_name_1", "service_name_2", "doctor_name", "date", "time"),
		},
		Run: (*Dispatcher).createComboAppointment,
	},
	{
		Spec: ToolSpec{
			Name:        "cancel_appointment",
			Description: "Cancel an appointment. Call ONLY after the client confirms. Always ask for the cancellation reason first.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": intProp("ID of the appointment to cancel"),
				"reason":         strProp("Cancellation reason (e.g. 'cannot make it', 'will rebook', 'chose another clinic')"),
			}, "appointment_id"),
		},
		Run: (*Dispatcher).cancelAppointment,
	},
	{
		Spec: ToolSpec{
			Name:        "reschedule_appointment",
			Description: "Move an appointment to a new date/time. Call ONLY after confirmation.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": intProp("Appointment ID"),
				"new_date":       strProp("New date YYYY-MM-DD"),
				"new_time":       strProp("New time HH:MM"),
			}, "appointment_id", "new_date", "new_time"),
		},
		Run: (*Dispatcher).rescheduleAppointment,
	},
	{
		Spec: ToolSpec{
			Name:        "get_my_appointments",
			Description: "Show this client's upcoming appointments",
			Parameters:  objectSchema(nil),
		},
		Run: func(d *Dispatcher, ctx context.Context, _ json.RawMessage, s *session) (any, error) {
			return d.getMyAppointments(ctx, s)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "save_client_name",
			Description: "Save or update the client's name. Call when the client introduces themselves.",
			Parameters: objectSchema(map[string]any{
				"name": strProp("Client name"),
			}, "name"),
		},
		Run: (*Dispatcher).saveClientName,
	},
	{
		Spec: ToolSpec{
			Name:        "notify_emergency",
			Description: "Alert the administrator about an emergency patient (acute pain, trauma, bleeding). Call when the client reports an urgent situation.",
			Parameters: objectSchema(map[string]any{
				"description": strProp("Short description of the patient's situation"),
			}, "description"),
		},
		Run: (*Dispatcher).notifyEmergency,
	},
	{
		Spec: ToolSpec{
			Name:        "set_doctor_absence",
			Description: "Mark a doctor as unavailable (illness, vacation). Automatically cancels all appointments in the period and notifies the patients.",
			Parameters: objectSchema(map[string]any{
				"doctor_name": strProp("Doctor name"),
				"start_date":  strProp("Absence start YYYY-MM-DD"),
				"end_date":    strProp("Absence end YYYY-MM-DD"),
				"reason":      enumProp("Reason", "sick", "vacation", "other"),
			}, "doctor_name", "start_date", "end_date", "reason"),
		},
		AdminOnly: true,
		Run:       (*Dispatcher).setDoctorAbsence,
	},
	{
		Spec: ToolSpec{
			Name:        "schedule_follow_up",
			Description: "Schedule a follow-up visit. The patient is reminded closer to the date.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": intProp("ID of the completed appointment"),
				"follow_up_date": strProp("Follow-up date YYYY-MM-DD"),
				"notes":          strProp("Notes (what the follow-up is for)"),
			}, "appointment_id", "follow_up_date"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.scheduleFollowUp(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "mark_no_show",
			Description: "Mark a patient as a no-show. Use when the patient did not arrive.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": intProp("Appointment ID"),
			}, "appointment_id"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.markNoShow(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "block_patient",
			Description: "Block a patient (the bot stops replying to them). Use for abusive clients.",
			Parameters: objectSchema(map[string]any{
				"phone":  strProp("Patient phone number (e.g. +77771234567)"),
				"reason": strProp("Block reason"),
			}, "phone"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.blockPatient(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "unblock_patient",
			Description: "Unblock a patient.",
			Parameters: objectSchema(map[string]any{
				"phone": strProp("Patient phone number"),
			}, "phone"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.unblockPatient(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "record_payment",
			Description: "Record a payment for a visit.",
			Parameters: objectSchema(map[string]any{
				"appointment_id": intProp("Appointment ID"),
				"actual_price":   intProp("Actual amount paid"),
				"payment_status": enumProp("Payment status", "paid", "partial", "refunded"),
			}, "appointment_id", "actual_price"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.recordPayment(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_today_schedule",
			Description: "Get all appointments for today (administrator)",
			Parameters:  objectSchema(nil),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, _ json.RawMessage, _ *session) (any, error) {
			return d.getTodaySchedule(ctx)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_week_report",
			Description: "Get appointments for the coming week (administrator)",
			Parameters:  objectSchema(nil),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, _ json.RawMessage, _ *session) (any, error) {
			return d.getWeekReport(ctx)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "get_month_report",
			Description: "Get a monthly report with statistics (administrator)",
			Parameters: objectSchema(map[string]any{
				"year":  intProp("Year (e.g. 2026)"),
				"month": intProp("Month (1-12)"),
			}, "year", "month"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.getMonthReport(ctx, args)
		},
	},
	{
		Spec: ToolSpec{
			Name:        "export_to_sheets",
			Description: "Export a report to Google Sheets",
			Parameters: objectSchema(map[string]any{
				"period": enumProp("Period: day, week, or month", "day", "week", "month"),
			}, "period"),
		},
		AdminOnly: true,
		Run: func(d *Dispatcher, ctx context.Context, args json.RawMessage, _ *session) (any, error) {
			return d.exportToSheets(ctx, args)
		},
	},
}

var toolsByName = func() map[string]*toolDef {
	m := make(map[string]*toolDef, len(toolRegistry))
	for i := range toolRegistry {
		m[toolRegistry[i].Spec.Name] = &toolRegistry[i]
	}
	return m
}()

// ToolsFor returns the catalog visible to a role in registry order. Admins
// see the client tools plus the admin set.
func ToolsFor(admin bool) []ToolSpec {
	out := make([]ToolSpec, 0, len(toolRegistry))
	for _, t := range toolRegistry {
		if t.AdminOnly && !admin {
			continue
		}
		out = append(out, t.Spec)
	}
	return out
}
