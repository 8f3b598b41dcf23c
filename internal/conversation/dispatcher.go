package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	"github.com/wolfman30/dental-ai-assistant/internal/gsync"
	"github.com/wolfman30/dental-ai-assistant/internal/notify"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// Dispatcher executes tool calls from the model. Every mutation is validated
// here, never trusted from the model, and authorization is checked per call:
// patients only touch their own rows, admin tools refuse non-admins.
type Dispatcher struct {
	clients  patients.Repository
	appts    booking.Repository
	clinic   clinic.Store
	info     clinic.Info
	rules    booking.Rules
	slotMins int
	loc      *time.Location
	calendar *gsync.Calendar
	sheets   *gsync.Sheets
	log      *logging.Logger
	now      func() time.Time
}

// DispatcherConfig wires the dispatcher. Calendar and Sheets may be nil.
type DispatcherConfig struct {
	Clients     patients.Repository
	Bookings    booking.Repository
	Clinic      clinic.Store
	Info        clinic.Info
	Rules       booking.Rules
	SlotMinutes int
	Location    *time.Location
	Calendar    *gsync.Calendar
	Sheets      *gsync.Sheets
	Logger      *logging.Logger
	Now         func() time.Time
}

// NewDispatcher validates required dependencies and builds the dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Clients == nil {
		panic("conversation: clients repository required")
	}
	if cfg.Bookings == nil {
		panic("conversation: bookings repository required")
	}
	if cfg.Clinic == nil {
		panic("conversation: clinic store required")
	}
	if cfg.Logger == nil {
		panic("conversation: logger required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().In(cfg.Location) }
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	return &Dispatcher{
		clients:  cfg.Clients,
		appts:    cfg.Bookings,
		clinic:   cfg.Clinic,
		info:     cfg.Info,
		rules:    cfg.Rules,
		slotMins: cfg.SlotMinutes,
		loc:      cfg.Location,
		calendar: cfg.Calendar,
		sheets:   cfg.Sheets,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
}

// session carries per-message identity plus the mutations accumulated while
// executing tools, to be fanned out after the reply is sent.
type session struct {
	phone     string
	admin     bool
	mutations []notify.Mutation
}

func (s *session) record(m notify.Mutation) {
	m.ActorPhone = s.phone
	m.ActorAdmin = s.admin
	s.mutations = append(s.mutations, m)
}

// toolError is a business outcome relayed to the model, not a failure.
type toolError struct {
	Error string `json:"error"`
}

// Execute runs one tool call and returns its JSON result plus any mutations
// that notifications should be sent for. It never returns an error: failures
// become {"error": ...} payloads so the model can recover in-conversation.
// The tool is resolved through the registry, which carries its schema, role
// requirement, and handler in one entry.
func (d *Dispatcher) Execute(ctx context.Context, call ToolCall, phone string, admin bool) (string, []notify.Mutation) {
	s := &session{phone: phone, admin: admin}

	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	def, ok := toolsByName[call.Name]
	if !ok {
		return marshalResult(d.log, toolError{Error: fmt.Sprintf("unknown function: %s", call.Name)}), nil
	}
	if def.AdminOnly && !admin {
		return marshalResult(d.log, toolError{Error: "this function is available to administrators only"}), nil
	}

	result, err := def.Run(d, ctx, args, s)
	if err != nil {
		d.log.Error("tool execution failed", "tool", call.Name, "error", err)
		return marshalResult(d.log, toolError{Error: err.Error()}), nil
	}
	return marshalResult(d.log, result), s.mutations
}

func marshalResult(log *logging.Logger, v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("tool result marshal failed", "error", err)
		return `{"error":"internal error"}`
	}
	return string(data)
}

func (d *Dispatcher) getClinicInfo() any {
	return map[string]any{
		"name":                d.info.Name,
		"address":             d.info.Address,
		"phone":               d.info.Phone,
		"hours":               d.info.Hours,
		"cancellation_policy": d.info.CancellationPolicy,
	}
}

func (d *Dispatcher) getServices(ctx context.Context) (any, error) {
	services, err := d.clinic.Services(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"services": services}, nil
}

func (d *Dispatcher) getDoctors(ctx context.Context) (any, error) {
	doctors, err := d.clinic.Doctors(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"doctors": doctors}, nil
}

func (d *Dispatcher) getFreeSlots(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Date     string `json:"date"`
		DoctorID int    `json:"doctor_id"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	day, err := time.ParseInLocation(booking.DateLayout, p.Date, d.loc)
	if err != nil {
		return toolError{Error: "invalid date, use YYYY-MM-DD"}, nil
	}

	doctors, err := d.clinic.Doctors(ctx)
	if err != nil {
		return nil, err
	}
	if p.DoctorID != 0 {
		filtered := doctors[:0]
		for _, doc := range doctors {
			if doc.ID == p.DoctorID {
				filtered = append(filtered, doc)
			}
		}
		doctors = filtered
	}

	schedules, err := d.clinic.SchedulesForWeekday(ctx, clinic.WeekdayIndex(day.Weekday()))
	if err != nil {
		return nil, err
	}
	absent, err := d.clinic.AbsentDoctorIDs(ctx, day)
	if err != nil {
		return nil, err
	}
	busy, err := d.appts.ListByDate(ctx, p.Date)
	if err != nil {
		return nil, err
	}

	slots, err := booking.FreeSlots(p.Date, doctors, schedules, absent, busy, d.now(), d.slotMins)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return map[string]any{"message": "no free slots on this date", "slots": []booking.FreeSlot{}}, nil
	}
	return map[string]any{"date": p.Date, "slots": slots}, nil
}

// resolveBooking turns the model's free-text doctor and service names into
// validated ids and a validated slot, rounding the time onto the grid.
func (d *Dispatcher) resolveBooking(ctx context.Context, doctorName, serviceName, date, t string) (*clinic.Doctor, *clinic.Service, string, *toolError, error) {
	doctors, err := d.clinic.Doctors(ctx)
	if err != nil {
		return nil, nil, "", nil, err
	}
	doctor := booking.FindDoctorByName(doctorName, doctors)
	if doctor == nil {
		names := make([]string, len(doctors))
		for i, doc := range doctors {
			names[i] = doc.Name
		}
		return nil, nil, "", &toolError{Error: fmt.Sprintf("doctor %q not found. Available doctors: %s", doctorName, strings.Join(names, ", "))}, nil
	}

	services, err := d.clinic.Services(ctx)
	if err != nil {
		return nil, nil, "", nil, err
	}
	service := booking.FindServiceByName(serviceName, services)
	if service == nil {
		names := make([]string, len(services))
		for i, svc := range services {
			names[i] = svc.Name
		}
		return nil, nil, "", &toolError{Error: fmt.Sprintf("service %q not found. Available services: %s", serviceName, strings.Join(names, ", "))}, nil
	}

	busy, err := d.appts.ListBusy(ctx, doctor.ID, date)
	if err != nil {
		return nil, nil, "", nil, err
	}
	res := d.rules.ValidateAppointmentTime(date, t, d.now(), busy, service.DurationMinutes)
	if !res.Valid {
		return nil, nil, "", &toolError{Error: res.Message}, nil
	}
	if res.CorrectedTime != "" {
		t = res.CorrectedTime
	}
	return doctor, service, t, nil, nil
}

func (d *Dispatcher) createAppointment(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		ServiceName string `json:"service_name"`
		DoctorName  string `json:"doctor_name"`
		Date        string `json:"date"`
		Time        string `json:"time"`
		Notes       string `json:"notes"`
		PatientName string `json:"patient_name"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if s.admin && p.PatientName == "" {
		return toolError{Error: "you are an administrator. Appointments are created for patients only. Provide the patient's name."}, nil
	}

	if err := d.ensureClient(ctx, s.phone); err != nil {
		return nil, err
	}

	doctor, service, slotTime, terr, err := d.resolveBooking(ctx, p.DoctorName, p.ServiceName, p.Date, p.Time)
	if err != nil {
		return nil, err
	}
	if terr != nil {
		return *terr, nil
	}

	appt, err := d.appts.Create(ctx, booking.CreateParams{
		ClientPhone:     s.phone,
		PatientName:     p.PatientName,
		DoctorID:        doctor.ID,
		ServiceID:       service.ID,
		Date:            p.Date,
		Time:            slotTime,
		DurationMinutes: service.DurationMinutes,
		Price:           service.Price,
		Notes:           p.Notes,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotTaken) {
			return toolError{Error: "could not create the appointment, the slot was just taken. Offer another time."}, nil
		}
		return nil, err
	}

	d.mirrorCreated(ctx, &appt)
	s.record(notify.Mutation{Kind: notify.KindCreated, Appointment: appt})

	result := map[string]any{
		"success":        true,
		"appointment_id": appt.ID,
		"doctor":         appt.DoctorName,
		"service":        appt.ServiceName,
		"date":           appt.Date,
		"time":           appt.Time,
		"price":          appt.Price,
	}
	if appt.PatientName != "" {
		result["patient_name"] = appt.PatientName
	}
	return result, nil
}

// mirrorCreated pushes a fresh appointment to Calendar and Sheets. Failures
// are logged only.
func (d *Dispatcher) mirrorCreated(ctx context.Context, appt *booking.Appointment) {
	eventID, err := d.calendar.CreateEvent(ctx, *appt)
	if err != nil {
		d.log.Error("calendar event create failed", "appointment_id", appt.ID, "error", err)
	} else if eventID != "" {
		if err := d.appts.UpdateCalendarEventID(ctx, appt.ID, eventID); err != nil {
			d.log.Error("calendar event id save failed", "appointment_id", appt.ID, "error", err)
		}
		appt.CalendarEventID = eventID
	}
	if err := d.sheets.AddAppointment(ctx, *appt); err != nil {
		d.log.Error("sheets append failed", "appointment_id", appt.ID, "error", err)
	}
}

func (d *Dispatcher) createComboAppointment(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		ServiceName1 string `json:"service_name_1"`
		ServiceName2 string `json:"service_name_2"`
		DoctorName   string `json:"doctor_name"`
		Date         string `json:"date"`
		Time         string `json:"time"`
		PatientName  string `json:"patient_name"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if s.admin && p.PatientName == "" {
		return toolError{Error: "you are an administrator. Appointments are created for patients only. Provide the patient's name."}, nil
	}

	if err := d.ensureClient(ctx, s.phone); err != nil {
		return nil, err
	}

	doctor, service1, slotTime, terr, err := d.resolveBooking(ctx, p.DoctorName, p.ServiceName1, p.Date, p.Time)
	if err != nil {
		return nil, err
	}
	if terr != nil {
		return *terr, nil
	}

	services, err := d.clinic.Services(ctx)
	if err != nil {
		return nil, err
	}
	service2 := booking.FindServiceByName(p.ServiceName2, services)
	if service2 == nil {
		return toolError{Error: fmt.Sprintf("second service %q not found", p.ServiceName2)}, nil
	}

	first, err := d.appts.Create(ctx, booking.CreateParams{
		ClientPhone: s.phone, PatientName: p.PatientName,
		DoctorID: doctor.ID, ServiceID: service1.ID,
		Date: p.Date, Time: slotTime,
		DurationMinutes: service1.DurationMinutes, Price: service1.Price,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotTaken) {
			return toolError{Error: "could not create the first appointment, the slot is taken."}, nil
		}
		return nil, err
	}

	startFirst, err := time.ParseInLocation(booking.DateLayout+" "+booking.TimeLayout, p.Date+" "+slotTime, d.loc)
	if err != nil {
		return nil, err
	}
	secondTime := startFirst.Add(time.Duration(service1.DurationMinutes) * time.Minute).Format(booking.TimeLayout)

	second, err := d.appts.Create(ctx, booking.CreateParams{
		ClientPhone: s.phone, PatientName: p.PatientName,
		DoctorID: doctor.ID, ServiceID: service2.ID,
		Date: p.Date, Time: secondTime,
		DurationMinutes: service2.DurationMinutes, Price: service2.Price,
	})
	if err != nil {
		// roll the first one back so a half-combo does not linger
		if _, cerr := d.appts.Cancel(ctx, first.ID, "", "combo booking: no room for the second service"); cerr != nil {
			d.log.Error("combo rollback failed", "appointment_id", first.ID, "error", cerr)
		}
		if errors.Is(err, booking.ErrSlotTaken) {
			return toolError{Error: fmt.Sprintf("the first service fits, but there is no room for %s at %s. Booking cancelled, offer another time.", service2.Name, secondTime)}, nil
		}
		return nil, err
	}

	d.mirrorCreated(ctx, &first)
	d.mirrorCreated(ctx, &second)
	s.record(notify.Mutation{Kind: notify.KindCreated, Appointment: first})
	s.record(notify.Mutation{Kind: notify.KindCreated, Appointment: second})

	return map[string]any{
		"success":       true,
		"combo":         true,
		"appointment_1": map[string]any{"id": first.ID, "service": first.ServiceName, "time": first.Time},
		"appointment_2": map[string]any{"id": second.ID, "service": second.ServiceName, "time": second.Time},
		"doctor":        doctor.Name,
		"date":          p.Date,
		"total_price":   first.Price + second.Price,
		"total_minutes": service1.DurationMinutes + service2.DurationMinutes,
	}, nil
}

func (d *Dispatcher) cancelAppointment(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		AppointmentID int    `json:"appointment_id"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	appt, err := d.appts.GetByID(ctx, p.AppointmentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: fmt.Sprintf("appointment id=%d not found or already cancelled. Call get_my_appointments for current IDs.", p.AppointmentID)}, nil
		}
		return nil, err
	}

	scope := s.phone
	if s.admin {
		scope = ""
	} else {
		if appt.ClientPhone != s.phone {
			return toolError{Error: fmt.Sprintf("appointment id=%d not found or already cancelled. Call get_my_appointments for current IDs.", p.AppointmentID)}, nil
		}
		if res := d.rules.ValidateCancellation(appt, d.now()); !res.Valid {
			return toolError{Error: res.Message}, nil
		}
	}

	cancelled, err := d.appts.Cancel(ctx, p.AppointmentID, scope, p.Reason)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: fmt.Sprintf("appointment id=%d not found or already cancelled. Call get_my_appointments for current IDs.", p.AppointmentID)}, nil
		}
		return nil, err
	}

	if err := d.calendar.CancelEvent(ctx, cancelled.CalendarEventID, p.Reason); err != nil {
		d.log.Error("calendar cancel failed", "appointment_id", cancelled.ID, "error", err)
	}
	if err := d.sheets.UpdateStatus(ctx, cancelled, "cancelled", p.Reason); err != nil {
		d.log.Error("sheets status update failed", "appointment_id", cancelled.ID, "error", err)
	}

	s.record(notify.Mutation{Kind: notify.KindCancelled, Appointment: cancelled, Reason: p.Reason})
	return map[string]any{"success": true, "message": "appointment cancelled"}, nil
}

func (d *Dispatcher) rescheduleAppointment(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		AppointmentID int    `json:"appointment_id"`
		NewDate       string `json:"new_date"`
		NewTime       string `json:"new_time"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	appt, err := d.appts.GetByID(ctx, p.AppointmentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: "appointment not found or does not belong to this client. Call get_my_appointments for the current list."}, nil
		}
		return nil, err
	}
	if !s.admin && appt.ClientPhone != s.phone {
		return toolError{Error: "appointment not found or does not belong to this client. Call get_my_appointments for the current list."}, nil
	}

	busy, err := d.appts.ListBusy(ctx, appt.DoctorID, p.NewDate)
	if err != nil {
		return nil, err
	}
	// exclude the appointment being moved from its own conflicts
	others := busy[:0]
	for _, b := range busy {
		if b.ID != appt.ID {
			others = append(others, b)
		}
	}
	res := d.rules.ValidateReschedule(appt, p.NewDate, p.NewTime, d.now(), others)
	if !res.Valid {
		return toolError{Error: res.Message}, nil
	}
	newTime := p.NewTime
	if res.CorrectedTime != "" {
		newTime = res.CorrectedTime
	}

	scope := s.phone
	if s.admin {
		scope = ""
	}
	moved, err := d.appts.Reschedule(ctx, p.AppointmentID, scope, p.NewDate, newTime)
	if err != nil {
		if errors.Is(err, booking.ErrSlotTaken) {
			return toolError{Error: fmt.Sprintf("slot %s on %s is already taken. Offer another time or show free slots via get_free_slots.", newTime, p.NewDate)}, nil
		}
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: "appointment not found or does not belong to this client. Call get_my_appointments for the current list."}, nil
		}
		return nil, err
	}

	if err := d.calendar.MoveEvent(ctx, moved.Appointment.CalendarEventID, moved.Appointment); err != nil {
		d.log.Error("calendar move failed", "appointment_id", moved.Appointment.ID, "error", err)
	}
	if err := d.sheets.UpdateStatus(ctx, moved.Appointment, "rescheduled", moved.Appointment.Date+" "+moved.Appointment.Time); err != nil {
		d.log.Error("sheets status update failed", "appointment_id", moved.Appointment.ID, "error", err)
	}

	s.record(notify.Mutation{
		Kind:        notify.KindRescheduled,
		Appointment: moved.Appointment,
		OldDate:     moved.OldDate,
		OldTime:     moved.OldTime,
	})
	return map[string]any{
		"success":  true,
		"new_date": moved.Appointment.Date,
		"new_time": moved.Appointment.Time,
	}, nil
}

func (d *Dispatcher) getMyAppointments(ctx context.Context, s *session) (any, error) {
	if s.admin {
		today := d.now().Format(booking.DateLayout)
		horizon := d.now().AddDate(0, 0, d.rules.HorizonDays).Format(booking.DateLayout)
		appts, err := d.appts.ListRange(ctx, today, horizon)
		if err != nil {
			return nil, err
		}
		scheduled := appts[:0]
		for _, a := range appts {
			if a.Status == booking.StatusScheduled {
				scheduled = append(scheduled, a)
			}
		}
		if len(scheduled) == 0 {
			return map[string]any{"message": "the clinic has no upcoming patient appointments."}, nil
		}
		ids := make([]int, len(scheduled))
		for i, a := range scheduled {
			ids[i] = a.ID
		}
		return map[string]any{
			"info":                fmt.Sprintf("Clinic patient appointments. Use appointment_id from the list below for cancellations. IDs: %v", ids),
			"clinic_appointments": scheduled,
			"total":               len(scheduled),
		}, nil
	}

	appts, err := d.appts.ListUpcoming(ctx, s.phone)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return map[string]any{"message": "you have no upcoming appointments"}, nil
	}
	return map[string]any{"appointments": appts}, nil
}

func (d *Dispatcher) saveClientName(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return toolError{Error: "name must not be empty"}, nil
	}

	if _, err := d.clients.GetByPhone(ctx, s.phone); err != nil {
		if !errors.Is(err, patients.ErrNotFound) {
			return nil, err
		}
		if _, err := d.clients.Create(ctx, s.phone, p.Name); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "name": p.Name}, nil
	}

	if err := d.clients.UpdateName(ctx, s.phone, p.Name); err != nil {
		return nil, err
	}
	return map[string]any{"success": true, "name": p.Name}, nil
}

func (d *Dispatcher) notifyEmergency(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		Description string `json:"description"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	name := ""
	if client, err := d.clients.GetByPhone(ctx, s.phone); err == nil {
		name = client.Name
	}
	s.record(notify.Mutation{Kind: notify.KindEmergency, ActorName: name, Description: p.Description})
	return map[string]any{"success": true, "message": "the administrator has been alerted about your situation."}, nil
}

func (d *Dispatcher) setDoctorAbsence(ctx context.Context, args json.RawMessage, s *session) (any, error) {
	var p struct {
		DoctorName string `json:"doctor_name"`
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
		Reason     string `json:"reason"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	doctors, err := d.clinic.Doctors(ctx)
	if err != nil {
		return nil, err
	}
	doctor := booking.FindDoctorByName(p.DoctorName, doctors)
	if doctor == nil {
		return toolError{Error: fmt.Sprintf("doctor %q not found", p.DoctorName)}, nil
	}
	if p.Reason == "" {
		p.Reason = "sick"
	}

	result, err := d.appts.SetDoctorAbsence(ctx, doctor.ID, p.StartDate, p.EndDate, p.Reason)
	if err != nil {
		return nil, err
	}

	for _, a := range result.Affected {
		if err := d.calendar.CancelEvent(ctx, a.CalendarEventID, "doctor unavailable"); err != nil {
			d.log.Error("calendar cancel failed", "appointment_id", a.ID, "error", err)
		}
	}
	s.record(notify.Mutation{Kind: notify.KindAbsence, Reason: p.Reason, Affected: result.Affected})

	return map[string]any{
		"success":                true,
		"doctor":                 doctor.Name,
		"period":                 p.StartDate + " - " + p.EndDate,
		"reason":                 p.Reason,
		"cancelled_appointments": result.CancelledCount,
		"patients_notified":      len(result.Affected),
	}, nil
}

func (d *Dispatcher) scheduleFollowUp(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		AppointmentID int    `json:"appointment_id"`
		FollowUpDate  string `json:"follow_up_date"`
		Notes         string `json:"notes"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if _, err := d.appts.ScheduleFollowUp(ctx, p.AppointmentID, p.FollowUpDate, p.Notes); err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: "appointment not found"}, nil
		}
		return nil, err
	}
	return map[string]any{"success": true, "appointment_id": p.AppointmentID, "follow_up_date": p.FollowUpDate}, nil
}

func (d *Dispatcher) markNoShow(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		AppointmentID int `json:"appointment_id"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	appt, err := d.appts.MarkNoShow(ctx, p.AppointmentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: "appointment not found or no longer scheduled"}, nil
		}
		return nil, err
	}
	if err := d.sheets.UpdateStatus(ctx, appt, "no_show", ""); err != nil {
		d.log.Error("sheets status update failed", "appointment_id", appt.ID, "error", err)
	}
	return map[string]any{"success": true, "message": fmt.Sprintf("appointment %d marked as no-show", p.AppointmentID)}, nil
}

func (d *Dispatcher) blockPatient(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Phone  string `json:"phone"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := d.clients.Block(ctx, p.Phone, p.Reason); err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			return toolError{Error: fmt.Sprintf("client with number %s not found", p.Phone)}, nil
		}
		return nil, err
	}
	return map[string]any{"success": true, "message": fmt.Sprintf("client %s blocked", p.Phone)}, nil
}

func (d *Dispatcher) unblockPatient(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	if err := d.clients.Unblock(ctx, p.Phone); err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			return toolError{Error: fmt.Sprintf("client with number %s not found", p.Phone)}, nil
		}
		return nil, err
	}
	return map[string]any{"success": true, "message": fmt.Sprintf("client %s unblocked", p.Phone)}, nil
}

func (d *Dispatcher) recordPayment(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		AppointmentID int    `json:"appointment_id"`
		ActualPrice   int    `json:"actual_price"`
		PaymentStatus string `json:"payment_status"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = booking.PaymentPaid
	}

	appt, err := d.appts.RecordPayment(ctx, p.AppointmentID, p.ActualPrice, p.PaymentStatus)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return toolError{Error: "appointment not found"}, nil
		}
		return nil, err
	}
	if appt.CalendarEventID != "" && appt.Status == booking.StatusCompleted {
		if err := d.calendar.CompleteEvent(ctx, appt.CalendarEventID); err != nil {
			d.log.Error("calendar complete failed", "appointment_id", appt.ID, "error", err)
		}
	}
	return map[string]any{
		"success":        true,
		"appointment_id": p.AppointmentID,
		"actual_price":   p.ActualPrice,
		"payment_status": p.PaymentStatus,
	}, nil
}

func (d *Dispatcher) getTodaySchedule(ctx context.Context) (any, error) {
	today := d.now().Format(booking.DateLayout)
	appts, err := d.appts.ListByDate(ctx, today)
	if err != nil {
		return nil, err
	}
	return map[string]any{"date": today, "count": len(appts), "appointments": appts}, nil
}

func (d *Dispatcher) getWeekReport(ctx context.Context) (any, error) {
	from := d.now().Format(booking.DateLayout)
	to := d.now().AddDate(0, 0, 7).Format(booking.DateLayout)
	appts, err := d.appts.ListRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return map[string]any{"from": from, "to": to, "count": len(appts), "appointments": appts}, nil
}

func (d *Dispatcher) getMonthReport(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	now := d.now()
	if p.Year == 0 {
		p.Year = now.Year()
	}
	if p.Month == 0 {
		p.Month = int(now.Month())
	}

	stats, err := d.appts.MonthStats(ctx, p.Year, p.Month)
	if err != nil {
		return nil, err
	}
	return map[string]any{"year": p.Year, "month": p.Month, "stats": stats}, nil
}

func (d *Dispatcher) exportToSheets(ctx context.Context, args json.RawMessage) (any, error) {
	var p struct {
		Period string `json:"period"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if p.Period == "" {
		p.Period = "day"
	}

	now := d.now()
	today := now.Format(booking.DateLayout)

	switch p.Period {
	case "day":
		appts, err := d.appts.ListByDate(ctx, today)
		if err != nil {
			return nil, err
		}
		if err := d.sheets.ExportAppointments(ctx, appts, "Appointments for "+today); err != nil {
			return nil, err
		}
	case "week":
		to := now.AddDate(0, 0, 7).Format(booking.DateLayout)
		appts, err := d.appts.ListRange(ctx, today, to)
		if err != nil {
			return nil, err
		}
		if err := d.sheets.ExportAppointments(ctx, appts, fmt.Sprintf("Appointments %s - %s", today, to)); err != nil {
			return nil, err
		}
	case "month":
		stats, err := d.appts.MonthStats(ctx, now.Year(), int(now.Month()))
		if err != nil {
			return nil, err
		}
		if err := d.sheets.ExportMonthStats(ctx, stats, now.Month().String()+" "+fmt.Sprint(now.Year())); err != nil {
			return nil, err
		}
	default:
		return toolError{Error: "period must be day, week, or month"}, nil
	}
	return map[string]any{"success": true, "message": fmt.Sprintf("report (%s) exported to Google Sheets", p.Period)}, nil
}

func (d *Dispatcher) ensureClient(ctx context.Context, phone string) error {
	_, err := d.clients.GetByPhone(ctx, phone)
	if errors.Is(err, patients.ErrNotFound) {
		_, err = d.clients.Create(ctx, phone, "")
	}
	return err
}
