package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	"github.com/wolfman30/dental-ai-assistant/internal/notify"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New("error")
}

// --- LLM ---

type scriptedLLM struct {
	mu        sync.Mutex
	responses []Completion
	errs      []error
	calls     int
	seen      [][]Message
}

func (l *scriptedLLM) Complete(_ context.Context, messages []Message, _ []ToolSpec) (Completion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	l.calls++
	l.seen = append(l.seen, messages)
	if i < len(l.errs) && l.errs[i] != nil {
		return Completion{}, l.errs[i]
	}
	if i < len(l.responses) {
		return l.responses[i], nil
	}
	return Completion{Content: "done"}, nil
}

// --- history ---

type memHistory struct {
	mu    sync.Mutex
	turns map[string][]Message
}

func newMemHistory() *memHistory {
	return &memHistory{turns: make(map[string][]Message)}
}

func (h *memHistory) Append(_ context.Context, phone string, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[phone] = append(h.turns[phone], msg)
	return nil
}

func (h *memHistory) Recent(_ context.Context, phone string, limit int) ([]Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.turns[phone]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// --- notifier ---

type recordingNotifier struct {
	mu         sync.Mutex
	dispatched []notify.Mutation
	downCalls  int
}

func (n *recordingNotifier) Dispatch(_ context.Context, m notify.Mutation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dispatched = append(n.dispatched, m)
}

func (n *recordingNotifier) AIServiceDown(context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downCalls++
}

// --- patients ---

type fakeClients struct {
	mu       sync.Mutex
	clients  map[string]*patientsClient
	admins   map[string]bool
	telegram map[string]int64
}

type patientsClient struct {
	phone   string
	name    string
	blocked bool
}

func newFakeClients() *fakeClients {
	return &fakeClients{
		clients:  make(map[string]*patientsClient),
		admins:   make(map[string]bool),
		telegram: make(map[string]int64),
	}
}

func (f *fakeClients) GetByPhone(_ context.Context, phone string) (*patients.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return nil, patients.ErrNotFound
	}
	return &patients.Client{Phone: c.phone, Name: c.name, IsBlocked: c.blocked}, nil
}

func (f *fakeClients) Create(_ context.Context, phone, name string) (*patients.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[phone] = &patientsClient{phone: phone, name: name}
	return &patients.Client{Phone: phone, Name: name}, nil
}

func (f *fakeClients) UpdateName(_ context.Context, phone, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return patients.ErrNotFound
	}
	c.name = name
	return nil
}

func (f *fakeClients) IsAdmin(_ context.Context, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.admins[phone], nil
}

func (f *fakeClients) AdminPhones(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.admins {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeClients) Block(_ context.Context, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return patients.ErrNotFound
	}
	c.blocked = true
	return nil
}

func (f *fakeClients) Unblock(_ context.Context, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return patients.ErrNotFound
	}
	c.blocked = false
	return nil
}

func (f *fakeClients) IsBlocked(_ context.Context, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return false, nil
	}
	return c.blocked, nil
}

func (f *fakeClients) TelegramChatID(_ context.Context, phone string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.telegram[phone], nil
}

func (f *fakeClients) PhoneByChatID(_ context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p, id := range f.telegram {
		if id == chatID {
			return p, nil
		}
	}
	return "", patients.ErrNotFound
}

func (f *fakeClients) LinkTelegram(_ context.Context, chatID int64, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telegram[phone] = chatID
	return nil
}

// --- clinic ---

type fakeClinic struct {
	doctors   []clinic.Doctor
	services  []clinic.Service
	schedules map[int]clinic.Schedule
	absent    map[int]bool
}

func (f *fakeClinic) Doctors(context.Context) ([]clinic.Doctor, error) {
	return f.doctors, nil
}

func (f *fakeClinic) Services(context.Context) ([]clinic.Service, error) {
	return f.services, nil
}

func (f *fakeClinic) SchedulesForWeekday(context.Context, int) (map[int]clinic.Schedule, error) {
	return f.schedules, nil
}

func (f *fakeClinic) AbsentDoctorIDs(context.Context, time.Time) (map[int]bool, error) {
	if f.absent == nil {
		return map[int]bool{}, nil
	}
	return f.absent, nil
}

// --- bookings ---

type fakeBookings struct {
	mu           sync.Mutex
	nextID       int
	appts        map[int]*booking.Appointment
	doctorNames  map[int]string
	serviceNames map[int]string
	reminded     map[reminderKey]bool
	loc          *time.Location
}

func newFakeBookings(loc *time.Location) *fakeBookings {
	return &fakeBookings{
		nextID:       1,
		appts:        make(map[int]*booking.Appointment),
		doctorNames:  make(map[int]string),
		serviceNames: make(map[int]string),
		loc:          loc,
	}
}

func (f *fakeBookings) overlaps(doctorID int, date, t string, duration, skipID int) bool {
	start, err := time.ParseInLocation(booking.DateLayout+" "+booking.TimeLayout, date+" "+t, f.loc)
	if err != nil {
		return false
	}
	end := start.Add(time.Duration(duration) * time.Minute)
	for _, a := range f.appts {
		if a.ID == skipID || a.DoctorID != doctorID || a.Date != date || a.Status != booking.StatusScheduled {
			continue
		}
		aStart, err := a.StartsAt(f.loc)
		if err != nil {
			continue
		}
		aEnd := aStart.Add(time.Duration(a.DurationMinutes) * time.Minute)
		if start.Before(aEnd) && aStart.Before(end) {
			return true
		}
	}
	return false
}

func (f *fakeBookings) Create(_ context.Context, p booking.CreateParams) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overlaps(p.DoctorID, p.Date, p.Time, p.DurationMinutes, 0) {
		return booking.Appointment{}, booking.ErrSlotTaken
	}
	a := &booking.Appointment{
		ID:              f.nextID,
		ClientPhone:     p.ClientPhone,
		PatientName:     p.PatientName,
		DoctorID:        p.DoctorID,
		DoctorName:      f.doctorNames[p.DoctorID],
		ServiceID:       p.ServiceID,
		ServiceName:     f.serviceNames[p.ServiceID],
		Date:            p.Date,
		Time:            p.Time,
		DurationMinutes: p.DurationMinutes,
		Price:           p.Price,
		Status:          booking.StatusScheduled,
		Notes:           p.Notes,
	}
	f.nextID++
	f.appts[a.ID] = a
	return *a, nil
}

func (f *fakeBookings) GetByID(_ context.Context, id int) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return booking.Appointment{}, booking.ErrNotFound
	}
	return *a, nil
}

func (f *fakeBookings) Cancel(_ context.Context, id int, clientPhone, reason string) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != booking.StatusScheduled {
		return booking.Appointment{}, booking.ErrNotFound
	}
	if clientPhone != "" && a.ClientPhone != clientPhone {
		return booking.Appointment{}, booking.ErrNotFound
	}
	a.Status = booking.StatusCancelled
	a.CancellationReason = reason
	return *a, nil
}

func (f *fakeBookings) Reschedule(_ context.Context, id int, clientPhone, newDate, newTime string) (booking.RescheduleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != booking.StatusScheduled {
		return booking.RescheduleResult{}, booking.ErrNotFound
	}
	if clientPhone != "" && a.ClientPhone != clientPhone {
		return booking.RescheduleResult{}, booking.ErrNotFound
	}
	if f.overlaps(a.DoctorID, newDate, newTime, a.DurationMinutes, id) {
		return booking.RescheduleResult{}, booking.ErrSlotTaken
	}
	old := booking.RescheduleResult{OldDate: a.Date, OldTime: a.Time}
	a.Date, a.Time = newDate, newTime
	old.Appointment = *a
	return old, nil
}

func (f *fakeBookings) list(filter func(booking.Appointment) bool) []booking.Appointment {
	var out []booking.Appointment
	for _, a := range f.appts {
		if filter(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeBookings) ListByClient(_ context.Context, phone string, limit int) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.list(func(a booking.Appointment) bool { return a.ClientPhone == phone })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeBookings) ListUpcoming(_ context.Context, phone string) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a booking.Appointment) bool {
		return a.ClientPhone == phone && a.Status == booking.StatusScheduled
	}), nil
}

func (f *fakeBookings) ListByDate(_ context.Context, date string) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a booking.Appointment) bool {
		return a.Date == date && a.Status == booking.StatusScheduled
	}), nil
}

func (f *fakeBookings) ListRange(_ context.Context, from, to string) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a booking.Appointment) bool {
		return a.Date >= from && a.Date <= to
	}), nil
}

func (f *fakeBookings) ListBusy(_ context.Context, doctorID int, date string) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a booking.Appointment) bool {
		return a.DoctorID == doctorID && a.Date == date && a.Status == booking.StatusScheduled
	}), nil
}

func (f *fakeBookings) SetDoctorAbsence(_ context.Context, doctorID int, from, to, reason string) (booking.AbsenceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := booking.AbsenceResult{AbsenceID: 1}
	for _, a := range f.appts {
		if a.DoctorID == doctorID && a.Status == booking.StatusScheduled && a.Date >= from && a.Date <= to {
			a.Status = booking.StatusCancelled
			a.CancellationReason = "doctor unavailable: " + reason
			res.Affected = append(res.Affected, *a)
			res.CancelledCount++
		}
	}
	return res, nil
}

func (f *fakeBookings) ScheduleFollowUp(_ context.Context, id int, date, notes string) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return booking.Appointment{}, booking.ErrNotFound
	}
	a.FollowUpDate = date
	a.FollowUpNotes = notes
	return *a, nil
}

func (f *fakeBookings) MarkNoShow(_ context.Context, id int) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != booking.StatusScheduled {
		return booking.Appointment{}, booking.ErrNotFound
	}
	a.Status = booking.StatusNoShow
	return *a, nil
}

func (f *fakeBookings) RecordPayment(_ context.Context, id, amount int, status string) (booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return booking.Appointment{}, booking.ErrNotFound
	}
	a.ActualPrice = amount
	a.PaymentStatus = status
	if a.Status == booking.StatusScheduled {
		a.Status = booking.StatusCompleted
	}
	return *a, nil
}

func (f *fakeBookings) MarkCompleted(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.appts {
		if a.Status != booking.StatusScheduled {
			continue
		}
		start, err := a.StartsAt(f.loc)
		if err != nil {
			continue
		}
		if start.Add(time.Duration(a.DurationMinutes) * time.Minute).Before(before) {
			a.Status = booking.StatusCompleted
			n++
		}
	}
	return n, nil
}

func (f *fakeBookings) UpdateCalendarEventID(_ context.Context, id int, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.appts[id]; ok {
		a.CalendarEventID = eventID
	}
	return nil
}

func (f *fakeBookings) MonthStats(_ context.Context, year, month int) (booking.MonthStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := booking.MonthStats{Year: year, Month: month}
	seen := make(map[string]bool)
	prefix := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	for _, a := range f.appts {
		if len(a.Date) < 7 || a.Date[:7] != prefix {
			continue
		}
		stats.Total++
		switch a.Status {
		case booking.StatusCompleted:
			stats.Completed++
			if a.ActualPrice > 0 {
				stats.Revenue += a.ActualPrice
			} else {
				stats.Revenue += a.Price
			}
		case booking.StatusCancelled:
			stats.Cancelled++
		case booking.StatusNoShow:
			stats.NoShow++
		}
		if !seen[a.ClientPhone] {
			seen[a.ClientPhone] = true
			stats.UniqueClients++
		}
	}
	return stats, nil
}

func (f *fakeBookings) DueReminders(_ context.Context, kind booking.ReminderKind, from, to time.Time) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []booking.Appointment
	for _, a := range f.appts {
		if a.Status != booking.StatusScheduled || f.reminded[reminderKey{a.ID, kind}] {
			continue
		}
		start, err := a.StartsAt(f.loc)
		if err != nil {
			continue
		}
		if !start.Before(from) && start.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type reminderKey struct {
	id   int
	kind booking.ReminderKind
}

func (f *fakeBookings) MarkReminderSent(_ context.Context, id int, kind booking.ReminderKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reminded == nil {
		f.reminded = make(map[reminderKey]bool)
	}
	f.reminded[reminderKey{id, kind}] = true
	return nil
}

func (f *fakeBookings) DueFollowUps(_ context.Context, date string) ([]booking.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(a booking.Appointment) bool {
		return a.FollowUpDate == date && a.Status == booking.StatusCompleted
	}), nil
}

